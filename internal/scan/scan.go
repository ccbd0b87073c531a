// Package scan walks a library source directory and yields candidate
// audio files, independent of how those files are later hashed, tagged
// or inserted into the catalog.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Options parametrize a directory walk. The teacher hardcodes these
// decisions (fixed depth, fixed extension set via player.IsMusicFile);
// Apollo exposes them so a source can override the defaults.
type Options struct {
	// MaxDepth is the maximum number of directories below Root to
	// descend into. Zero means unlimited.
	MaxDepth int
	// FollowSymlinks is checked only for entries that filepath.WalkDir
	// reports as directories, and WalkDir reports a symlink to a
	// directory as a non-directory entry; so Walk never descends into a
	// symlinked directory, whatever this is set to. Symlinked files are
	// matched by extension like regular files.
	FollowSymlinks bool
	// Extensions is the whitelist of file extensions (lowercase,
	// leading dot) considered candidate audio files. A nil/empty slice
	// means "use the default audio set".
	Extensions []string
	// Progress, when non-nil, is called after each file is visited
	// (not necessarily read) with a running count.
	Progress func(visited, matched int)
}

var defaultExtensions = []string{".mp3", ".flac", ".opus", ".ogg", ".m4a", ".mp4"}

// Result is one discovered candidate file.
type Result struct {
	Path    string
	Size    int64
	ModTime int64
}

// Walk descends Root applying Options and sends each matching file on a
// channel, closing it when the walk completes or ctx is cancelled. Errors
// encountered for individual entries are skipped (best effort); a fatal
// error walking Root itself is returned once the channel is drained.
func Walk(ctx context.Context, root string, opts Options) (<-chan Result, <-chan error) {
	out := make(chan Result)
	errc := make(chan error, 1)

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = defaultExtensions
	}
	extSet := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		extSet[strings.ToLower(e)] = struct{}{}
	}

	rootDepth := strings.Count(filepath.Clean(root), string(os.PathSeparator))
	visited, matched := 0, 0

	go func() {
		defer close(out)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if path == root {
					return err
				}
				// Unreadable entry: skip it, keep walking.
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if path == root {
					return nil
				}
				if !opts.FollowSymlinks {
					if info, ierr := d.Info(); ierr == nil && info.Mode()&os.ModeSymlink != 0 {
						return filepath.SkipDir
					}
				}
				if opts.MaxDepth > 0 {
					depth := strings.Count(filepath.Clean(path), string(os.PathSeparator)) - rootDepth
					if depth > opts.MaxDepth {
						return filepath.SkipDir
					}
				}
				return nil
			}

			visited++
			ext := strings.ToLower(filepath.Ext(path))
			if _, ok := extSet[ext]; ok {
				info, ierr := d.Info()
				if ierr == nil {
					matched++
					select {
					case out <- Result{Path: path, Size: info.Size(), ModTime: info.ModTime().Unix()}:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			if opts.Progress != nil {
				opts.Progress(visited, matched)
			}
			return nil
		})
		if err != nil {
			errc <- err
		}
		close(errc)
	}()

	return out, errc
}
