// Package catalogimport is Apollo's import pipeline (C7): it scans one
// or more library roots, reads tags, hashes file contents, reconciles
// albums, and writes the resulting tracks into the catalog store.
//
// Grounded on the teacher's internal/library/processing.go, which
// splits a bounded worker pool doing the I/O-heavy work (tag read,
// here also hashing) from a single serialized goroutine that performs
// all database writes in the scanner's emission order — the same split
// is kept here, since SQLite's single-writer model is exactly why the
// teacher structured it that way.
package catalogimport

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/apollo-music/apollo/internal/hash"
	"github.com/apollo-music/apollo/internal/hooks"
	"github.com/apollo-music/apollo/internal/model"
	"github.com/apollo-music/apollo/internal/scan"
	"github.com/apollo-music/apollo/internal/store"
	"github.com/apollo-music/apollo/internal/tags"
)

// Report summarizes one Import() run, per spec §4.7.
type Report struct {
	Imported         int
	SkippedUnchanged int
	SkippedByHook    int
	Moved            int
	Failed           []FailedFile
}

// FailedFile records one file the pipeline could not import.
type FailedFile struct {
	Path string
	Err  error
}

// Options configures a single Import() call.
type Options struct {
	MaxDepth       int
	FollowSymlinks bool
	Progress       func(visited, matched int)
}

// Pipeline builds Apollo's catalog by walking directories into tracks.
type Pipeline struct {
	store *store.Store
	hooks *hooks.Host
}

// New builds a Pipeline backed by st, running hook chains through h.
// h may be nil, in which case every hook call is a no-op Continue.
func New(st *store.Store, h *hooks.Host) *Pipeline {
	return &Pipeline{store: st, hooks: h}
}

// fileResult is what a worker produces for one scanned file: either a
// fully-built candidate track, or an error to report.
type fileResult struct {
	seq     int
	path    string
	track   *model.Track
	hash    string
	err     error
	moved   bool
	oldPath string
}

var numWorkers = runtime.GOMAXPROCS(0)

// Import scans root and writes every readable track it finds into the
// catalog, in the order the scanner discovers them (spec §5 Ordering).
func (p *Pipeline) Import(ctx context.Context, root string, opts Options) (*Report, error) {
	if numWorkers < 2 {
		numWorkers = 2
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	walkOpts := scan.Options{
		MaxDepth:       opts.MaxDepth,
		FollowSymlinks: opts.FollowSymlinks,
		Progress:       opts.Progress,
	}
	paths, scanErrs := scan.Walk(ctx, root, walkOpts)

	type indexed struct {
		seq  int
		path string
	}
	work := make(chan indexed, numWorkers*2)
	results := make(chan fileResult, numWorkers*2)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				results <- p.processFile(ctx, item.seq, item.path)
			}
		}()
	}

	go func() {
		defer close(work)
		seq := 0
		for r := range paths {
			select {
			case <-ctx.Done():
				return
			case work <- indexed{seq: seq, path: r.Path}:
				seq++
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Results may arrive out of submission order since workers race;
	// buffer and replay them in sequence number order before writing,
	// so album reconciliation sees files in the scanner's own order.
	pending := make(map[int]fileResult)
	next := 0
	report := &Report{}
	var abortErr error

	flush := func() {
		for abortErr == nil {
			r, ok := pending[next]
			if !ok {
				return
			}
			delete(pending, next)
			next++
			if err := p.commit(r, report); err != nil {
				abortErr = err
				cancel()
				return
			}
		}
	}

	for r := range results {
		if abortErr != nil {
			// A hook already aborted the import; drain the remaining
			// in-flight results so the worker goroutines above can
			// exit without blocking on a full channel.
			continue
		}
		pending[r.seq] = r
		flush()
	}
	if abortErr == nil {
		flush()
	}

	if abortErr != nil {
		return report, abortErr
	}
	if err, ok := <-scanErrs; ok && err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// processFile does all the per-file work that doesn't need serialized
// database access: hashing, tag reading, building the candidate track,
// and the on_import hook chain. It never touches the store.
func (p *Pipeline) processFile(ctx context.Context, seq int, path string) fileResult {
	if err := ctx.Err(); err != nil {
		return fileResult{seq: seq, path: path, err: err}
	}

	fileHash, err := hash.File(path)
	if err != nil {
		return fileResult{seq: seq, path: path, err: model.Unreadable(path, err.Error())}
	}

	existing, err := p.store.GetTrackByHash(fileHash)
	if err == nil && existing != nil {
		if existing.Path == path {
			return fileResult{seq: seq, path: path, hash: fileHash, err: errUnchanged}
		}
		// Same content at a different path: a move, not a re-import.
		return fileResult{seq: seq, path: path, hash: fileHash, moved: true, oldPath: existing.Path}
	}

	info, err := tags.ReadWithAudio(path)
	if err != nil {
		return fileResult{seq: seq, path: path, err: model.Unreadable(path, err.Error())}
	}

	track, err := buildTrack(path, fileHash, info)
	if err != nil {
		return fileResult{seq: seq, path: path, err: err}
	}

	if p.hooks != nil {
		res, err := p.hooks.RunTrackChain(hooks.OnImport, track)
		if err != nil {
			return fileResult{seq: seq, path: path, err: err}
		}
		if res.Verdict == hooks.Abort {
			return fileResult{seq: seq, path: path, err: model.Aborted(res.Reason)}
		}
		if res.Verdict == hooks.Skip {
			return fileResult{seq: seq, path: path, err: errSkippedByHook}
		}
	}

	return fileResult{seq: seq, path: path, hash: fileHash, track: track}
}

var (
	errUnchanged     = errors.New("unchanged")
	errSkippedByHook = errors.New("skipped by hook")
)

// commit performs the serialized, store-touching half of importing one
// file: album reconciliation plus the track insert, followed by the
// post_import hook. Only this method ever calls into p.store's write
// paths, matching the teacher's single-writer-goroutine discipline.
//
// It returns a non-nil error only for the one fatal condition spec §7
// names: an on_import hook's Abort verdict. Import stops committing
// further results and returns that error with the report built so far.
func (p *Pipeline) commit(r fileResult, report *Report) error {
	if aborted, ok := asAbortError(r.err); ok {
		return aborted
	}
	switch {
	case r.err == errUnchanged:
		report.SkippedUnchanged++
		return nil
	case r.err == errSkippedByHook:
		report.SkippedByHook++
		return nil
	case r.err != nil:
		report.Failed = append(report.Failed, FailedFile{Path: r.path, Err: r.err})
		return nil
	case r.moved:
		if err := p.reconcileMove(r); err != nil {
			report.Failed = append(report.Failed, FailedFile{Path: r.path, Err: err})
			return nil
		}
		report.Moved++
		return nil
	}

	if err := p.insertWithAlbum(r.track); err != nil {
		report.Failed = append(report.Failed, FailedFile{Path: r.path, Err: err})
		return nil
	}

	if p.hooks != nil {
		_, _ = p.hooks.RunTrackChain(hooks.PostImport, r.track)
	}
	report.Imported++
	return nil
}

// asAbortError reports whether err is the fatal ImportAborted condition
// (spec §7): a model.Error of kind ErrAborted, produced when an
// on_import hook returns Abort.
func asAbortError(err error) (*model.Error, bool) {
	var me *model.Error
	if errors.As(err, &me) && me.Kind == model.ErrAborted {
		return me, true
	}
	return nil, false
}

// reconcileMove updates the existing track's path in place: same file
// content found at a new location is a move, not a new import (spec
// §4.7.c / scenario S2).
func (p *Pipeline) reconcileMove(r fileResult) error {
	existing, err := p.store.GetTrackByHash(r.hash)
	if err != nil {
		return err
	}
	existing.Path = r.path
	existing.ModifiedAt = time.Now().UTC()
	return p.store.WithTx(func(tx *sql.Tx) error {
		return p.store.UpdateTrackTx(tx, existing)
	})
}

// insertWithAlbum reconciles the track's album (matching on normalized
// (album_artist or artist, album_title)) and inserts the track, all in
// one write transaction, per spec §4.7.e/f and §5's "multi-row mutation
// in one immediate transaction" rule.
func (p *Pipeline) insertWithAlbum(t *model.Track) error {
	if t.AlbumTitle == nil || strings.TrimSpace(*t.AlbumTitle) == "" {
		return p.store.AddTrack(t)
	}

	artist := t.AlbumArtist
	if artist == "" {
		artist = t.Artist
	}

	return p.store.WithTx(func(tx *sql.Tx) error {
		album, err := p.store.FindAlbumByNormalizedKey(tx, artist, *t.AlbumTitle)
		if err != nil {
			return err
		}
		if album == nil {
			now := time.Now().UTC()
			album = model.NewAlbum(*t.AlbumTitle, artist, now)
			album.Year = t.Year
			album.Genres = t.Genres
			album.DiscCount = discCountOf(t)
			if p.hooks != nil {
				if _, err := p.hooks.RunAlbumChain(hooks.OnAlbumImport, album); err != nil {
					return err
				}
			}
			if err := p.store.InsertAlbumTx(tx, album); err != nil {
				return err
			}
			if p.hooks != nil {
				_, _ = p.hooks.RunAlbumChain(hooks.PostAlbumImport, album)
			}
		} else {
			mergeAlbum(album, t)
			if err := p.store.UpdateAlbumAggregates(tx, album); err != nil {
				return err
			}
		}
		t.AlbumID = &album.ID
		return p.store.InsertTrackTx(tx, t)
	})
}

// mergeAlbum folds one more track's metadata into an existing album:
// year keeps the earliest non-null value, genres are a first-seen-order
// set union, disc_count is the max seen so far (spec §4.7.e).
func mergeAlbum(a *model.Album, t *model.Track) {
	if t.Year != nil && (a.Year == nil || *t.Year < *a.Year) {
		a.Year = t.Year
	}
	seen := make(map[string]bool, len(a.Genres))
	for _, g := range a.Genres {
		seen[g] = true
	}
	for _, g := range t.Genres {
		if !seen[g] {
			a.Genres = append(a.Genres, g)
			seen[g] = true
		}
	}
	if dc := discCountOf(t); dc > a.DiscCount {
		a.DiscCount = dc
	}
}

func discCountOf(t *model.Track) int {
	if t.DiscTotal != nil {
		return *t.DiscTotal
	}
	if t.DiscNumber != nil {
		return *t.DiscNumber
	}
	return 1
}

var leadingTrackNumber = regexp.MustCompile(`^\s*\d{1,3}[.\-\s]+`)

// buildTrack applies spec §4.2's fallback rules and produces the
// candidate Track record for one file.
func buildTrack(path, fileHash string, info *tags.FileInfo) (*model.Track, error) {
	if info.Duration <= 0 {
		return nil, model.Unreadable(path, "no duration")
	}

	title := strings.TrimSpace(info.Title)
	if title == "" {
		base := filepath.Base(path)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		title = leadingTrackNumber.ReplaceAllString(base, "")
		title = strings.TrimSpace(title)
		if title == "" {
			title = base
		}
	}

	artist := strings.TrimSpace(info.Artist)
	if artist == "" {
		artist = model.UnknownArtist
	}

	format := formatFromContainer(info.Format)

	genres := model.NormalizeGenres(splitGenres(info.Genre))

	now := time.Now().UTC()
	track := model.NewTrack(path, title, artist, info.Duration.Milliseconds(), fileHash, format, now)
	track.AlbumArtist = strings.TrimSpace(info.AlbumArtist)

	if album := strings.TrimSpace(info.Album); album != "" {
		track.AlbumTitle = &album
	}
	if y := info.Year(); y != 0 {
		track.Year = &y
	}
	if info.TrackNumber != 0 {
		n := info.TrackNumber
		track.TrackNumber = &n
	}
	if info.TotalTracks != 0 {
		n := info.TotalTracks
		track.TrackTotal = &n
	}
	if info.DiscNumber != 0 {
		n := info.DiscNumber
		track.DiscNumber = &n
	}
	if info.TotalDiscs != 0 {
		n := info.TotalDiscs
		track.DiscTotal = &n
	}
	if info.SampleRate != 0 {
		sr := info.SampleRate
		track.SampleRate = &sr
	}
	if info.MBRecordingID != "" {
		id := info.MBRecordingID
		track.MusicBrainzID = &id
	}
	track.Genres = genres

	if err := track.Validate(); err != nil {
		return nil, err
	}
	return track, nil
}

func splitGenres(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '/' })
	return parts
}

// formatFromContainer maps the container-verified format string that
// tags.AudioInfo carries (set by the actual MP3/FLAC/Ogg/M4A parse in
// tags.ReadAudioInfo) to Apollo's catalog format. The file extension is
// only ever used to pick a prober, never to decide the stored format
// (spec §4.2).
func formatFromContainer(format string) model.Format {
	switch strings.ToUpper(format) {
	case "MP3":
		return model.FormatMP3
	case "FLAC":
		return model.FormatFLAC
	case "OPUS":
		return model.FormatOpus
	case "OGG", "VORBIS":
		return model.FormatOgg
	case "M4A", "AAC", "ALAC":
		return model.FormatM4A
	default:
		return model.FormatUnknown
	}
}
