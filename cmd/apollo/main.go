// Command apollo is the CLI front-end for the library engine: it wires
// internal/engine to a closed verb set (init, import, list, query,
// stats, config, web, playlist, duplicates, cover) and exits non-zero
// on any fatal condition, per spec.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/apollo-music/apollo/internal/catalogimport"
	"github.com/apollo-music/apollo/internal/config"
	"github.com/apollo-music/apollo/internal/engine"
	"github.com/apollo-music/apollo/internal/httpapi"
	"github.com/apollo-music/apollo/internal/model"
	"github.com/apollo-music/apollo/internal/query"
	"github.com/apollo-music/apollo/internal/tags"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "apollo:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return usageError()
	}

	verb, rest := args[0], args[1:]

	// config and a bare init never need the engine open, since init
	// creates the very file Load would otherwise fail to find useful
	// defaults from.
	switch verb {
	case "config":
		return runConfig(rest)
	case "init":
		return config.Init()
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	e, err := engine.Open(log)
	if err != nil {
		return err
	}
	defer e.Close()

	switch verb {
	case "import":
		return runImport(e, rest)
	case "list":
		return runList(e, rest)
	case "query":
		return runQuery(e, rest)
	case "stats":
		return runStats(e, rest)
	case "web":
		return runWeb(e, rest)
	case "playlist":
		return runPlaylist(e, rest)
	case "duplicates":
		return runDuplicates(e)
	case "cover":
		return runCover(e, rest)
	default:
		return usageError()
	}
}

func usageError() error {
	return fmt.Errorf("usage: apollo <init|import|list|query|stats|config|web|playlist|duplicates|cover> ...")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runImport(e *engine.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: apollo import <path>")
	}
	opts := catalogimport.Options{
		MaxDepth:       e.Config.Import.MaxDepth,
		FollowSymlinks: e.Config.Import.FollowSymlinks,
	}
	report, err := e.Import.Import(context.Background(), args[0], opts)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runList(e *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "max rows")
	offset := fs.Int("offset", 0, "rows to skip")
	human := fs.Bool("human", false, "print a human-readable table instead of JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: apollo list {tracks|albums} [--limit N] [--offset N] [--human]")
	}

	switch fs.Arg(0) {
	case "tracks":
		tracks, total, err := e.Store.ListTracks("", nil, model.SortTitle, *limit, *offset)
		if err != nil {
			return err
		}
		if *human {
			return printTracksHuman(tracks, total)
		}
		return printJSON(map[string]any{"items": tracks, "total": total, "limit": *limit, "offset": *offset})
	case "albums":
		albums, total, err := e.Store.ListAlbums(context.Background(), "", nil, model.SortTitle, *limit, *offset)
		if err != nil {
			return err
		}
		if *human {
			return printAlbumsHuman(albums, total)
		}
		return printJSON(map[string]any{"items": albums, "total": total, "limit": *limit, "offset": *offset})
	default:
		return fmt.Errorf("usage: apollo list {tracks|albums} [--limit N] [--offset N] [--human]")
	}
}

func printTracksHuman(tracks []*model.Track, total int) error {
	for _, t := range tracks {
		fmt.Printf("%-40s %-24s %8s  added %s\n",
			truncate(t.Title, 40), truncate(t.Artist, 24),
			humanize.Comma(t.DurationMS/1000)+"s", humanize.Time(t.AddedAt))
	}
	fmt.Printf("%s tracks total\n", humanize.Comma(int64(total)))
	return nil
}

func printAlbumsHuman(albums []*model.Album, total int) error {
	for _, a := range albums {
		fmt.Printf("%-40s %-24s %s tracks\n", truncate(a.Title, 40), truncate(a.Artist, 24), humanize.Comma(int64(a.TrackCount)))
	}
	fmt.Printf("%s albums total\n", humanize.Comma(int64(total)))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func runQuery(e *engine.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: apollo query <expr>")
	}
	parsed, err := query.Parse(args[0])
	if err != nil {
		return err
	}
	where, qargs := query.Lower(parsed)
	tracks, total, err := e.Store.ListTracks(where, qargs, model.SortTitle, 1000, 0)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"items": tracks, "total": total})
}

func runStats(e *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	human := fs.Bool("human", false, "print a human-readable summary instead of JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	trackCount, err := e.Store.CountTracks()
	if err != nil {
		return err
	}
	albumCount, err := e.Store.CountAlbums()
	if err != nil {
		return err
	}
	playlistCount, err := e.Playlist.Count()
	if err != nil {
		return err
	}

	if *human {
		fmt.Printf("%s tracks, %s albums, %s playlists\n",
			humanize.Comma(int64(trackCount)), humanize.Comma(int64(albumCount)), humanize.Comma(int64(playlistCount)))
		return nil
	}
	return printJSON(map[string]int{"tracks": trackCount, "albums": albumCount, "playlists": playlistCount})
}

func runWeb(e *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("web", flag.ContinueOnError)
	host := fs.String("host", e.Config.Web.Host, "bind host")
	port := fs.Int("port", e.Config.Web.Port, "bind port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", *host, *port)
	handler := httpapi.New(e.Store, e.Playlist, slog.Default())
	fmt.Fprintf(os.Stderr, "apollo: listening on %s\n", addr)
	return http.ListenAndServe(addr, handler)
}

func runConfig(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: apollo config {show|init|path|get|set}")
	}
	switch args[0] {
	case "show":
		text, err := config.Show()
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	case "init":
		return config.Init()
	case "path":
		fmt.Println(config.Path())
		return nil
	case "get":
		if len(args) != 2 {
			return fmt.Errorf("usage: apollo config get <key>")
		}
		v, err := config.Get(args[1])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("usage: apollo config set <key> <value>")
		}
		return config.Set(args[1], args[2])
	default:
		return fmt.Errorf("usage: apollo config {show|init|path|get|set}")
	}
}

func runPlaylist(e *engine.Engine, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: apollo playlist {list|create|show|delete|add|remove} ...")
	}
	verb, rest := args[0], args[1:]

	switch verb {
	case "list":
		playlists, err := e.Playlist.List()
		if err != nil {
			return err
		}
		return printJSON(playlists)

	case "create":
		fs := flag.NewFlagSet("playlist create", flag.ContinueOnError)
		smartQuery := fs.String("smart", "", "smart playlist query expression (omit for a static playlist)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: apollo playlist create <name> [--smart <query>]")
		}

		now := time.Now().UTC()
		p := &model.Playlist{ID: model.NewID(), Name: fs.Arg(0), CreatedAt: now, UpdatedAt: now}
		if *smartQuery != "" {
			p.Kind = model.PlaylistSmart
			p.Query = smartQuery
		} else {
			p.Kind = model.PlaylistStatic
		}
		if err := e.Playlist.Create(p); err != nil {
			return err
		}
		return printJSON(p)

	case "show":
		if len(rest) != 1 {
			return fmt.Errorf("usage: apollo playlist show <id>")
		}
		p, err := e.Playlist.Get(model.ID(rest[0]))
		if err != nil {
			return err
		}
		tracks, err := e.Playlist.Tracks(context.Background(), p.ID)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"playlist": p, "tracks": tracks})

	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("usage: apollo playlist delete <id>")
		}
		return e.Playlist.Delete(model.ID(rest[0]))

	case "add":
		if len(rest) < 2 {
			return fmt.Errorf("usage: apollo playlist add <id> <track-id>...")
		}
		ids := make([]model.ID, len(rest)-1)
		for i, s := range rest[1:] {
			ids[i] = model.ID(s)
		}
		return e.Playlist.AddTracks(model.ID(rest[0]), ids)

	case "remove":
		if len(rest) < 2 {
			return fmt.Errorf("usage: apollo playlist remove <id> <position>...")
		}
		positions := make([]int, len(rest)-1)
		for i, s := range rest[1:] {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("invalid position %q: %w", s, err)
			}
			positions[i] = n
		}
		return e.Playlist.RemoveTracks(model.ID(rest[0]), positions)

	default:
		return fmt.Errorf("usage: apollo playlist {list|create|show|delete|add|remove} ...")
	}
}

func runDuplicates(e *engine.Engine) error {
	groups, err := e.Store.ListDuplicateTracks()
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"groups": groups, "count": len(groups)})
}

// runCover is spec §1's single well-defined write operation: it embeds
// an image file as a track's cover art, leaving every other tag field
// untouched. It is the only path in Apollo that calls tags.Write.
func runCover(e *engine.Engine, args []string) error {
	if len(args) != 3 || args[0] != "set" {
		return fmt.Errorf("usage: apollo cover set <track-id> <image-path>")
	}
	trackID, imagePath := model.ID(args[1]), args[2]

	track, err := e.Store.GetTrack(trackID)
	if err != nil {
		return err
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read cover image: %w", err)
	}

	t, err := tags.Read(track.Path)
	if err != nil {
		return fmt.Errorf("read existing tags: %w", err)
	}
	t.CoverArt = image

	return tags.Write(track.Path, t)
}
