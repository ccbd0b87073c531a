// Package engine is Apollo's composition root: it wires the catalog
// store, hook host, import pipeline, and playlist engine together
// behind the lifecycle (on_init at startup, on_close at shutdown) spec
// §4.8 describes, so cmd/apollo and internal/httpapi each have a single
// object to depend on instead of assembling collaborators themselves.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apollo-music/apollo/internal/catalogimport"
	"github.com/apollo-music/apollo/internal/config"
	"github.com/apollo-music/apollo/internal/hooks"
	"github.com/apollo-music/apollo/internal/playlist"
	"github.com/apollo-music/apollo/internal/store"
)

// Engine is Apollo's running instance: one catalog database, one hook
// host, one import pipeline, one playlist engine.
type Engine struct {
	Config   *config.Config
	Store    *store.Store
	Hooks    *hooks.Host
	Import   *catalogimport.Pipeline
	Playlist *playlist.Engine
}

// Open loads configuration, opens the catalog database, loads the hook
// host, and runs on_init. Call Close when done to run on_close.
func Open(log *slog.Logger) (*Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.Library.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	timeout := time.Duration(cfg.Plugins.HookTimeoutMS) * time.Millisecond
	host, err := hooks.NewHost(cfg.Plugins.Directory, timeout, log)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load hooks: %w", err)
	}
	host.Init()

	e := &Engine{
		Config:   cfg,
		Store:    st,
		Hooks:    host,
		Import:   catalogimport.New(st, host),
		Playlist: playlist.New(st),
	}
	return e, nil
}

// ImportSources runs the import pipeline over every configured library
// source in turn (spec §5: import is sequential per root).
func (e *Engine) ImportSources(ctx context.Context, progress func(visited, matched int)) ([]*catalogimport.Report, error) {
	reports := make([]*catalogimport.Report, 0, len(e.Config.Library.Sources))
	opts := catalogimport.Options{
		MaxDepth:       e.Config.Import.MaxDepth,
		FollowSymlinks: e.Config.Import.FollowSymlinks,
		Progress:       progress,
	}
	for _, root := range e.Config.Library.Sources {
		report, err := e.Import.Import(ctx, root, opts)
		reports = append(reports, report)
		if err != nil {
			return reports, fmt.Errorf("import %s: %w", root, err)
		}
	}
	return reports, nil
}

// Close runs on_close and releases the catalog database.
func (e *Engine) Close() error {
	e.Hooks.Close()
	return e.Store.Close()
}
