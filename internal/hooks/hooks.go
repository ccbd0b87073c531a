// Package hooks is Apollo's script host (C8): it loads user-authored Lua
// scripts from a plugin directory and runs them as a chained pipeline
// over mutable Track/Album records during import.
//
// Grounded on Ambrevar-demlo's sandbox.go/luascript.go/pipeline.go
// architecture — a restricted-global Lua sandbox, a run-one-function
// calling convention, and chained stage execution — but re-implemented
// on `github.com/yuin/gopher-lua` (a real dependency already present in
// the retrieved pack's transitive surface, via milos85vasic-Catalogizer)
// instead of the teacher-of-this-concern's cgo `aarzilli/golua` binding,
// since Apollo's whole ambient stack is cgo-free (matching
// modernc.org/sqlite). gopher-lua's idiomatic sandbox shape is
// SkipOpenLibs plus selectively opening base/math/string/table/os — the
// equivalent restriction Ambrevar-demlo achieves post-hoc with a Lua
// whitelist table, since golua (unlike gopher-lua) always loads the full
// stdlib up front.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/apollo-music/apollo/internal/model"
)

// Hook names, the closed set from spec §4.8.
const (
	OnInit           = "on_init"
	OnClose          = "on_close"
	OnImport         = "on_import"
	PostImport       = "post_import"
	OnUpdate         = "on_update"
	PostUpdate       = "post_update"
	OnAlbumImport    = "on_album_import"
	PostAlbumImport  = "post_album_import"
)

// Verdict is a hook chain's outcome.
type Verdict int

const (
	Continue Verdict = iota
	Skip
	Abort
)

// Result carries a verdict plus an optional human-readable reason.
type Result struct {
	Verdict Verdict
	Reason  string
}

// script is one loaded plugin file.
type script struct {
	path string
	name string
	L    *lua.LState
}

// Host loads and runs hook scripts.
type Host struct {
	dir     string
	timeout time.Duration
	scripts []*script
	log     *slog.Logger
}

// NewHost loads every *.lua file in dir, in lexicographic order (stable
// loading order per spec §6). A directory that doesn't exist is treated
// as "no plugins" rather than an error.
func NewHost(dir string, timeout time.Duration, log *slog.Logger) (*Host, error) {
	if log == nil {
		log = slog.Default()
	}
	h := &Host{dir: dir, timeout: timeout, log: log}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugin directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lua") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", name, err)
		}
		L := newSandbox()
		if err := L.DoString(string(src)); err != nil {
			L.Close()
			return nil, fmt.Errorf("load script %s: %w", name, err)
		}
		h.scripts = append(h.scripts, &script{path: path, name: name, L: L})
	}
	return h, nil
}

// Close runs on_close for every loaded script and releases their Lua
// states.
func (h *Host) Close() {
	for _, s := range h.scripts {
		h.callVoid(s, OnClose)
		s.L.Close()
	}
}

// Init runs on_init for every loaded script, in order.
func (h *Host) Init() {
	for _, s := range h.scripts {
		h.callVoid(s, OnInit)
	}
}

func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.OsLibName, lua.OpenOs},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(pair.fn), NRet: 0, Protect: true}, lua.LString(pair.name)); err != nil {
			// Opening a stdlib subset should never fail; if it does the
			// sandbox is unusable and scripts will simply error at call
			// time, which is handled as Continue by RunTrackChain and
			// RunAlbumChain.
			continue
		}
	}
	registerLogger(L)
	removeUnsafe(L)
	return L
}

// removeUnsafe strips dofile/loadfile/load and os entries that touch the
// filesystem or process, leaving only os.time, os.date, os.clock,
// os.difftime and os.getenv.
func removeUnsafe(L *lua.LState) {
	g := L.Get(lua.GlobalsIndex).(*lua.LTable)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "collectgarbage"} {
		g.RawSetString(name, lua.LNil)
	}
	if osT, ok := g.RawGetString("os").(*lua.LTable); ok {
		keep := map[string]bool{"time": true, "date": true, "clock": true, "difftime": true, "getenv": true}
		osT.ForEach(func(k, _ lua.LValue) {
			if ks, ok := k.(lua.LString); ok && !keep[string(ks)] {
				osT.RawSetString(string(ks), lua.LNil)
			}
		})
	}
}

func registerLogger(L *lua.LState) {
	logTable := L.NewTable()
	for _, level := range []string{"debug", "info", "warn", "error"} {
		level := level
		L.SetField(logTable, level, L.NewFunction(func(L *lua.LState) int {
			msg := L.ToString(1)
			switch level {
			case "debug":
				slog.Debug(msg, "source", "hook")
			case "info":
				slog.Info(msg, "source", "hook")
			case "warn":
				slog.Warn(msg, "source", "hook")
			default:
				slog.Error(msg, "source", "hook")
			}
			return 0
		}))
	}
	L.SetGlobal("log", logTable)
}

func (h *Host) callVoid(s *script, fn string) {
	if s.L.GetGlobal(fn) == lua.LNil {
		return
	}
	h.runTimed(s, func() error {
		return s.L.CallByParam(lua.P{Fn: s.L.GetGlobal(fn), NRet: 0, Protect: true})
	})
}

// RunTrackChain runs hookName (on_import, post_import, on_update or
// post_update) across every loaded script that defines it, in load
// order, threading the (possibly mutated) track through the chain. The
// first non-Continue verdict short-circuits the remaining scripts, per
// spec §4.8's chain semantics.
func (h *Host) RunTrackChain(hookName string, track *model.Track) (Result, error) {
	for _, s := range h.scripts {
		if s.L.GetGlobal(hookName) == lua.LNil {
			continue
		}
		arg := trackToLua(s.L, track)
		err := h.runTimed(s, func() error {
			return s.L.CallByParam(lua.P{Fn: s.L.GetGlobal(hookName), NRet: 1, Protect: true}, arg)
		})
		if err != nil {
			// Failure (including timeout/panic) converts to Continue with
			// a logged warning, per spec §5's hook-isolation rule.
			continue
		}
		ret := s.L.Get(-1)
		s.L.Pop(1)

		if tbl, ok := ret.(*lua.LTable); ok {
			luaToTrack(tbl, track)
		}

		verdict, reason := parseVerdict(ret)
		if verdict != Continue {
			return Result{Verdict: verdict, Reason: reason}, nil
		}
	}
	return Result{Verdict: Continue}, nil
}

// RunAlbumChain runs on_album_import/post_album_import across every
// loaded script that defines it, mirroring RunTrackChain.
func (h *Host) RunAlbumChain(hookName string, album *model.Album) (Result, error) {
	for _, s := range h.scripts {
		if s.L.GetGlobal(hookName) == lua.LNil {
			continue
		}
		arg := albumToLua(s.L, album)
		err := h.runTimed(s, func() error {
			return s.L.CallByParam(lua.P{Fn: s.L.GetGlobal(hookName), NRet: 1, Protect: true}, arg)
		})
		if err != nil {
			continue
		}
		ret := s.L.Get(-1)
		s.L.Pop(1)

		if tbl, ok := ret.(*lua.LTable); ok {
			luaToAlbum(tbl, album)
		}

		verdict, reason := parseVerdict(ret)
		if verdict != Continue {
			return Result{Verdict: verdict, Reason: reason}, nil
		}
	}
	return Result{Verdict: Continue}, nil
}

// parseVerdict reads the {verdict="skip"|"abort", reason="..."} table a
// script may return alongside (or instead of) the mutated record. Any
// other return shape (nil, the record table itself, nothing) means
// Continue.
func parseVerdict(v lua.LValue) (Verdict, string) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return Continue, ""
	}
	verdictField := tbl.RawGetString("verdict")
	vs, ok := verdictField.(lua.LString)
	if !ok {
		return Continue, ""
	}
	reason := ""
	if r, ok := tbl.RawGetString("reason").(lua.LString); ok {
		reason = string(r)
	}
	switch strings.ToLower(string(vs)) {
	case "skip":
		return Skip, reason
	case "abort":
		return Abort, reason
	default:
		return Continue, reason
	}
}

func trackToLua(L *lua.LState, t *model.Track) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "id", lua.LString(t.ID))
	L.SetField(tbl, "path", lua.LString(t.Path))
	L.SetField(tbl, "title", lua.LString(t.Title))
	L.SetField(tbl, "artist", lua.LString(t.Artist))
	L.SetField(tbl, "album_artist", lua.LString(t.AlbumArtist))
	if t.AlbumTitle != nil {
		L.SetField(tbl, "album_title", lua.LString(*t.AlbumTitle))
	}
	if t.Year != nil {
		L.SetField(tbl, "year", lua.LNumber(*t.Year))
	}
	if t.TrackNumber != nil {
		L.SetField(tbl, "track_number", lua.LNumber(*t.TrackNumber))
	}
	if t.DiscNumber != nil {
		L.SetField(tbl, "disc_number", lua.LNumber(*t.DiscNumber))
	}
	L.SetField(tbl, "duration_ms", lua.LNumber(t.DurationMS))
	L.SetField(tbl, "format", lua.LString(t.Format))
	L.SetField(tbl, "file_hash", lua.LString(t.FileHash))

	genres := L.NewTable()
	for _, g := range t.Genres {
		genres.Append(lua.LString(g))
	}
	L.SetField(tbl, "genres", genres)

	return tbl
}

// luaToTrack writes back the subset of fields spec §4.8 allows a hook to
// mutate: title, artist, album_artist, album_title, year, genres. The
// identifying fields (id, path, file_hash, format, duration_ms) are
// read-only from a script's perspective and are never copied back.
func luaToTrack(tbl *lua.LTable, t *model.Track) {
	if s, ok := tbl.RawGetString("title").(lua.LString); ok {
		t.Title = string(s)
	}
	if s, ok := tbl.RawGetString("artist").(lua.LString); ok {
		t.Artist = string(s)
	}
	if s, ok := tbl.RawGetString("album_artist").(lua.LString); ok {
		t.AlbumArtist = string(s)
	}
	if s, ok := tbl.RawGetString("album_title").(lua.LString); ok {
		v := string(s)
		t.AlbumTitle = &v
	}
	if n, ok := tbl.RawGetString("year").(lua.LNumber); ok {
		v := int(n)
		t.Year = &v
	}
	if g, ok := tbl.RawGetString("genres").(*lua.LTable); ok {
		var genres []string
		g.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				genres = append(genres, string(s))
			}
		})
		t.Genres = model.NormalizeGenres(genres)
	}
}

func albumToLua(L *lua.LState, a *model.Album) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "id", lua.LString(a.ID))
	L.SetField(tbl, "title", lua.LString(a.Title))
	L.SetField(tbl, "artist", lua.LString(a.Artist))
	if a.Year != nil {
		L.SetField(tbl, "year", lua.LNumber(*a.Year))
	}
	L.SetField(tbl, "track_count", lua.LNumber(a.TrackCount))
	L.SetField(tbl, "disc_count", lua.LNumber(a.DiscCount))

	genres := L.NewTable()
	for _, g := range a.Genres {
		genres.Append(lua.LString(g))
	}
	L.SetField(tbl, "genres", genres)

	return tbl
}

func luaToAlbum(tbl *lua.LTable, a *model.Album) {
	if s, ok := tbl.RawGetString("title").(lua.LString); ok {
		a.Title = string(s)
	}
	if s, ok := tbl.RawGetString("artist").(lua.LString); ok {
		a.Artist = string(s)
	}
	if n, ok := tbl.RawGetString("year").(lua.LNumber); ok {
		v := int(n)
		a.Year = &v
	}
	if g, ok := tbl.RawGetString("genres").(*lua.LTable); ok {
		var genres []string
		g.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				genres = append(genres, string(s))
			}
		})
		a.Genres = model.NormalizeGenres(genres)
	}
}

// runTimed executes body with the host's timeout, logging panics and
// timeouts and returning them as errors, which the chain runners treat
// as Continue per spec §5's "Hook isolation" rule. body runs on a helper
// goroutine so a panic can be recovered; the timeout is also set as the
// script's Lua context, so an overrunning script is interrupted and the
// caller waits for it to stop before the state is used again.
func (h *Host) runTimed(s *script, body func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- body()
	}()

	select {
	case err := <-done:
		if err != nil {
			h.log.Warn("hook failed, continuing", "script", s.name, "error", err)
		}
		return err
	case <-ctx.Done():
		<-done
		h.log.Warn("hook timed out, continuing", "script", s.name)
		return context.DeadlineExceeded
	}
}
