// Package playlist implements Apollo's static and smart playlist
// engine (C9): CRUD over playlists and their entries, dense position
// maintenance for static playlists, and on-read materialization for
// smart playlists via the query engine.
//
// Grounded on the teacher's internal/playlists package (playlists.go,
// position.go) — the dense-reassignment-on-every-mutation design and the
// negative-position staging trick for collision-free reordering are
// carried over unchanged. The teacher's in-memory now-playing queue
// previously at this path (Playlist/PlayingQueue/QueueHistory) was
// playback-specific and out of scope; see DESIGN.md.
package playlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/apollo-music/apollo/internal/model"
	"github.com/apollo-music/apollo/internal/query"
)

// Store is the subset of *store.Store the playlist engine depends on.
type Store interface {
	DB() *sql.DB
	WithTx(fn func(tx *sql.Tx) error) error
	ListTracks(where string, args []any, sort model.SortOrder, limit, offset int) ([]*model.Track, int, error)
}

// Engine is the playlist engine, bound to a catalog store.
type Engine struct {
	store Store
}

func New(s Store) *Engine { return &Engine{store: s} }

const playlistColumns = `id, name, description, kind, query, sort, max_tracks, max_duration, created_at, updated_at`

func scanPlaylist(row interface{ Scan(...any) error }) (*model.Playlist, error) {
	var p model.Playlist
	var desc, q, sort sql.NullString
	var maxTracks, maxDuration sql.NullInt64
	var created, updated string
	var kind string

	err := row.Scan(&p.ID, &p.Name, &desc, &kind, &q, &sort, &maxTracks, &maxDuration, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.Kind = model.PlaylistKind(kind)
	if desc.Valid {
		p.Description = &desc.String
	}
	if q.Valid {
		p.Query = &q.String
	}
	if sort.Valid {
		so := model.SortOrder(sort.String)
		p.Sort = &so
	}
	if maxTracks.Valid {
		v := int(maxTracks.Int64)
		p.MaxTracks = &v
	}
	if maxDuration.Valid {
		v := int(maxDuration.Int64)
		p.MaxDuration = &v
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &p, nil
}

// Create inserts a new playlist (static or smart).
func (e *Engine) Create(p *model.Playlist) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = model.NewID()
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	var sortVal *string
	if p.Sort != nil {
		s := string(*p.Sort)
		sortVal = &s
	}

	_, err := e.store.DB().Exec(
		`INSERT INTO playlists(id, name, description, kind, query, sort, max_tracks, max_duration, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		string(p.ID), p.Name, p.Description, string(p.Kind), p.Query, sortVal, p.MaxTracks, p.MaxDuration,
		p.CreatedAt.UTC().Format(time.RFC3339Nano), p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return model.Wrap("playlist", err)
}

// Get fetches a playlist by id.
func (e *Engine) Get(id model.ID) (*model.Playlist, error) {
	row := e.store.DB().QueryRow(fmt.Sprintf(`SELECT %s FROM playlists WHERE id = ?`, playlistColumns), string(id))
	p, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("playlist", string(id))
	}
	if err != nil {
		return nil, model.Wrap("playlist", err)
	}
	return p, nil
}

// List returns every playlist, ordered by name.
func (e *Engine) List() ([]*model.Playlist, error) {
	rows, err := e.store.DB().Query(fmt.Sprintf(`SELECT %s FROM playlists ORDER BY name COLLATE NOCASE`, playlistColumns))
	if err != nil {
		return nil, model.Wrap("playlist", err)
	}
	defer rows.Close()

	var out []*model.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, model.Wrap("playlist", err)
		}
		out = append(out, p)
	}
	return out, model.Wrap("playlist", rows.Err())
}

// Rename updates a playlist's name.
func (e *Engine) Rename(id model.ID, name string) error {
	res, err := e.store.DB().Exec(`UPDATE playlists SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Format(time.RFC3339Nano), string(id))
	if err != nil {
		return model.Wrap("playlist", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("playlist", string(id))
	}
	return nil
}

// Delete removes a playlist; its entries cascade via the FK.
func (e *Engine) Delete(id model.ID) error {
	res, err := e.store.DB().Exec(`DELETE FROM playlists WHERE id = ?`, string(id))
	if err != nil {
		return model.Wrap("playlist", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("playlist", string(id))
	}
	return nil
}

// Count returns the total number of playlists.
func (e *Engine) Count() (int, error) {
	var n int
	err := e.store.DB().QueryRow(`SELECT COUNT(*) FROM playlists`).Scan(&n)
	return n, model.Wrap("playlist", err)
}

// CountEntries returns the number of entries in a static playlist.
func (e *Engine) CountEntries(id model.ID) (int, error) {
	var n int
	err := e.store.DB().QueryRow(`SELECT COUNT(*) FROM playlist_tracks WHERE playlist_id = ?`, string(id)).Scan(&n)
	return n, model.Wrap("playlist", err)
}

// Tracks returns a static playlist's tracks ordered by position, or a
// smart playlist's materialized result (see Materialize).
func (e *Engine) Tracks(ctx context.Context, id model.ID) ([]*model.Track, error) {
	p, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Kind == model.PlaylistSmart {
		return e.Materialize(ctx, p)
	}
	return e.staticTracks(id)
}

func (e *Engine) staticTracks(id model.ID) ([]*model.Track, error) {
	rows, err := e.store.DB().Query(
		`SELECT t.id FROM playlist_tracks pt JOIN tracks t ON t.id = pt.track_id
		 WHERE pt.playlist_id = ? ORDER BY pt.position`, string(id))
	if err != nil {
		return nil, model.Wrap("playlist", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var tid string
		if err := rows.Scan(&tid); err != nil {
			return nil, model.Wrap("playlist", err)
		}
		ids = append(ids, tid)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Wrap("playlist", err)
	}

	out := make([]*model.Track, 0, len(ids))
	for _, tid := range ids {
		tracks, _, err := e.store.ListTracks("id = ?", []any{tid}, model.SortTitle, 1, 0)
		if err != nil {
			return nil, err
		}
		if len(tracks) == 1 {
			out = append(out, tracks[0])
		}
	}
	return out, nil
}

// AddTracks appends trackIDs to the end of a static playlist, assigning
// dense positions starting at the current count.
func (e *Engine) AddTracks(id model.ID, trackIDs []model.ID) error {
	return e.store.WithTx(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM playlist_tracks WHERE playlist_id = ?`, string(id)).Scan(&count); err != nil {
			return model.Wrap("playlist", err)
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		for i, tid := range trackIDs {
			if _, err := tx.Exec(`INSERT INTO playlist_tracks(playlist_id, track_id, position, added_at) VALUES (?,?,?,?)`,
				string(id), string(tid), count+i, now); err != nil {
				return model.Wrap("playlist", err)
			}
		}
		return nil
	})
}

// RemoveTracks deletes the entries at the given positions and compacts
// the remaining positions down to keep them dense.
func (e *Engine) RemoveTracks(id model.ID, positions []int) error {
	return e.store.WithTx(func(tx *sql.Tx) error {
		for _, pos := range positions {
			if _, err := tx.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ? AND position = ?`, string(id), pos); err != nil {
				return model.Wrap("playlist", err)
			}
		}
		return compactPositions(tx, id)
	})
}

func compactPositions(tx *sql.Tx, id model.ID) error {
	rows, err := tx.Query(`SELECT track_id FROM playlist_tracks WHERE playlist_id = ? ORDER BY position`, string(id))
	if err != nil {
		return model.Wrap("playlist", err)
	}
	var trackIDs []string
	for rows.Next() {
		var tid string
		if err := rows.Scan(&tid); err != nil {
			rows.Close()
			return model.Wrap("playlist", err)
		}
		trackIDs = append(trackIDs, tid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.Wrap("playlist", err)
	}

	// Stage to negative positions first so the intermediate state never
	// collides with the unique (playlist_id, position) index, mirroring
	// the teacher's MoveIndices staging trick.
	for i, tid := range trackIDs {
		if _, err := tx.Exec(`UPDATE playlist_tracks SET position = ? WHERE playlist_id = ? AND track_id = ?`,
			-(i + 1), string(id), tid); err != nil {
			return model.Wrap("playlist", err)
		}
	}
	for i, tid := range trackIDs {
		if _, err := tx.Exec(`UPDATE playlist_tracks SET position = ? WHERE playlist_id = ? AND track_id = ?`,
			i, string(id), tid); err != nil {
			return model.Wrap("playlist", err)
		}
	}
	return nil
}

// MoveIndices shifts the entries at positions by delta, reassigning the
// positions of displaced entries so the result stays a dense [0, n)
// range. Uses negative-position staging to avoid unique-index collisions
// mid-reorder, exactly as the teacher's playlists.MoveIndices does.
func (e *Engine) MoveIndices(id model.ID, positions []int, delta int) error {
	return e.store.WithTx(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM playlist_tracks WHERE playlist_id = ?`, string(id)).Scan(&count); err != nil {
			return model.Wrap("playlist", err)
		}

		calc := newPositionCalculator(positions, count, delta)
		if !calc.canMove() {
			return model.Invalid("playlist", "move out of bounds")
		}

		affected := map[int]bool{}
		for _, p := range calc.sortedPositions() {
			affected[p] = true
		}
		for _, r := range calc.shiftRanges() {
			for p := r.start; p < r.end; p++ {
				affected[p] = true
			}
		}
		stage := -1
		posToTrack := map[int]string{}
		for p := range affected {
			var tid string
			if err := tx.QueryRow(`SELECT track_id FROM playlist_tracks WHERE playlist_id = ? AND position = ?`, string(id), p).Scan(&tid); err != nil {
				return model.Wrap("playlist", err)
			}
			posToTrack[p] = tid
			if _, err := tx.Exec(`UPDATE playlist_tracks SET position = ? WHERE playlist_id = ? AND track_id = ?`,
				stage, string(id), tid); err != nil {
				return model.Wrap("playlist", err)
			}
			stage--
		}

		for _, r := range calc.shiftRanges() {
			for p := r.start; p < r.end; p++ {
				tid := posToTrack[p]
				if _, err := tx.Exec(`UPDATE playlist_tracks SET position = ? WHERE playlist_id = ? AND track_id = ?`,
					p+r.delta, string(id), tid); err != nil {
					return model.Wrap("playlist", err)
				}
			}
		}
		for _, p := range calc.sortedPositions() {
			tid := posToTrack[p]
			if _, err := tx.Exec(`UPDATE playlist_tracks SET position = ? WHERE playlist_id = ? AND track_id = ?`,
				p+delta, string(id), tid); err != nil {
				return model.Wrap("playlist", err)
			}
		}
		return nil
	})
}

// ClearTracks removes every entry from a static playlist.
func (e *Engine) ClearTracks(id model.ID) error {
	_, err := e.store.DB().Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, string(id))
	return model.Wrap("playlist", err)
}

// Materialize evaluates a smart playlist's query, applies its sort, and
// truncates by max_tracks and cumulative max_duration (seconds). Purely
// a read — nothing is persisted.
func (e *Engine) Materialize(ctx context.Context, p *model.Playlist) ([]*model.Track, error) {
	if p.Kind != model.PlaylistSmart || p.Query == nil {
		return nil, model.Invalid("playlist", "not a smart playlist")
	}
	q, err := query.Parse(*p.Query)
	if err != nil {
		return nil, err
	}
	where, args := query.Lower(q)

	sort := model.SortTitle
	if p.Sort != nil {
		sort = *p.Sort
	}

	limit := 1 << 20
	if p.MaxTracks != nil {
		limit = *p.MaxTracks
	}

	tracks, _, err := e.store.ListTracks(where, args, sort, limit, 0)
	if err != nil {
		return nil, err
	}

	if p.MaxDuration == nil {
		return tracks, nil
	}
	capMS := int64(*p.MaxDuration) * 1000
	var total int64
	out := make([]*model.Track, 0, len(tracks))
	for _, t := range tracks {
		total += t.DurationMS
		out = append(out, t)
		if total >= capMS {
			break
		}
	}
	return out, nil
}
