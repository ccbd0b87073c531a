package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/apollo-music/apollo/internal/model"
	"github.com/apollo-music/apollo/internal/normalize"
)

const albumColumns = `id, title, artist, year, genres, track_count, disc_count,
	musicbrainz_id, cover_art_path, added_at, modified_at`

func scanAlbum(row interface{ Scan(...any) error }) (*model.Album, error) {
	var a model.Album
	var year sql.NullInt64
	var genres string
	var mbid, cover sql.NullString
	var addedAt, modifiedAt string

	err := row.Scan(&a.ID, &a.Title, &a.Artist, &year, &genres, &a.TrackCount, &a.DiscCount,
		&mbid, &cover, &addedAt, &modifiedAt)
	if err != nil {
		return nil, err
	}
	a.Year = nullIntPtr(year)
	a.Genres = unmarshalGenres(genres)
	if mbid.Valid {
		a.MusicBrainzID = &mbid.String
	}
	if cover.Valid {
		a.CoverArtPath = &cover.String
	}
	a.AddedAt = parseTime(addedAt)
	a.ModifiedAt = parseTime(modifiedAt)
	return &a, nil
}

// AddAlbum inserts a new album.
func (s *Store) AddAlbum(a *model.Album) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error { return insertAlbum(tx, a) })
}

func insertAlbum(tx *sql.Tx, a *model.Album) error {
	_, err := tx.Exec(fmt.Sprintf(`INSERT INTO albums(%s, norm_title, norm_artist) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`, albumColumns),
		string(a.ID), a.Title, a.Artist, intPtrToNull(a.Year), marshalGenres(a.Genres),
		a.TrackCount, a.DiscCount, strPtrToNull(a.MusicBrainzID), strPtrToNull(a.CoverArtPath),
		formatTime(a.AddedAt), formatTime(a.ModifiedAt),
		normalize.Key(a.Title), normalize.Key(a.Artist),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.AlreadyExists("album", a.Artist+"/"+a.Title)
		}
		return model.Wrap("album", err)
	}
	return nil
}

// FindAlbumByNormalizedKey looks up an album by (normalized artist,
// normalized title) — the album-reconciliation matching key used by the
// import pipeline (spec §4.7.f).
func (s *Store) FindAlbumByNormalizedKey(tx *sql.Tx, artist, title string) (*model.Album, error) {
	q := fmt.Sprintf(`SELECT %s FROM albums WHERE norm_artist = ? AND norm_title = ?`, albumColumns)
	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(q, normalize.Key(artist), normalize.Key(title))
	} else {
		row = s.db.QueryRow(q, normalize.Key(artist), normalize.Key(title))
	}
	a, err := scanAlbum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.Wrap("album", err)
	}
	return a, nil
}

// UpdateAlbumAggregates rewrites an album's year/genres/disc_count in
// place, used by the import pipeline when a new track joins an existing
// album (spec §4.7.f).
func (s *Store) UpdateAlbumAggregates(tx *sql.Tx, a *model.Album) error {
	_, err := tx.Exec(`UPDATE albums SET year=?, genres=?, disc_count=?, modified_at=? WHERE id=?`,
		intPtrToNull(a.Year), marshalGenres(a.Genres), a.DiscCount, formatTime(a.ModifiedAt), string(a.ID))
	return model.Wrap("album", err)
}

// InsertAlbumTx inserts an album as part of an in-flight transaction
// (used by the import pipeline, which owns the transaction boundary).
func (s *Store) InsertAlbumTx(tx *sql.Tx, a *model.Album) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return insertAlbum(tx, a)
}

// InsertTrackTx inserts a track as part of an in-flight transaction.
func (s *Store) InsertTrackTx(tx *sql.Tx, t *model.Track) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return insertTrack(tx, t)
}

// UpdateTrackTx sets a track's path and modified_at within an in-flight
// transaction; no other column is written and no row is inserted. The
// import pipeline uses it to record a moved file.
func (s *Store) UpdateTrackTx(tx *sql.Tx, t *model.Track) error {
	_, err := tx.Exec(`UPDATE tracks SET path=?, modified_at=? WHERE id=?`, t.Path, formatTime(t.ModifiedAt), string(t.ID))
	return model.Wrap("track", err)
}

// GetAlbum fetches an album by id.
func (s *Store) GetAlbum(id model.ID) (*model.Album, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM albums WHERE id = ?`, albumColumns), string(id))
	a, err := scanAlbum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("album", string(id))
	}
	if err != nil {
		return nil, model.Wrap("album", err)
	}
	return a, nil
}

// ListAlbums returns a page of albums plus the total matching count.
func (s *Store) ListAlbums(ctx context.Context, where string, args []any, sort model.SortOrder, limit, offset int) ([]*model.Album, int, error) {
	whereSQL := ""
	if where != "" {
		whereSQL = "WHERE " + where
	}
	var total int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM albums %s`, whereSQL), args...).Scan(&total); err != nil {
		return nil, 0, model.Wrap("album", err)
	}

	order := "title COLLATE NOCASE, id"
	switch sort {
	case model.SortArtist:
		order = "artist COLLATE NOCASE, id"
	case model.SortYearAsc:
		order = "year ASC, id"
	case model.SortYearDesc:
		order = "year DESC, id"
	case model.SortAddedAsc:
		order = "added_at ASC, id"
	case model.SortAddedDesc:
		order = "added_at DESC, id"
	case model.SortRandom:
		order = "RANDOM()"
	}

	q := fmt.Sprintf(`SELECT %s FROM albums %s ORDER BY %s LIMIT ? OFFSET ?`, albumColumns, whereSQL, order)
	rows, err := s.db.QueryContext(ctx, q, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, model.Wrap("album", err)
	}
	defer rows.Close()

	var out []*model.Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, 0, model.Wrap("album", err)
		}
		out = append(out, a)
	}
	return out, total, model.Wrap("album", rows.Err())
}

// RemoveAlbum deletes an album. Per invariant 2, child tracks are not
// cascaded; their album_id becomes null via ON DELETE SET NULL.
func (s *Store) RemoveAlbum(id model.ID) error {
	res, err := s.db.Exec(`DELETE FROM albums WHERE id = ?`, string(id))
	if err != nil {
		return model.Wrap("album", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return model.NotFound("album", string(id))
	}
	return nil
}

// CountAlbums returns the total number of albums.
func (s *Store) CountAlbums() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM albums`).Scan(&n)
	return n, model.Wrap("album", err)
}
