package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/apollo-music/apollo/internal/model"
)

func scanTrack(row interface{ Scan(...any) error }) (*model.Track, error) {
	var t model.Track
	var albumID, albumTitle, albumArtist sql.NullString
	var trackNumber, trackTotal, discNumber, discTotal, year, bitrate, sampleRate, channels sql.NullInt64
	var mbid, acoustid sql.NullString
	var genres string
	var addedAt, modifiedAt string
	var format string

	err := row.Scan(
		&t.ID, &t.Path, &t.Title, &t.Artist, &albumArtist, &albumID, &albumTitle,
		&trackNumber, &trackTotal, &discNumber, &discTotal, &year, &genres,
		&t.DurationMS, &bitrate, &sampleRate, &channels, &format,
		&mbid, &acoustid, &t.FileHash, &addedAt, &modifiedAt,
	)
	if err != nil {
		return nil, err
	}

	t.AlbumArtist = albumArtist.String
	if albumID.Valid {
		id := model.ID(albumID.String)
		t.AlbumID = &id
	}
	if albumTitle.Valid {
		t.AlbumTitle = &albumTitle.String
	}
	t.TrackNumber = nullIntPtr(trackNumber)
	t.TrackTotal = nullIntPtr(trackTotal)
	t.DiscNumber = nullIntPtr(discNumber)
	t.DiscTotal = nullIntPtr(discTotal)
	t.Year = nullIntPtr(year)
	t.Genres = unmarshalGenres(genres)
	t.Bitrate = nullIntPtr(bitrate)
	t.SampleRate = nullIntPtr(sampleRate)
	t.Channels = nullIntPtr(channels)
	t.Format = model.Format(format)
	if mbid.Valid {
		t.MusicBrainzID = &mbid.String
	}
	if acoustid.Valid {
		t.AcoustID = &acoustid.String
	}
	t.AddedAt = parseTime(addedAt)
	t.ModifiedAt = parseTime(modifiedAt)
	return &t, nil
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func intPtrToNull(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func strPtrToNull(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func idPtrToNull(p *model.ID) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}

const trackColumns = `id, path, title, artist, album_artist, album_id, album_title,
	track_number, track_total, disc_number, disc_total, year, genres,
	duration_ms, bitrate, sample_rate, channels, format,
	musicbrainz_id, acoustid, file_hash, added_at, modified_at`

// AddTrack inserts a new track, failing with AlreadyExists if path
// collides, and bumps its album's track_count within the same
// transaction.
func (s *Store) AddTrack(t *model.Track) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		return insertTrack(tx, t)
	})
}

func insertTrack(tx *sql.Tx, t *model.Track) error {
	_, err := tx.Exec(fmt.Sprintf(`INSERT INTO tracks(%s) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, trackColumns),
		string(t.ID), t.Path, t.Title, t.Artist, t.AlbumArtist,
		idPtrToNull(t.AlbumID), strPtrToNull(t.AlbumTitle),
		intPtrToNull(t.TrackNumber), intPtrToNull(t.TrackTotal),
		intPtrToNull(t.DiscNumber), intPtrToNull(t.DiscTotal),
		intPtrToNull(t.Year), marshalGenres(t.Genres),
		t.DurationMS, intPtrToNull(t.Bitrate), intPtrToNull(t.SampleRate), intPtrToNull(t.Channels),
		string(t.Format), strPtrToNull(t.MusicBrainzID), strPtrToNull(t.AcoustID), t.FileHash,
		formatTime(t.AddedAt), formatTime(t.ModifiedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.AlreadyExists("track", t.Path)
		}
		return model.Wrap("track", err)
	}
	if t.AlbumID != nil {
		if _, err := tx.Exec(`UPDATE albums SET track_count = track_count + 1 WHERE id = ?`, string(*t.AlbumID)); err != nil {
			return model.Wrap("album", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

// UpdateTrack upserts by id, recomputing album counters if album_id
// changed.
func (s *Store) UpdateTrack(t *model.Track) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		var oldAlbumID sql.NullString
		err := tx.QueryRow(`SELECT album_id FROM tracks WHERE id = ?`, string(t.ID)).Scan(&oldAlbumID)
		if errors.Is(err, sql.ErrNoRows) {
			// No row at this id: per spec §4.5, update_track is an
			// upsert, so fall back to inserting a new row.
			return insertTrack(tx, t)
		}
		if err != nil {
			return model.Wrap("track", err)
		}

		_, err = tx.Exec(`UPDATE tracks SET path=?, title=?, artist=?, album_artist=?, album_id=?, album_title=?,
			track_number=?, track_total=?, disc_number=?, disc_total=?, year=?, genres=?,
			duration_ms=?, bitrate=?, sample_rate=?, channels=?, format=?,
			musicbrainz_id=?, acoustid=?, file_hash=?, modified_at=?
			WHERE id=?`,
			t.Path, t.Title, t.Artist, t.AlbumArtist, idPtrToNull(t.AlbumID), strPtrToNull(t.AlbumTitle),
			intPtrToNull(t.TrackNumber), intPtrToNull(t.TrackTotal), intPtrToNull(t.DiscNumber), intPtrToNull(t.DiscTotal),
			intPtrToNull(t.Year), marshalGenres(t.Genres),
			t.DurationMS, intPtrToNull(t.Bitrate), intPtrToNull(t.SampleRate), intPtrToNull(t.Channels),
			string(t.Format), strPtrToNull(t.MusicBrainzID), strPtrToNull(t.AcoustID), t.FileHash,
			formatTime(t.ModifiedAt), string(t.ID),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return model.AlreadyExists("track", t.Path)
			}
			return model.Wrap("track", err)
		}

		newAlbumID := idPtrToNull(t.AlbumID)
		if oldAlbumID.String != newAlbumID.String {
			if oldAlbumID.Valid {
				if _, err := tx.Exec(`UPDATE albums SET track_count = track_count - 1 WHERE id = ?`, oldAlbumID.String); err != nil {
					return model.Wrap("album", err)
				}
			}
			if newAlbumID.Valid {
				if _, err := tx.Exec(`UPDATE albums SET track_count = track_count + 1 WHERE id = ?`, newAlbumID.String); err != nil {
					return model.Wrap("album", err)
				}
			}
		}
		return nil
	})
}

// RemoveTrack deletes a track, cascading to playlist entries (via FK)
// and decrementing its album's counter.
func (s *Store) RemoveTrack(id model.ID) error {
	return s.WithTx(func(tx *sql.Tx) error {
		var albumID sql.NullString
		err := tx.QueryRow(`SELECT album_id FROM tracks WHERE id = ?`, string(id)).Scan(&albumID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.NotFound("track", string(id))
		}
		if err != nil {
			return model.Wrap("track", err)
		}
		if _, err := tx.Exec(`DELETE FROM tracks WHERE id = ?`, string(id)); err != nil {
			return model.Wrap("track", err)
		}
		if albumID.Valid {
			if _, err := tx.Exec(`UPDATE albums SET track_count = track_count - 1 WHERE id = ?`, albumID.String); err != nil {
				return model.Wrap("album", err)
			}
		}
		return nil
	})
}

// GetTrack fetches a track by id.
func (s *Store) GetTrack(id model.ID) (*model.Track, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM tracks WHERE id = ?`, trackColumns), string(id))
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("track", string(id))
	}
	if err != nil {
		return nil, model.Wrap("track", err)
	}
	return t, nil
}

// GetTrackByPath fetches a track by its unique path.
func (s *Store) GetTrackByPath(path string) (*model.Track, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM tracks WHERE path = ?`, trackColumns), path)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("track", path)
	}
	if err != nil {
		return nil, model.Wrap("track", err)
	}
	return t, nil
}

// GetTrackByHash fetches the first track matching a content hash.
func (s *Store) GetTrackByHash(hash string) (*model.Track, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM tracks WHERE file_hash = ? LIMIT 1`, trackColumns), hash)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("track", hash)
	}
	if err != nil {
		return nil, model.Wrap("track", err)
	}
	return t, nil
}

// sortClause renders a SortOrder to an ORDER BY fragment, breaking ties
// on id for determinism except for random sort.
func sortClause(sort model.SortOrder) string {
	switch sort {
	case model.SortArtist:
		return "artist COLLATE NOCASE, id"
	case model.SortAlbum:
		return "album_title COLLATE NOCASE, id"
	case model.SortYearAsc:
		return "year ASC, id"
	case model.SortYearDesc:
		return "year DESC, id"
	case model.SortAddedAsc:
		return "added_at ASC, id"
	case model.SortAddedDesc:
		return "added_at DESC, id"
	case model.SortRandom:
		return "RANDOM()"
	default:
		return "title COLLATE NOCASE, id"
	}
}

// ListTracks returns a page of tracks plus the total matching count.
func (s *Store) ListTracks(where string, args []any, sort model.SortOrder, limit, offset int) ([]*model.Track, int, error) {
	return s.listTracksCtx(context.Background(), where, args, sort, limit, offset)
}

func (s *Store) listTracksCtx(ctx context.Context, where string, args []any, sort model.SortOrder, limit, offset int) ([]*model.Track, int, error) {
	whereSQL := ""
	if where != "" {
		whereSQL = "WHERE " + where
	}

	var total int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM tracks %s`, whereSQL), args...).Scan(&total); err != nil {
		return nil, 0, model.Wrap("track", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM tracks %s ORDER BY %s LIMIT ? OFFSET ?`, trackColumns, whereSQL, sortClause(sort))
	rows, err := s.db.QueryContext(ctx, q, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, model.Wrap("track", err)
	}
	defer rows.Close()

	var out []*model.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, 0, model.Wrap("track", err)
		}
		out = append(out, t)
	}
	return out, total, model.Wrap("track", rows.Err())
}

// SearchTracks evaluates an FTS5 trigram query against tracks_fts and
// joins back to the full track row.
func (s *Store) SearchTracks(ftsExpr string, limit, offset int) ([]*model.Track, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tracks_fts WHERE tracks_fts MATCH ?`, ftsExpr).Scan(&total); err != nil {
		return nil, 0, model.Wrap("track", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM tracks t
		JOIN tracks_fts f ON f.track_id = t.id
		WHERE tracks_fts MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?`, qualifyColumns("t", trackColumns))
	rows, err := s.db.Query(q, ftsExpr, limit, offset)
	if err != nil {
		return nil, 0, model.Wrap("track", err)
	}
	defer rows.Close()

	var out []*model.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, 0, model.Wrap("track", err)
		}
		out = append(out, t)
	}
	return out, total, model.Wrap("track", rows.Err())
}

func qualifyColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// CountTracks returns the total number of catalogued tracks.
func (s *Store) CountTracks() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tracks`).Scan(&n)
	return n, model.Wrap("track", err)
}

// ListDuplicateTracks returns every group of two or more tracks sharing
// a content hash, ordered within each group by path for determinism.
// Distinct from move detection: both rows have survived as separate
// catalog entries rather than one path overwriting the other.
func (s *Store) ListDuplicateTracks() ([][]*model.Track, error) {
	hashRows, err := s.db.Query(`SELECT file_hash FROM tracks GROUP BY file_hash HAVING COUNT(*) > 1`)
	if err != nil {
		return nil, model.Wrap("track", err)
	}
	var hashes []string
	for hashRows.Next() {
		var h string
		if err := hashRows.Scan(&h); err != nil {
			hashRows.Close()
			return nil, model.Wrap("track", err)
		}
		hashes = append(hashes, h)
	}
	hashRows.Close()
	if err := hashRows.Err(); err != nil {
		return nil, model.Wrap("track", err)
	}

	var groups [][]*model.Track
	for _, h := range hashes {
		q := fmt.Sprintf(`SELECT %s FROM tracks WHERE file_hash = ? ORDER BY path`, trackColumns)
		rows, err := s.db.Query(q, h)
		if err != nil {
			return nil, model.Wrap("track", err)
		}
		var group []*model.Track
		for rows.Next() {
			t, err := scanTrack(rows)
			if err != nil {
				rows.Close()
				return nil, model.Wrap("track", err)
			}
			group = append(group, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, model.Wrap("track", err)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// GetAlbumTracks returns an album's tracks ordered by (disc_number,
// track_number, title) with nulls last.
func (s *Store) GetAlbumTracks(albumID model.ID) ([]*model.Track, error) {
	q := fmt.Sprintf(`SELECT %s FROM tracks WHERE album_id = ?
		ORDER BY (disc_number IS NULL), disc_number, (track_number IS NULL), track_number, title`, trackColumns)
	rows, err := s.db.Query(q, string(albumID))
	if err != nil {
		return nil, model.Wrap("track", err)
	}
	defer rows.Close()

	var out []*model.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, model.Wrap("track", err)
		}
		out = append(out, t)
	}
	return out, model.Wrap("track", rows.Err())
}
