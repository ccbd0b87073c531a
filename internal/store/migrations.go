package store

import "database/sql"

// migration is one step in the monotonic schema sequence. The teacher
// applies a single best-effort initSchema blob with ad-hoc ALTER TABLE
// calls whose errors are discarded; Apollo instead tracks applied
// versions explicitly in schema_version, per spec §6.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "0001_initial_schema",
		sql: `
CREATE TABLE IF NOT EXISTS albums (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	artist         TEXT NOT NULL,
	norm_title     TEXT NOT NULL,
	norm_artist    TEXT NOT NULL,
	year           INTEGER,
	genres         TEXT NOT NULL DEFAULT '[]',
	track_count    INTEGER NOT NULL DEFAULT 0,
	disc_count     INTEGER NOT NULL DEFAULT 1,
	musicbrainz_id TEXT,
	cover_art_path TEXT,
	added_at       TEXT NOT NULL,
	modified_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums(artist);
CREATE INDEX IF NOT EXISTS idx_albums_title ON albums(title);
CREATE INDEX IF NOT EXISTS idx_albums_year ON albums(year);
CREATE INDEX IF NOT EXISTS idx_albums_mbid ON albums(musicbrainz_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_albums_norm ON albums(norm_artist, norm_title);

CREATE TABLE IF NOT EXISTS tracks (
	id             TEXT PRIMARY KEY,
	path           TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL,
	artist         TEXT NOT NULL,
	album_artist   TEXT NOT NULL DEFAULT '',
	album_id       TEXT REFERENCES albums(id) ON DELETE SET NULL,
	album_title    TEXT,
	track_number   INTEGER,
	track_total    INTEGER,
	disc_number    INTEGER,
	disc_total     INTEGER,
	year           INTEGER,
	genres         TEXT NOT NULL DEFAULT '[]',
	duration_ms    INTEGER NOT NULL,
	bitrate        INTEGER,
	sample_rate    INTEGER,
	channels       INTEGER,
	format         TEXT NOT NULL,
	musicbrainz_id TEXT,
	acoustid       TEXT,
	file_hash      TEXT NOT NULL,
	added_at       TEXT NOT NULL,
	modified_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist);
CREATE INDEX IF NOT EXISTS idx_tracks_album_id ON tracks(album_id);
CREATE INDEX IF NOT EXISTS idx_tracks_album_title ON tracks(album_title);
CREATE INDEX IF NOT EXISTS idx_tracks_title ON tracks(title);
CREATE INDEX IF NOT EXISTS idx_tracks_year ON tracks(year);
CREATE INDEX IF NOT EXISTS idx_tracks_hash ON tracks(file_hash);
CREATE INDEX IF NOT EXISTS idx_tracks_mbid ON tracks(musicbrainz_id);
`,
	},
	{
		version: 2,
		name:    "0002_playlists",
		sql: `
CREATE TABLE IF NOT EXISTS playlists (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT,
	kind         TEXT NOT NULL,
	query        TEXT,
	sort         TEXT,
	max_tracks   INTEGER,
	max_duration INTEGER,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS playlist_tracks (
	playlist_id TEXT NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
	track_id    TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	added_at    TEXT NOT NULL,
	PRIMARY KEY (playlist_id, track_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_playlist_tracks_position ON playlist_tracks(playlist_id, position);
`,
	},
	{
		version: 3,
		name:    "0003_fts",
		sql: `
CREATE VIRTUAL TABLE IF NOT EXISTS tracks_fts USING fts5(
	title, artist, album_artist, album_title,
	track_id UNINDEXED,
	tokenize = 'trigram'
);

CREATE TRIGGER IF NOT EXISTS trg_tracks_fts_ai AFTER INSERT ON tracks BEGIN
	INSERT INTO tracks_fts(title, artist, album_artist, album_title, track_id)
	VALUES (new.title, new.artist, new.album_artist, coalesce(new.album_title, ''), new.id);
END;

CREATE TRIGGER IF NOT EXISTS trg_tracks_fts_ad AFTER DELETE ON tracks BEGIN
	DELETE FROM tracks_fts WHERE track_id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS trg_tracks_fts_au AFTER UPDATE ON tracks BEGIN
	DELETE FROM tracks_fts WHERE track_id = old.id;
	INSERT INTO tracks_fts(title, artist, album_artist, album_title, track_id)
	VALUES (new.title, new.artist, new.album_artist, coalesce(new.album_title, ''), new.id);
END;
`,
	},
	{
		version: 4,
		name:    "0004_hooks_log",
		sql: `
CREATE TABLE IF NOT EXISTS hook_failures (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	script     TEXT NOT NULL,
	hook       TEXT NOT NULL,
	detail     TEXT NOT NULL,
	occurred_at TEXT NOT NULL
);
`,
	},
}

func currentVersion(db dbLike) (int, error) {
	var v int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, err
	}
	return v, nil
}

type dbLike interface {
	QueryRow(query string, args ...any) *sql.Row
}

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER NOT NULL,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return err
	}

	cur, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= cur {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version, name, applied_at) VALUES (?, ?, datetime('now'))`, m.version, m.name); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
