// Package model defines Apollo's domain types: tracks, albums, playlists
// and the error taxonomy shared across internal packages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID is an opaque 128-bit identifier backed by a UUID.
type ID string

// NewID generates a fresh random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID validates that s is a well-formed ID.
func ParseID(s string) (ID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", &Error{Kind: ErrInvalid, Entity: "id", Key: s, Detail: err.Error()}
	}
	return ID(s), nil
}

func (id ID) String() string { return string(id) }

// Format is the closed enum of audio container kinds Apollo recognizes.
type Format string

const (
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatOpus    Format = "opus"
	FormatOgg     Format = "ogg"
	FormatM4A     Format = "m4a"
	FormatUnknown Format = "unknown"
)

// UnknownArtist is the sentinel used when a file has no artist tag.
const UnknownArtist = "Unknown Artist"

// Track is a single catalogued audio file.
type Track struct {
	ID      ID
	Path    string
	Title   string
	Artist  string

	AlbumArtist string
	AlbumID     *ID
	AlbumTitle  *string

	TrackNumber *int
	TrackTotal  *int
	DiscNumber  *int
	DiscTotal   *int

	Year   *int
	Genres []string

	DurationMS int64
	Bitrate    *int
	SampleRate *int
	Channels   *int
	Format     Format

	MusicBrainzID *string
	AcoustID      *string

	FileHash string

	AddedAt    time.Time
	ModifiedAt time.Time
}

// NewTrack constructs a Track, assigning a fresh ID and setting both
// timestamps to now (invariant 8); genres start empty. It does not check
// durationMS or any other field; Validate does that.
func NewTrack(path, title, artist string, durationMS int64, fileHash string, format Format, now time.Time) *Track {
	t := &Track{
		ID:         NewID(),
		Path:       path,
		Title:      title,
		Artist:     artist,
		DurationMS: durationMS,
		FileHash:   fileHash,
		Format:     format,
		AddedAt:    now,
		ModifiedAt: now,
	}
	return t
}

// Validate checks that path and file_hash are set and enforces
// invariants 6, 7, 8. Path uniqueness (invariant 1) is left to the store.
func (t *Track) Validate() error {
	if t.Path == "" {
		return Invalid("track", "path is required")
	}
	if t.FileHash == "" {
		return Invalid("track", "file_hash is required")
	}
	if t.DurationMS < 0 {
		return Invalid("track", "duration_ms must be >= 0")
	}
	for _, g := range t.Genres {
		if g == "" {
			return Invalid("track", "genres must not contain empty strings")
		}
	}
	if t.ModifiedAt.Before(t.AddedAt) {
		return Invalid("track", "modified_at must be >= added_at")
	}
	return nil
}

// NormalizeGenres trims each genre, drops empties, preserves order.
func NormalizeGenres(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, g := range raw {
		g = strings.TrimSpace(g)
		if g != "" {
			out = append(out, g)
		}
	}
	return out
}

// Album groups tracks sharing a normalized artist + title.
type Album struct {
	ID         ID
	Title      string
	Artist     string
	Year       *int
	Genres     []string
	TrackCount int
	DiscCount  int

	MusicBrainzID *string
	CoverArtPath  *string

	AddedAt    time.Time
	ModifiedAt time.Time
}

// NewAlbum constructs an Album with the invariant defaults (track_count=0,
// disc_count=1) and fresh id/timestamps.
func NewAlbum(title, artist string, now time.Time) *Album {
	return &Album{
		ID:         NewID(),
		Title:      title,
		Artist:     artist,
		DiscCount:  1,
		AddedAt:    now,
		ModifiedAt: now,
	}
}

func (a *Album) Validate() error {
	if a.DiscCount < 1 {
		return Invalid("album", "disc_count must be >= 1")
	}
	if a.TrackCount < 0 {
		return Invalid("album", "track_count must be >= 0")
	}
	if a.ModifiedAt.Before(a.AddedAt) {
		return Invalid("album", "modified_at must be >= added_at")
	}
	return nil
}

// PlaylistKind is the closed set of playlist kinds.
type PlaylistKind string

const (
	PlaylistStatic PlaylistKind = "static"
	PlaylistSmart  PlaylistKind = "smart"
)

// SortOrder is the closed set of sort orders usable by listings, search
// and smart playlists.
type SortOrder string

const (
	SortTitle     SortOrder = "title"
	SortArtist    SortOrder = "artist"
	SortAlbum     SortOrder = "album"
	SortYearAsc   SortOrder = "year_asc"
	SortYearDesc  SortOrder = "year_desc"
	SortAddedAsc  SortOrder = "added_asc"
	SortAddedDesc SortOrder = "added_desc"
	SortRandom    SortOrder = "random"
)

// Playlist is an ordered, named collection of tracks, static or smart.
type Playlist struct {
	ID          ID
	Name        string
	Description *string
	Kind        PlaylistKind
	Query       *string // required iff Kind == PlaylistSmart
	Sort        *SortOrder
	MaxTracks   *int
	MaxDuration *int // seconds

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Playlist) Validate() error {
	if p.Kind == PlaylistSmart && (p.Query == nil || *p.Query == "") {
		return Invalid("playlist", "query is required for smart playlists")
	}
	if p.Kind == PlaylistStatic && p.Query != nil && *p.Query != "" {
		return Invalid("playlist", "query must be empty for static playlists")
	}
	return nil
}

// PlaylistEntry is one position in a static playlist.
type PlaylistEntry struct {
	PlaylistID ID
	TrackID    ID
	Position   int
	AddedAt    time.Time
}
