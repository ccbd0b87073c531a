// Package httpapi is Apollo's HTTP surface (spec §6): a thin chi-based
// REST layer over the catalog store, query engine, and playlist
// engine. Paginated list endpoints return {items, total, limit,
// offset}; failures return {error_type, message} mapped from
// model.Kind to an HTTP status.
//
// Grounded on tomtom215-cartographus's chi.NewRouter()/r.Route grouping
// and recoverer-middleware convention, generalized down from its much
// larger multi-tenant surface to Apollo's closed resource list.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/apollo-music/apollo/internal/model"
	"github.com/apollo-music/apollo/internal/playlist"
	"github.com/apollo-music/apollo/internal/query"
	"github.com/apollo-music/apollo/internal/store"
	"github.com/apollo-music/apollo/internal/tags"
)

// validate is shared across requests; it's stateless and safe for
// concurrent use once built.
var validate = validator.New()

// Server exposes Apollo's catalog over HTTP.
type Server struct {
	store    *store.Store
	playlist *playlist.Engine
	log      *slog.Logger
}

// New builds the chi router for the given store/playlist engine pair.
func New(st *store.Store, pl *playlist.Engine, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{store: st, playlist: pl, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tracks", s.handleListTracks)
		r.Get("/tracks/{id}", s.handleGetTrack)
		r.Get("/tracks/{id}/cover", s.handleGetTrackCover)
		r.Get("/albums", s.handleListAlbums)
		r.Get("/albums/{id}", s.handleGetAlbum)
		r.Get("/albums/{id}/tracks", s.handleGetAlbumTracks)
		r.Get("/search", s.handleSearch)
		r.Get("/stats", s.handleStats)

		r.Route("/playlists", func(r chi.Router) {
			r.Get("/", s.handleListPlaylists)
			r.Post("/", s.handleCreatePlaylist)
			r.Get("/{id}", s.handleGetPlaylist)
			r.Delete("/{id}", s.handleDeletePlaylist)
			r.Get("/{id}/tracks", s.handleGetPlaylistTracks)
			r.Post("/{id}/tracks", s.handleAddPlaylistTracks)
			r.Delete("/{id}/tracks", s.handleRemovePlaylistTracks)
		})
	})

	return r
}

// page is the envelope every list endpoint returns, per spec §6.
type page struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// errorEnvelope is the shape every failed request returns.
type errorEnvelope struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a model.Error's Kind to the spec §6 status table
// (404/400/409/500); any other error is treated as an internal error.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var merr *model.Error
	status := http.StatusInternalServerError
	kind := "internal"

	if errors.As(err, &merr) {
		switch merr.Kind {
		case model.ErrNotFound:
			status, kind = http.StatusNotFound, "not_found"
		case model.ErrInvalid:
			status, kind = http.StatusBadRequest, "invalid"
		case model.ErrConflict:
			status, kind = http.StatusConflict, "conflict"
		case model.ErrUnreadable:
			status, kind = http.StatusBadRequest, "unreadable"
		default:
			status, kind = http.StatusInternalServerError, "internal"
		}
	} else {
		s.log.Error("unhandled error", "error", err)
	}

	writeJSON(w, status, errorEnvelope{ErrorType: kind, Message: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pagination reads limit/offset from the query string, defaulting to
// 50/0, and enforces spec §6's bounds (1-500, >=0) via validate.Var.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, 0, model.Invalid("query", "limit must be an integer")
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, 0, model.Invalid("query", "offset must be an integer")
		}
		offset = n
	}

	if err := validate.Var(limit, "min=1,max=500"); err != nil {
		return 0, 0, model.Invalid("query", "limit must be between 1 and 500")
	}
	if err := validate.Var(offset, "min=0"); err != nil {
		return 0, 0, model.Invalid("query", "offset must not be negative")
	}
	return limit, offset, nil
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tracks, total, err := s.store.ListTracks("", nil, model.SortTitle, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Items: tracks, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	track, err := s.store.GetTrack(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// handleGetTrackCover serves a track's cover art: embedded picture frame
// first, falling back to a folder image alongside the file (tags.ExtractCoverArt).
// This is the read half of the single tags read/write path spec §1
// permits beyond the catalog itself.
func (s *Server) handleGetTrackCover(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	track, err := s.store.GetTrack(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, mimeType, err := tags.ExtractCoverArt(track.Path)
	if err != nil {
		s.writeError(w, model.Unreadable(track.Path, err.Error()))
		return
	}
	if data == nil {
		s.writeError(w, model.NotFound("cover", string(id)))
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Write(data)
}

func (s *Server) handleListAlbums(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	albums, total, err := s.store.ListAlbums(r.Context(), "", nil, model.SortTitle, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Items: albums, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetAlbum(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	album, err := s.store.GetAlbum(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, album)
}

func (s *Server) handleGetAlbumTracks(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	tracks, err := s.store.GetAlbumTracks(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Items: tracks, Total: len(tracks), Limit: len(tracks), Offset: 0})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if err := validate.Var(q, "required"); err != nil {
		s.writeError(w, model.Invalid("query", "q is required"))
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	parsed, err := query.Parse(q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	where, args := query.Lower(parsed)
	if where == "" {
		tracks, total, err := s.store.ListTracks("", nil, model.SortTitle, limit, offset)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page{Items: tracks, Total: total, Limit: limit, Offset: offset})
		return
	}

	tracks, total, err := s.store.ListTracks(where, args, model.SortTitle, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Items: tracks, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	trackCount, err := s.store.CountTracks()
	if err != nil {
		s.writeError(w, err)
		return
	}
	albumCount, err := s.store.CountAlbums()
	if err != nil {
		s.writeError(w, err)
		return
	}
	playlistCount, err := s.playlist.Count()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"tracks":    trackCount,
		"albums":    albumCount,
		"playlists": playlistCount,
	})
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.playlist.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Items: playlists, Total: len(playlists), Limit: len(playlists), Offset: 0})
}

type createPlaylistRequest struct {
	Name        string             `json:"name" validate:"required"`
	Description *string            `json:"description"`
	Kind        model.PlaylistKind `json:"kind" validate:"omitempty,oneof=static smart"`
	Query       *string            `json:"query"`
	Sort        *model.SortOrder   `json:"sort"`
	MaxTracks   *int               `json:"max_tracks" validate:"omitempty,min=1"`
	MaxDuration *int               `json:"max_duration_secs" validate:"omitempty,min=1"`
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, model.Invalid("playlist", "malformed request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, model.Invalid("playlist", err.Error()))
		return
	}

	now := time.Now().UTC()
	p := &model.Playlist{
		ID:          model.NewID(),
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
		Query:       req.Query,
		Sort:        req.Sort,
		MaxTracks:   req.MaxTracks,
		MaxDuration: req.MaxDuration,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.playlist.Create(p); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	p, err := s.playlist.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	if err := s.playlist.Delete(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPlaylistTracks(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	tracks, err := s.playlist.Tracks(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Items: tracks, Total: len(tracks), Limit: len(tracks), Offset: 0})
}

type trackIDsRequest struct {
	TrackIDs []model.ID `json:"track_ids" validate:"required,min=1,dive,required"`
}

func (s *Server) handleAddPlaylistTracks(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	var req trackIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, model.Invalid("playlist", "malformed request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, model.Invalid("playlist", err.Error()))
		return
	}
	if err := s.playlist.AddTracks(id, req.TrackIDs); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type positionsRequest struct {
	Positions []int `json:"positions" validate:"required,min=1,dive,min=0"`
}

func (s *Server) handleRemovePlaylistTracks(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	var req positionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, model.Invalid("playlist", "malformed request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, model.Invalid("playlist", err.Error()))
		return
	}
	if err := s.playlist.RemoveTracks(id, req.Positions); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
