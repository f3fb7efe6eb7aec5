package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"phonograph/internal/library"
	"phonograph/internal/media"
	"phonograph/internal/refresh"
)

const Version = "0.1.0"

// LibrarySource exposes the published library snapshots.
type LibrarySource interface {
	Latest() *refresh.Snapshot
	LastError() error
	Refresh(ctx context.Context) (*refresh.Snapshot, error)
}

type IndexerInterface interface {
	IndexRoots(ctx context.Context, roots []string) (*media.IndexSummary, error)
	IsIndexing() bool
}

type CoverProvider interface {
	SongCover(song *library.Song) (*media.Artwork, error)
	AlbumCover(album *library.Album) (*media.Artwork, error)
}

type Handler struct {
	library LibrarySource
	logger  zerolog.Logger
	covers  CoverProvider

	indexer  IndexerInterface
	indexCtx context.Context
	roots    []string
}

func NewHandler(lib LibrarySource, logger zerolog.Logger) *Handler {
	return &Handler{
		library:  lib,
		logger:   logger,
		indexCtx: context.Background(),
	}
}

// SetIndexer enables POST /library/index. Index passes started through the
// API run under ctx.
func (h *Handler) SetIndexer(ctx context.Context, indexer IndexerInterface, roots []string) {
	h.indexer = indexer
	h.indexCtx = ctx
	h.roots = roots
}

func (h *Handler) SetCovers(covers CoverProvider) {
	h.covers = covers
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

func (h *Handler) GetLibrary(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	res := snap.Result
	resp := LibraryResponse{
		Generation:   snap.Generation.String(),
		CompletedAt:  snap.CompletedAt.Unix(),
		Songs:        len(res.Songs),
		Albums:       len(res.Albums),
		Artists:      len(res.Artists),
		AlbumArtists: len(res.AlbumArtists),
		Genres:       len(res.Genres),
		Playlists:    len(snap.Playlists),
		SkippedRows:  res.SkippedRows,
		Indexing:     h.indexer != nil && h.indexer.IsIndexing(),
	}
	if err := h.library.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) IndexLibrary(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Indexer not initialized")
		return
	}

	if h.indexer.IsIndexing() {
		writeJSON(w, http.StatusOK, IndexResponse{
			Status:  "in_progress",
			Message: "Index pass already in progress",
		})
		return
	}

	if len(h.roots) == 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "No library roots configured")
		return
	}

	go func() {
		_, err := h.indexer.IndexRoots(h.indexCtx, h.roots)
		switch {
		case errors.Is(err, media.ErrIndexInProgress):
			h.logger.Debug().Msg("index pass already running")
		case err != nil:
			h.logger.Error().Err(err).Msg("index pass failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, IndexResponse{
		Status:  "started",
		Message: "Library index pass started",
	})
}

// RefreshLibrary rescans the index and answers with the new summary.
func (h *Handler) RefreshLibrary(w http.ResponseWriter, r *http.Request) {
	if _, err := h.library.Refresh(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("refresh failed")
		writeLibraryError(w, err)
		return
	}
	h.GetLibrary(w, r)
}

func (h *Handler) ListSongs(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SongsResponse{Songs: snap.Result.Songs})
}

func (h *Handler) GetSong(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	song := h.findSong(w, r, snap)
	if song == nil {
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (h *Handler) GetSongCover(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	song := h.findSong(w, r, snap)
	if song == nil {
		return
	}
	if h.covers == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Cover service not available")
		return
	}
	art, err := h.covers.SongCover(song)
	h.writeCover(w, art, err)
}

func (h *Handler) findSong(w http.ResponseWriter, r *http.Request, snap *refresh.Snapshot) *library.Song {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid song id")
		return nil
	}
	// The id map also holds songs filtered out of the song list.
	if song, ok := snap.Result.IDMap[id]; ok {
		return song
	}
	for _, song := range snap.Result.Songs {
		if song.ID == id {
			return song
		}
	}
	writeError(w, http.StatusNotFound, "SONG_NOT_FOUND", "Song not found")
	return nil
}

func (h *Handler) ListAlbums(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	if !built(w, snap.Result.Albums != nil) {
		return
	}
	writeJSON(w, http.StatusOK, AlbumsResponse{Albums: albumSummaries(snap.Result.Albums)})
}

func (h *Handler) GetAlbum(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	album := h.findAlbum(w, r, snap)
	if album == nil {
		return
	}
	writeJSON(w, http.StatusOK, AlbumResponse{
		AlbumSummary: AlbumSummary{Album: album, SongCount: len(album.Songs)},
		Songs:        album.Songs,
	})
}

func (h *Handler) GetAlbumCover(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	album := h.findAlbum(w, r, snap)
	if album == nil {
		return
	}
	if h.covers == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Cover service not available")
		return
	}
	art, err := h.covers.AlbumCover(album)
	h.writeCover(w, art, err)
}

// findAlbum resolves {id}; "unknown" addresses the bucket of songs without
// an album id.
func (h *Handler) findAlbum(w http.ResponseWriter, r *http.Request, snap *refresh.Snapshot) *library.Album {
	if !built(w, snap.Result.Albums != nil) {
		return nil
	}
	raw := chi.URLParam(r, "id")
	var id *int64
	if raw != "unknown" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid album id")
			return nil
		}
		id = &n
	}
	for _, album := range snap.Result.Albums {
		if (id == nil && album.ID == nil) || (id != nil && album.ID != nil && *album.ID == *id) {
			return album
		}
	}
	writeError(w, http.StatusNotFound, "ALBUM_NOT_FOUND", "Album not found")
	return nil
}

func (h *Handler) ListArtists(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok || !built(w, snap.Result.Artists != nil) {
		return
	}
	writeJSON(w, http.StatusOK, ArtistsResponse{Artists: artistSummaries(snap.Result.Artists)})
}

func (h *Handler) ListAlbumArtists(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok || !built(w, snap.Result.AlbumArtists != nil) {
		return
	}
	writeJSON(w, http.StatusOK, ArtistsResponse{Artists: artistSummaries(snap.Result.AlbumArtists)})
}

func (h *Handler) ListGenres(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok || !built(w, snap.Result.Genres != nil) {
		return
	}
	genres := make([]GenreSummary, 0, len(snap.Result.Genres))
	for _, g := range snap.Result.Genres {
		genres = append(genres, GenreSummary{Genre: g, SongCount: len(g.Songs)})
	}
	writeJSON(w, http.StatusOK, GenresResponse{Genres: genres})
}

func (h *Handler) ListDates(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok || !built(w, snap.Result.Dates != nil) {
		return
	}
	dates := make([]DateSummary, 0, len(snap.Result.Dates))
	for _, d := range snap.Result.Dates {
		dates = append(dates, DateSummary{Date: d, SongCount: len(d.Songs)})
	}
	writeJSON(w, http.StatusOK, DatesResponse{Dates: dates})
}

// ListPlaylists returns the recently added view followed by the stored
// playlists.
func (h *Handler) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	playlists := make([]PlaylistSummary, 0, len(snap.Playlists)+1)
	if snap.RecentlyAdded != nil {
		playlists = append(playlists, playlistSummary(snap.RecentlyAdded.Playlist()))
	}
	for _, p := range snap.Playlists {
		playlists = append(playlists, playlistSummary(p))
	}
	writeJSON(w, http.StatusOK, PlaylistsResponse{Playlists: playlists})
}

func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid playlist id")
		return
	}
	if id == library.RecentlyAddedID && snap.RecentlyAdded != nil {
		writePlaylist(w, snap.RecentlyAdded.Playlist())
		return
	}
	for _, p := range snap.Playlists {
		if p.ID != nil && *p.ID == id {
			writePlaylist(w, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "PLAYLIST_NOT_FOUND", "Playlist not found")
}

// GetRecentlyAdded serves the recently added view, optionally re-windowed
// with ?since=<unix seconds>. The snapshot's own view is left untouched.
func (h *Handler) GetRecentlyAdded(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	view := snap.RecentlyAdded
	if since := r.URL.Query().Get("since"); since != "" {
		cutoff, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid since parameter")
			return
		}
		view = library.NewRecentlyAdded(snap.Result.Songs, cutoff)
	}
	if view == nil {
		writeError(w, http.StatusNotFound, "PLAYLIST_NOT_FOUND", "Recently added view not available")
		return
	}
	writePlaylist(w, view.Playlist())
}

func (h *Handler) GetFolders(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok || !built(w, snap.Result.Folders != nil) {
		return
	}
	writeJSON(w, http.StatusOK, newFolderNode(snap.Result.Folders))
}

func (h *Handler) GetShallowFolders(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok || !built(w, snap.Result.ShallowFolders != nil) {
		return
	}
	writeJSON(w, http.StatusOK, newFolderNode(snap.Result.ShallowFolders))
}

func (h *Handler) GetFolderPaths(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok || !built(w, snap.Result.FolderPaths != nil) {
		return
	}
	paths := make([]string, 0, len(snap.Result.FolderPaths))
	for p := range snap.Result.FolderPaths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	writeJSON(w, http.StatusOK, FolderPathsResponse{Paths: paths})
}

// snapshot fetches the current library state and handles the ETag. It
// returns false when the response has already been written.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (*refresh.Snapshot, bool) {
	snap := h.library.Latest()
	if snap == nil {
		msg := "Library has not been loaded yet"
		if err := h.library.LastError(); err != nil {
			msg = err.Error()
		}
		writeError(w, http.StatusServiceUnavailable, "LIBRARY_NOT_READY", msg)
		return nil, false
	}

	etag := `"` + snap.Generation.String() + `"`
	w.Header().Set("ETag", etag)
	if r.Method == http.MethodGet && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return nil, false
	}
	return snap, true
}

func (h *Handler) writeCover(w http.ResponseWriter, art *media.Artwork, err error) {
	if errors.Is(err, media.ErrNoArtwork) {
		writeError(w, http.StatusNotFound, "COVER_NOT_FOUND", "No cover available")
		return
	}
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to load cover")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load cover")
		return
	}

	w.Header().Set("Content-Type", art.MIMEType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(art.Data)
}

func built(w http.ResponseWriter, ok bool) bool {
	if !ok {
		writeError(w, http.StatusNotFound, "COLLECTION_DISABLED", "Collection is not built by this server")
	}
	return ok
}

func writePlaylist(w http.ResponseWriter, p *library.Playlist) {
	writeJSON(w, http.StatusOK, PlaylistResponse{
		PlaylistSummary: playlistSummary(p),
		Songs:           p.Songs,
	})
}

func writeLibraryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, library.ErrPermission):
		writeError(w, http.StatusForbidden, "PERMISSION_DENIED", err.Error())
	case errors.Is(err, library.ErrConfiguration):
		writeError(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "REQUEST_CANCELED", err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, "LIBRARY_UNAVAILABLE", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
