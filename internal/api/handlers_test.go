package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phonograph/internal/library"
	"phonograph/internal/media"
	"phonograph/internal/refresh"
)

type fakeLibrary struct {
	snap       *refresh.Snapshot
	lastErr    error
	refreshErr error
	refreshed  int
}

func (f *fakeLibrary) Latest() *refresh.Snapshot { return f.snap }
func (f *fakeLibrary) LastError() error          { return f.lastErr }

func (f *fakeLibrary) Refresh(context.Context) (*refresh.Snapshot, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.snap, nil
}

type fakeIndexer struct {
	mu       sync.Mutex
	indexing bool
	roots    []string
	done     chan struct{}
}

func (f *fakeIndexer) IsIndexing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexing
}

func (f *fakeIndexer) IndexRoots(_ context.Context, roots []string) (*media.IndexSummary, error) {
	f.mu.Lock()
	f.roots = roots
	f.mu.Unlock()
	close(f.done)
	return &media.IndexSummary{}, nil
}

type fakeCovers struct{}

func (fakeCovers) SongCover(song *library.Song) (*media.Artwork, error) {
	if song.ID == 1 {
		return &media.Artwork{Data: []byte("jpeg"), MIMEType: "image/jpeg"}, nil
	}
	return nil, media.ErrNoArtwork
}

func (fakeCovers) AlbumCover(*library.Album) (*media.Artwork, error) {
	return nil, errors.New("disk on fire")
}

func ptr[T any](v T) *T { return &v }

func testSnapshot() *refresh.Snapshot {
	s1 := &library.Song{ID: 1, Title: "One", AlbumID: ptr(int64(10)), DateAdded: ptr(int64(500))}
	s2 := &library.Song{ID: 2, Title: "Two", DateAdded: ptr(int64(100))}
	hidden := &library.Song{ID: 3, Title: "Jingle"}

	album := &library.Album{ID: ptr(int64(10)), Title: ptr("Album"), Songs: []*library.Song{s1}}
	unknown := &library.Album{Songs: []*library.Song{s2}}

	root := library.NewFolderNode("")
	root.Descend("/music/b/two.mp3").AddSong(s2, nil)
	root.Descend("/music/a/one.mp3").AddSong(s1, s1.AlbumID)

	songs := []*library.Song{s1, s2}
	return &refresh.Snapshot{
		Generation: uuid.MustParse("6f1c2a8e-9a3b-4c1d-8e2f-0123456789ab"),
		Result: &library.Result{
			Songs:       songs,
			Albums:      []*library.Album{album, unknown},
			Artists:     []*library.Artist{{ID: ptr(int64(7)), Name: ptr("Band"), Songs: songs, Albums: []*library.Album{album}}},
			Genres:      []*library.Genre{},
			Dates:       []*library.Date{{ID: 0, Songs: songs}},
			IDMap:       map[int64]*library.Song{1: s1, 2: s2, 3: hidden},
			Folders:     root,
			FolderPaths: map[string]struct{}{"/music/b": {}, "/music/a": {}},
		},
		Playlists: []*library.Playlist{
			{ID: ptr(int64(4)), Title: ptr("Mix"), Songs: []*library.Song{hidden, s1}},
		},
		RecentlyAdded: library.NewRecentlyAdded(songs, 200),
		CompletedAt:   time.Unix(1_700_000_000, 0),
	}
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/library", h.GetLibrary)
	r.Post("/library/index", h.IndexLibrary)
	r.Post("/library/refresh", h.RefreshLibrary)
	r.Get("/songs", h.ListSongs)
	r.Get("/songs/{id}", h.GetSong)
	r.Get("/songs/{id}/cover", h.GetSongCover)
	r.Get("/albums", h.ListAlbums)
	r.Get("/albums/{id}", h.GetAlbum)
	r.Get("/albums/{id}/cover", h.GetAlbumCover)
	r.Get("/artists", h.ListArtists)
	r.Get("/album-artists", h.ListAlbumArtists)
	r.Get("/genres", h.ListGenres)
	r.Get("/playlists", h.ListPlaylists)
	r.Get("/playlists/recent", h.GetRecentlyAdded)
	r.Get("/playlists/{id}", h.GetPlaylist)
	r.Get("/folders", h.GetFolders)
	r.Get("/folders/paths", h.GetFolderPaths)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestNotReadyBeforeFirstSnapshot(t *testing.T) {
	lib := &fakeLibrary{lastErr: errors.New("index locked")}
	router := newTestRouter(NewHandler(lib, zerolog.Nop()))

	rec := do(t, router, http.MethodGet, "/songs")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "LIBRARY_NOT_READY", body.Error.Code)
	assert.Equal(t, "index locked", body.Error.Message)
}

func TestETag(t *testing.T) {
	lib := &fakeLibrary{snap: testSnapshot()}
	router := newTestRouter(NewHandler(lib, zerolog.Nop()))

	rec := do(t, router, http.MethodGet, "/library")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	assert.Equal(t, `"6f1c2a8e-9a3b-4c1d-8e2f-0123456789ab"`, etag)

	summary := decode[LibraryResponse](t, rec)
	assert.Equal(t, 2, summary.Songs)
	assert.Equal(t, 2, summary.Albums)
	assert.Equal(t, 1, summary.Playlists)
	assert.Equal(t, int64(1_700_000_000), summary.CompletedAt)

	rec = do(t, router, http.MethodGet, "/library", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestGetSong(t *testing.T) {
	lib := &fakeLibrary{snap: testSnapshot()}
	router := newTestRouter(NewHandler(lib, zerolog.Nop()))

	tests := []struct {
		path   string
		status int
		title  string
	}{
		{"/songs/1", http.StatusOK, "One"},
		{"/songs/3", http.StatusOK, "Jingle"},
		{"/songs/99", http.StatusNotFound, ""},
		{"/songs/abc", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.path)
			require.Equal(t, tt.status, rec.Code)
			if tt.title != "" {
				assert.Equal(t, tt.title, decode[library.Song](t, rec).Title)
			}
		})
	}
}

func TestGetAlbum(t *testing.T) {
	lib := &fakeLibrary{snap: testSnapshot()}
	router := newTestRouter(NewHandler(lib, zerolog.Nop()))

	rec := do(t, router, http.MethodGet, "/albums/10")
	require.Equal(t, http.StatusOK, rec.Code)
	album := decode[AlbumResponse](t, rec)
	assert.Equal(t, "Album", *album.Title)
	assert.Equal(t, 1, album.SongCount)
	require.Len(t, album.Songs, 1)

	rec = do(t, router, http.MethodGet, "/albums/unknown")
	require.Equal(t, http.StatusOK, rec.Code)
	album = decode[AlbumResponse](t, rec)
	assert.Nil(t, album.ID)
	assert.Equal(t, int64(2), album.Songs[0].ID)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/albums/11").Code)
}

func TestCollectionNotBuilt(t *testing.T) {
	snap := testSnapshot()
	snap.Result.AlbumArtists = nil
	router := newTestRouter(NewHandler(&fakeLibrary{snap: snap}, zerolog.Nop()))

	rec := do(t, router, http.MethodGet, "/album-artists")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "COLLECTION_DISABLED", decode[ErrorResponse](t, rec).Error.Code)

	rec = do(t, router, http.MethodGet, "/genres")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[GenresResponse](t, rec).Genres)
}

func TestPlaylists(t *testing.T) {
	lib := &fakeLibrary{snap: testSnapshot()}
	router := newTestRouter(NewHandler(lib, zerolog.Nop()))

	rec := do(t, router, http.MethodGet, "/playlists")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[PlaylistsResponse](t, rec).Playlists
	require.Len(t, list, 2)
	assert.Equal(t, library.RecentlyAddedID, *list[0].ID)
	assert.Equal(t, 1, list[0].SongCount)
	assert.Equal(t, int64(4), *list[1].ID)
	assert.Equal(t, 2, list[1].SongCount)

	rec = do(t, router, http.MethodGet, "/playlists/-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[PlaylistResponse](t, rec).Songs, 1)

	rec = do(t, router, http.MethodGet, "/playlists/4")
	require.Equal(t, http.StatusOK, rec.Code)
	mix := decode[PlaylistResponse](t, rec)
	assert.Equal(t, int64(3), mix.Songs[0].ID)
	assert.Equal(t, int64(1), mix.Songs[1].ID)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/playlists/5").Code)
}

func TestRecentlyAddedWindow(t *testing.T) {
	snap := testSnapshot()
	router := newTestRouter(NewHandler(&fakeLibrary{snap: snap}, zerolog.Nop()))

	rec := do(t, router, http.MethodGet, "/playlists/recent?since=50")
	require.Equal(t, http.StatusOK, rec.Code)
	songs := decode[PlaylistResponse](t, rec).Songs
	require.Len(t, songs, 2)
	assert.Equal(t, int64(1), songs[0].ID)

	assert.Equal(t, int64(200), snap.RecentlyAdded.Cutoff())
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/playlists/recent?since=yesterday").Code)
}

func TestFolders(t *testing.T) {
	router := newTestRouter(NewHandler(&fakeLibrary{snap: testSnapshot()}, zerolog.Nop()))

	rec := do(t, router, http.MethodGet, "/folders")
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[FolderNode](t, rec)
	require.Len(t, root.Folders, 1)
	music := root.Folders[0]
	assert.Equal(t, "music", music.Name)
	require.Len(t, music.Folders, 2)
	assert.Equal(t, "a", music.Folders[0].Name)
	assert.Equal(t, int64(10), *music.Folders[0].AlbumID)
	assert.Equal(t, "b", music.Folders[1].Name)

	rec = do(t, router, http.MethodGet, "/folders/paths")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"/music/a", "/music/b"}, decode[FolderPathsResponse](t, rec).Paths)
}

func TestCovers(t *testing.T) {
	h := NewHandler(&fakeLibrary{snap: testSnapshot()}, zerolog.Nop())
	router := newTestRouter(h)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, router, http.MethodGet, "/songs/1/cover").Code)

	h.SetCovers(fakeCovers{})
	rec := do(t, router, http.MethodGet, "/songs/1/cover")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg", rec.Body.String())

	rec = do(t, router, http.MethodGet, "/songs/2/cover")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "COVER_NOT_FOUND", decode[ErrorResponse](t, rec).Error.Code)

	assert.Equal(t, http.StatusInternalServerError, do(t, router, http.MethodGet, "/albums/10/cover").Code)
}

func TestRefreshLibrary(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"permission", &library.PermissionError{Capability: library.CapabilityAudio, Message: "denied"}, http.StatusForbidden, "PERMISSION_DENIED"},
		{"configuration", &library.ConfigurationError{Reason: "bad"}, http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{"source", errors.Wrap(errors.New("database is locked"), "query rows"), http.StatusServiceUnavailable, "LIBRARY_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := &fakeLibrary{snap: testSnapshot(), refreshErr: tt.err}
			router := newTestRouter(NewHandler(lib, zerolog.Nop()))

			rec := do(t, router, http.MethodPost, "/library/refresh")
			assert.Equal(t, 1, lib.refreshed)
			require.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error.Code)
			}
		})
	}
}

func TestIndexLibrary(t *testing.T) {
	lib := &fakeLibrary{snap: testSnapshot()}
	h := NewHandler(lib, zerolog.Nop())
	router := newTestRouter(h)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, router, http.MethodPost, "/library/index").Code)

	ix := &fakeIndexer{done: make(chan struct{})}
	h.SetIndexer(context.Background(), ix, nil)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/library/index").Code)

	h.SetIndexer(context.Background(), ix, []string{"/music"})
	rec := do(t, router, http.MethodPost, "/library/index")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "started", decode[IndexResponse](t, rec).Status)

	select {
	case <-ix.done:
	case <-time.After(2 * time.Second):
		t.Fatal("index pass not started")
	}
	ix.mu.Lock()
	assert.Equal(t, []string{"/music"}, ix.roots)
	ix.indexing = true
	ix.mu.Unlock()

	rec = do(t, router, http.MethodPost, "/library/index")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "in_progress"))
}
