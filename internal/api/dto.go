package api

import (
	"sort"

	"phonograph/internal/library"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type LibraryResponse struct {
	Generation   string `json:"generation"`
	CompletedAt  int64  `json:"completed_at"`
	Songs        int    `json:"songs"`
	Albums       int    `json:"albums"`
	Artists      int    `json:"artists"`
	AlbumArtists int    `json:"album_artists"`
	Genres       int    `json:"genres"`
	Playlists    int    `json:"playlists"`
	SkippedRows  int    `json:"skipped_rows"`
	Indexing     bool   `json:"indexing"`
	LastError    string `json:"last_error,omitempty"`
}

type IndexResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SongsResponse struct {
	Songs []*library.Song `json:"songs"`
}

type AlbumSummary struct {
	*library.Album
	SongCount int `json:"song_count"`
}

type AlbumsResponse struct {
	Albums []AlbumSummary `json:"albums"`
}

type AlbumResponse struct {
	AlbumSummary
	Songs []*library.Song `json:"songs"`
}

type ArtistSummary struct {
	*library.Artist
	SongCount  int `json:"song_count"`
	AlbumCount int `json:"album_count"`
}

type ArtistsResponse struct {
	Artists []ArtistSummary `json:"artists"`
}

type GenreSummary struct {
	*library.Genre
	SongCount int `json:"song_count"`
}

type GenresResponse struct {
	Genres []GenreSummary `json:"genres"`
}

type DateSummary struct {
	*library.Date
	SongCount int `json:"song_count"`
}

type DatesResponse struct {
	Dates []DateSummary `json:"dates"`
}

type PlaylistSummary struct {
	*library.Playlist
	SongCount int `json:"song_count"`
}

type PlaylistsResponse struct {
	Playlists []PlaylistSummary `json:"playlists"`
}

type PlaylistResponse struct {
	PlaylistSummary
	Songs []*library.Song `json:"songs"`
}

// FolderNode mirrors library.FolderNode with deterministic child order.
type FolderNode struct {
	Name    string          `json:"name"`
	AlbumID *int64          `json:"album_id,omitempty"`
	Folders []FolderNode    `json:"folders,omitempty"`
	Songs   []*library.Song `json:"songs,omitempty"`
}

type FolderPathsResponse struct {
	Paths []string `json:"paths"`
}

func newFolderNode(n *library.FolderNode) FolderNode {
	node := FolderNode{
		Name:    n.Name,
		AlbumID: n.AlbumID(),
		Songs:   n.Songs,
	}
	names := make([]string, 0, len(n.Folders))
	for name := range n.Folders {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		node.Folders = append(node.Folders, newFolderNode(n.Folders[name]))
	}
	return node
}

func albumSummaries(albums []*library.Album) []AlbumSummary {
	out := make([]AlbumSummary, 0, len(albums))
	for _, a := range albums {
		out = append(out, AlbumSummary{Album: a, SongCount: len(a.Songs)})
	}
	return out
}

func artistSummaries(artists []*library.Artist) []ArtistSummary {
	out := make([]ArtistSummary, 0, len(artists))
	for _, a := range artists {
		out = append(out, ArtistSummary{Artist: a, SongCount: len(a.Songs), AlbumCount: len(a.Albums)})
	}
	return out
}

func playlistSummary(p *library.Playlist) PlaylistSummary {
	return PlaylistSummary{Playlist: p, SongCount: len(p.Songs)}
}
