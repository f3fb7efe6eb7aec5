package library

import "slices"

// Song is one audio item reconstructed from a media index row.
type Song struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Artist        *string `json:"artist,omitempty"`
	ArtistID      *int64  `json:"artist_id,omitempty"`
	Album         *string `json:"album,omitempty"`
	AlbumID       *int64  `json:"album_id,omitempty"`
	AlbumArtist   *string `json:"album_artist,omitempty"`
	Year          *int    `json:"year,omitempty"`
	DiscNumber    *int    `json:"disc_number,omitempty"`
	TrackNumber   *int    `json:"track_number,omitempty"`
	CDTrackNumber *string `json:"cd_track_number,omitempty"`
	Genre         *string `json:"genre,omitempty"`
	GenreID       *int64  `json:"genre_id,omitempty"`
	Path          string  `json:"-"`
	URI           string  `json:"uri"`
	MimeType      string  `json:"mime_type"`
	Duration      *int64  `json:"duration,omitempty"` // milliseconds
	DateAdded     *int64  `json:"date_added,omitempty"`
	DateModified  *int64  `json:"date_modified,omitempty"`
	ArtworkURI    string  `json:"artwork_uri"`

	Writer      *string `json:"writer,omitempty"`
	Composer    *string `json:"composer,omitempty"`
	Compilation *string `json:"compilation,omitempty"`
	Author      *string `json:"author,omitempty"`

	RecordingYear  *int `json:"recording_year,omitempty"`
	RecordingMonth *int `json:"recording_month,omitempty"`
	RecordingDay   *int `json:"recording_day,omitempty"`
}

// Album groups songs sharing one album id. A nil ID is the unknown-album bucket.
type Album struct {
	ID            *int64  `json:"id"`
	Title         *string `json:"title"`
	AlbumArtist   *string `json:"album_artist"`
	AlbumArtistID *int64  `json:"album_artist_id"`
	Year          *int    `json:"year"`
	Cover         *string `json:"cover"`
	Songs         []*Song `json:"-"`

	inferred bool
}

// Artist is used for both the song-artist and the album-artist index.
type Artist struct {
	ID     *int64   `json:"id"`
	Name   *string  `json:"name"`
	Songs  []*Song  `json:"-"`
	Albums []*Album `json:"-"`
}

type Genre struct {
	ID    *int64  `json:"id"`
	Name  *string `json:"name"`
	Songs []*Song `json:"-"`
}

// Date is a release-year bucket; ID 0 holds songs without a year.
type Date struct {
	ID    int64   `json:"id"`
	Title *string `json:"title"`
	Songs []*Song `json:"-"`
}

// RecentlyAddedID is the playlist id reserved for the recently-added view.
const RecentlyAddedID int64 = -1

type Playlist struct {
	ID    *int64  `json:"id"`
	Title *string `json:"title"`
	Songs []*Song `json:"-"`
}

// Equal reports whether two playlists have the same id, title and song sequence.
func (p *Playlist) Equal(o *Playlist) bool {
	if p == o {
		return true
	}
	if p == nil || o == nil {
		return false
	}
	return eqPtr(p.ID, o.ID) && eqPtr(p.Title, o.Title) && sameSongs(p.Songs, o.Songs)
}

// RawPlaylist is a stored playlist whose members are still song ids.
type RawPlaylist struct {
	ID      *int64
	Title   *string
	SongIDs []int64
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameSongs(a, b []*Song) bool {
	return slices.EqualFunc(a, b, func(x, y *Song) bool {
		return x.ID == y.ID
	})
}

func ptr[T any](v T) *T {
	return &v
}
