package storage

import "time"

// AudioRecord is what the indexer knows about one audio file.
type AudioRecord struct {
	Path        string
	Title       string
	Artist      *string
	Album       *string
	AlbumArtist *string
	// AlbumKey disambiguates albums with equal titles: the album artist tag,
	// or the file's directory when there is none.
	AlbumKey    string
	Year        *int
	Track       *int
	Disc        *int
	MimeType    string
	Duration    *int64 // milliseconds
	Genre       *string
	Composer    *string
	Writer      *string
	Compilation *string
	Author      *string
	DateTaken   *string
	IsMusic     bool
	Size        int64
	ModifiedAt  time.Time
}

// PlaylistRecord is a playlist file with members already resolved to audio ids.
type PlaylistRecord struct {
	Name       string
	Path       string
	ModifiedAt time.Time
	SongIDs    []int64
}

// Stats are row counts of the index tables.
type Stats struct {
	Audio     int `json:"audio"`
	Music     int `json:"music"`
	Artists   int `json:"artists"`
	Albums    int `json:"albums"`
	Playlists int `json:"playlists"`
}
