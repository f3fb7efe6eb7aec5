package library

import "context"

// Row is one audio item as returned by the media index. Pointer fields are
// nullable columns; ID, Title and MimeType are required.
type Row struct {
	ID            *int64
	Title         *string
	Artist        *string
	ArtistID      *int64
	Album         *string
	AlbumID       *int64
	AlbumArtist   *string
	Path          *string
	Year          *int
	MimeType      *string
	Track         *int
	Disc          *int
	Duration      *int64
	DateAdded     *int64
	DateModified  *int64
	Genre         *string
	GenreID       *int64
	CDTrackNumber *string
	Compilation   *string
	Composer      *string
	Writer        *string
	Author        *string
	DateTaken     *string
}

// RowQuery narrows the rows a RowSource returns.
type RowQuery struct {
	// IncludeExtraFormats adds non-music MIME types (wav, ogg, aac, midi).
	IncludeExtraFormats bool
}

// RowIterator walks rows the same way database/sql.Rows does.
type RowIterator interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// RowSource enumerates qualifying audio rows ordered by title using
// locale-aware collation.
type RowSource interface {
	Rows(ctx context.Context, q RowQuery) (RowIterator, error)
}

// PlaylistSource enumerates stored playlists with members in play order.
type PlaylistSource interface {
	RawPlaylists(ctx context.Context) ([]RawPlaylist, error)
}

// DirLister lists the plain file names directly inside a directory.
type DirLister interface {
	ListFiles(dir string) ([]string, error)
}

// PermissionChecker reports the capabilities granted to the scanner.
type PermissionChecker interface {
	CanReadAudio() bool
	CanReadImages() bool
}

type ChangeKind int

const (
	ChangeAudio ChangeKind = iota
	ChangePlaylists
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAudio:
		return "audio"
	case ChangePlaylists:
		return "playlists"
	default:
		return "unknown"
	}
}

// Change is a notification that an index changed. Version grows
// monotonically per kind.
type Change struct {
	Kind    ChangeKind
	Version uint64
}

// SliceRows adapts an in-memory row slice to RowIterator.
type SliceRows struct {
	rows []Row
	pos  int
}

func NewSliceRows(rows []Row) *SliceRows {
	return &SliceRows{rows: rows, pos: -1}
}

func (s *SliceRows) Next() bool {
	if s.pos+1 >= len(s.rows) {
		s.pos = len(s.rows)
		return false
	}
	s.pos++
	return true
}

func (s *SliceRows) Row() Row     { return s.rows[s.pos] }
func (s *SliceRows) Err() error   { return nil }
func (s *SliceRows) Close() error { return nil }
