package library

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// UnknownArtist is the media index's placeholder for a missing artist tag.
const UnknownArtist = "<unknown>"

// DefaultArtworkBase is the prefix of synthesized per-song artwork URIs.
const DefaultArtworkBase = "content://media/external/audio/media"

var leadingTrackNumber = regexp.MustCompile(`^(\d+)\..*`)

// Collections selects which derived collections a scan builds.
type Collections struct {
	Albums         bool
	Artists        bool
	AlbumArtists   bool
	Genres         bool
	Dates          bool
	IDMap          bool
	Folders        bool
	ShallowFolders bool
	FolderPaths    bool
}

// AllCollections builds every derived collection.
func AllCollections() Collections {
	return Collections{
		Albums:         true,
		Artists:        true,
		AlbumArtists:   true,
		Genres:         true,
		Dates:          true,
		IDMap:          true,
		Folders:        true,
		ShallowFolders: true,
		FolderPaths:    true,
	}
}

type Config struct {
	MinDurationSeconds   int64
	Blacklist            []string
	IncludeExtraFormats  bool
	EnhancedCoverReading bool
	ArtworkBase          string
	// Location is used to split the date-taken column; nil means local time.
	Location *time.Location
	Build    Collections
}

// Validate checks the configuration without touching any data source.
func (c Config) Validate() error {
	if c.EnhancedCoverReading && !c.Build.Folders {
		return &ConfigurationError{Reason: "enhanced cover reading requires folder tree building"}
	}
	if c.MinDurationSeconds < 0 {
		return &ConfigurationError{Reason: "minimum duration must not be negative"}
	}
	return nil
}

// Result is the immutable aggregate of one scan. Collections not requested
// in Config.Build are nil.
type Result struct {
	Songs          []*Song
	Albums         []*Album
	Artists        []*Artist
	AlbumArtists   []*Artist
	Genres         []*Genre
	Dates          []*Date
	IDMap          map[int64]*Song
	Folders        *FolderNode
	ShallowFolders *FolderNode
	FolderPaths    map[string]struct{}
	SkippedRows    int
}

type Scanner struct {
	rows   RowSource
	dirs   DirLister
	perms  PermissionChecker
	logger zerolog.Logger
}

// NewScanner creates a scanner over rows. A nil dirs lists the local
// filesystem; a nil perms grants every capability.
func NewScanner(rows RowSource, dirs DirLister, perms PermissionChecker, logger zerolog.Logger) *Scanner {
	if dirs == nil {
		dirs = OSDirLister{}
	}
	return &Scanner{
		rows:   rows,
		dirs:   dirs,
		perms:  perms,
		logger: logger.With().Str("component", "scanner").Logger(),
	}
}

// Scan reads every qualifying row once and builds the library aggregate.
// Configuration and permission errors are returned before any row is read.
func (s *Scanner) Scan(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkPermissions(cfg); err != nil {
		return nil, err
	}

	start := time.Now()
	it, err := s.rows.Rows(ctx, RowQuery{IncludeExtraFormats: cfg.IncludeExtraFormats})
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer it.Close()

	p := newPass(cfg, s.dirs, s.logger)
	for i := 0; it.Next(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.add(i, it.Row())
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	res := p.finish()
	s.logger.Info().
		Int("songs", len(res.Songs)).
		Int("albums", len(p.albums.order)).
		Int("skipped", res.SkippedRows).
		Dur("duration", time.Since(start)).
		Msg("library scan completed")
	return res, nil
}

func (s *Scanner) checkPermissions(cfg Config) error {
	if s.perms == nil {
		return nil
	}
	if !s.perms.CanReadAudio() {
		return &PermissionError{Capability: CapabilityAudio, Message: "audio permission is not granted"}
	}
	if cfg.EnhancedCoverReading && !s.perms.CanReadImages() {
		return &PermissionError{Capability: CapabilityImages, Message: "enhanced cover reading requested but image permission is not granted"}
	}
	return nil
}

// bucketMap is an insertion-ordered map that also accepts a nil key.
type bucketMap[K comparable, V any] struct {
	items   map[K]V
	null    V
	hasNull bool
	order   []V
}

func newBucketMap[K comparable, V any]() *bucketMap[K, V] {
	return &bucketMap[K, V]{items: make(map[K]V)}
}

func (b *bucketMap[K, V]) get(key *K) (V, bool) {
	if key == nil {
		return b.null, b.hasNull
	}
	v, ok := b.items[*key]
	return v, ok
}

func (b *bucketMap[K, V]) getOrPut(key *K, create func() V) V {
	if v, ok := b.get(key); ok {
		return v
	}
	v := create()
	if key == nil {
		b.null, b.hasNull = v, true
	} else {
		b.items[*key] = v
	}
	b.order = append(b.order, v)
	return v
}

type coverHome struct {
	dir  string
	node *FolderNode
}

// pass owns every accumulation structure of one scan.
type pass struct {
	cfg       Config
	dirs      DirLister
	logger    zerolog.Logger
	blacklist map[string]struct{}

	songs        []*Song
	idMap        map[int64]*Song
	artists      *bucketMap[int64, *Artist]
	artistIDs    map[string]*int64
	albums       *bucketMap[int64, *Album]
	albumArtists *bucketMap[string, *Artist]
	genres       *bucketMap[string, *Genre]
	dates        map[int64]*Date
	dateOrder    []*Date
	root         *FolderNode
	shallow      *FolderNode
	folders      map[string]struct{}
	coverHomes   map[int64]coverHome
	skipped      int
}

func newPass(cfg Config, dirs DirLister, logger zerolog.Logger) *pass {
	p := &pass{
		cfg:          cfg,
		dirs:         dirs,
		logger:       logger,
		blacklist:    make(map[string]struct{}, len(cfg.Blacklist)),
		artists:      newBucketMap[int64, *Artist](),
		artistIDs:    make(map[string]*int64),
		albums:       newBucketMap[int64, *Album](),
		albumArtists: newBucketMap[string, *Artist](),
		genres:       newBucketMap[string, *Genre](),
		dates:        make(map[int64]*Date),
		folders:      make(map[string]struct{}),
	}
	for _, dir := range cfg.Blacklist {
		p.blacklist[filepath.Clean(dir)] = struct{}{}
	}
	if cfg.Build.IDMap {
		p.idMap = make(map[int64]*Song)
	}
	if cfg.Build.Folders {
		p.root = NewFolderNode("storage")
	}
	if cfg.Build.ShallowFolders {
		p.shallow = NewFolderNode("shallow")
	}
	if cfg.EnhancedCoverReading {
		p.coverHomes = make(map[int64]coverHome)
	}
	return p
}

func (p *pass) add(index int, r Row) {
	if err := checkRequired(index, r); err != nil {
		p.skipped++
		p.logger.Warn().Err(err).Msg("skipping row")
		return
	}

	dir := parentDir(r.Path)
	filtered := dir == "" ||
		(r.Duration != nil && *r.Duration < p.cfg.MinDurationSeconds*1000)
	if !filtered {
		_, filtered = p.blacklist[dir]
	}
	if filtered && p.idMap == nil {
		return
	}

	song := p.newSong(r)
	if p.idMap != nil {
		p.idMap[song.ID] = song
	}
	if filtered {
		return
	}

	p.songs = append(p.songs, song)

	artist := p.artists.getOrPut(r.ArtistID, func() *Artist {
		return &Artist{ID: copyID(r.ArtistID), Name: song.Artist}
	})
	artist.Songs = append(artist.Songs, song)
	if song.Artist != nil {
		if _, ok := p.artistIDs[*song.Artist]; !ok {
			p.artistIDs[*song.Artist] = copyID(r.ArtistID)
		}
	}

	album := p.albums.getOrPut(r.AlbumID, func() *Album {
		return &Album{ID: copyID(r.AlbumID), Title: r.Album}
	})
	album.Songs = append(album.Songs, song)

	genre := p.genres.getOrPut(r.Genre, func() *Genre {
		return &Genre{ID: genreID(r.Genre), Name: r.Genre}
	})
	genre.Songs = append(genre.Songs, song)

	p.addDate(song)

	if p.root != nil {
		node := p.root.Descend(song.Path)
		node.AddSong(song, r.AlbumID)
		if p.coverHomes != nil && r.AlbumID != nil {
			if _, ok := p.coverHomes[*r.AlbumID]; !ok {
				p.coverHomes[*r.AlbumID] = coverHome{dir: dir, node: node}
			}
		}
	}
	if p.shallow != nil {
		p.shallow.AddShallow(song, r.AlbumID, song.Path)
	}
	p.folders[dir] = struct{}{}
}

func (p *pass) addDate(song *Song) {
	var year int64
	var title *string
	if song.Year != nil {
		year = int64(*song.Year)
		title = ptr(strconv.Itoa(*song.Year))
	}
	d, ok := p.dates[year]
	if !ok {
		d = &Date{ID: year, Title: title}
		p.dates[year] = d
		p.dateOrder = append(p.dateOrder, d)
	}
	d.Songs = append(d.Songs, song)
}

func (p *pass) newSong(r Row) *Song {
	var path, uri string
	if r.Path != nil {
		path = *r.Path
		uri = fileURI(path)
	}
	artist := r.Artist
	if artist != nil && (*artist == UnknownArtist || *artist == "") {
		artist = nil
	}
	year := r.Year
	if year != nil && *year == 0 {
		year = nil
	}
	track, disc := normalizeTrack(r.Track, r.Disc, r.CDTrackNumber, filepath.Base(path), *r.Title)

	song := &Song{
		ID:            *r.ID,
		Title:         *r.Title,
		Artist:        artist,
		ArtistID:      r.ArtistID,
		Album:         r.Album,
		AlbumID:       r.AlbumID,
		AlbumArtist:   r.AlbumArtist,
		Year:          year,
		DiscNumber:    disc,
		TrackNumber:   track,
		CDTrackNumber: r.CDTrackNumber,
		Genre:         r.Genre,
		GenreID:       r.GenreID,
		Path:          path,
		URI:           uri,
		MimeType:      *r.MimeType,
		Duration:      r.Duration,
		DateAdded:     r.DateAdded,
		DateModified:  r.DateModified,
		ArtworkURI:    artworkURI(p.cfg.ArtworkBase, *r.ID),
		Writer:        r.Writer,
		Composer:      r.Composer,
		Compilation:   r.Compilation,
		Author:        r.Author,
	}
	if r.DateTaken != nil {
		if ms, err := strconv.ParseInt(*r.DateTaken, 10, 64); err == nil {
			loc := p.cfg.Location
			if loc == nil {
				loc = time.Local
			}
			t := time.UnixMilli(ms).In(loc)
			song.RecordingYear = ptr(t.Year())
			song.RecordingMonth = ptr(int(t.Month()))
			song.RecordingDay = ptr(t.Day())
		}
	}
	return song
}

func (p *pass) finish() *Result {
	needAlbums := p.cfg.Build.Albums || p.cfg.Build.AlbumArtists || p.cfg.Build.Artists
	if needAlbums {
		for _, album := range p.albums.order {
			p.finishAlbum(album)
		}
	}
	for _, dir := range p.cfg.Blacklist {
		p.folders[filepath.Clean(dir)] = struct{}{}
	}

	res := &Result{
		Songs:          p.songs,
		IDMap:          p.idMap,
		Folders:        p.root,
		ShallowFolders: p.shallow,
		SkippedRows:    p.skipped,
	}
	if res.Songs == nil {
		res.Songs = []*Song{}
	}
	if p.cfg.Build.Albums {
		res.Albums = nonNil(p.albums.order)
	}
	if p.cfg.Build.Artists {
		res.Artists = nonNil(p.artists.order)
	}
	if p.cfg.Build.AlbumArtists {
		res.AlbumArtists = nonNil(p.albumArtists.order)
	}
	if p.cfg.Build.Genres {
		res.Genres = nonNil(p.genres.order)
	}
	if p.cfg.Build.Dates {
		res.Dates = nonNil(p.dateOrder)
	}
	if p.cfg.Build.FolderPaths {
		res.FolderPaths = p.folders
	}
	return res
}

func (p *pass) finishAlbum(album *Album) {
	if album.inferred {
		return
	}
	album.inferred = true

	if guess, ok := InferAlbumArtist(album.Songs, p.artistIDs); ok {
		album.AlbumArtist = ptr(guess.Name)
		album.AlbumArtistID = guess.ID
	} else {
		p.logger.Debug().
			Interface("album_id", album.ID).
			Msg("album artist could not be inferred")
	}

	for _, s := range album.Songs {
		if s.Year != nil && (album.Year == nil || *s.Year > *album.Year) {
			album.Year = ptr(*s.Year)
		}
	}

	aa := p.albumArtists.getOrPut(album.AlbumArtist, func() *Artist {
		id := copyID(album.AlbumArtistID)
		if id == nil && album.AlbumArtist != nil {
			id = copyID(p.artistIDs[*album.AlbumArtist])
		}
		return &Artist{ID: id, Name: album.AlbumArtist}
	})
	aa.Albums = append(aa.Albums, album)
	aa.Songs = append(aa.Songs, album.Songs...)

	if album.AlbumArtistID != nil {
		if artist, ok := p.artists.get(album.AlbumArtistID); ok {
			artist.Albums = append(artist.Albums, album)
		}
	}

	if len(album.Songs) > 0 {
		album.Cover = ptr(album.Songs[0].ArtworkURI)
	}
	if p.coverHomes == nil || album.ID == nil {
		return
	}
	home, ok := p.coverHomes[*album.ID]
	if !ok || !eqPtr(home.node.AlbumID(), album.ID) {
		return
	}
	cover, err := FindBestCover(p.dirs, home.dir)
	if err != nil {
		p.logger.Debug().Err(err).Str("dir", home.dir).Msg("cover search failed")
		return
	}
	if cover != "" {
		album.Cover = ptr(fileURI(cover))
	}
}

func checkRequired(index int, r Row) error {
	switch {
	case r.ID == nil:
		return &RowError{Index: index, Field: "id"}
	case r.Title == nil:
		return &RowError{Index: index, Field: "title"}
	case r.MimeType == nil:
		return &RowError{Index: index, Field: "mime_type"}
	}
	return nil
}

// normalizeTrack fills in a missing track number from the CD track tag or
// the file name, then splits packed disc*1000+track values.
func normalizeTrack(track, disc *int, cdTrack *string, fileName, title string) (*int, *int) {
	track, disc = copyInt(track), copyInt(disc)
	if track == nil && cdTrack != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(*cdTrack)); err == nil {
			track = &n
		}
	}
	if track == nil {
		if m := leadingTrackNumber.FindStringSubmatch(fileName); m != nil && !strings.HasPrefix(title, m[1]) {
			if n, err := strconv.Atoi(m[1]); err == nil {
				track = &n
			}
		}
	}
	if track != nil && *track >= 1000 {
		d := *track / 1000
		if disc == nil || *disc == 0 || *disc == d {
			disc = &d
			t := *track % 1000
			track = &t
		}
	}
	return track, disc
}

func parentDir(path *string) string {
	if path == nil || *path == "" {
		return ""
	}
	dir := filepath.Dir(*path)
	if dir == "." {
		return ""
	}
	return dir
}

func genreID(name *string) *int64 {
	if name == nil {
		return nil
	}
	h := fnv.New64a()
	h.Write([]byte(*name))
	return ptr(int64(h.Sum64()))
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}

func artworkURI(base string, id int64) string {
	if base == "" {
		base = DefaultArtworkBase
	}
	return strings.TrimSuffix(base, "/") + "/" + strconv.FormatInt(id, 10) + "/albumart"
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
