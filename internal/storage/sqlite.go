package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	_ "modernc.org/sqlite"

	"phonograph/internal/library"
)

// ExtraFormatMIMETypes are audio types indexed with is_music = 0. They are
// returned by Rows only when extra formats are requested.
var ExtraFormatMIMETypes = []string{"audio/x-wav", "audio/ogg", "audio/aac", "audio/midi"}

type SQLiteStorage struct {
	db   *sql.DB
	lang language.Tag

	mu       sync.Mutex
	versions map[library.ChangeKind]uint64
	watchers map[*watcher]struct{}
}

// NewSQLiteStorage opens (or creates) the media index at dbPath. collation
// is a BCP 47 tag used to order titles; an empty or invalid tag falls back
// to root collation.
func NewSQLiteStorage(dbPath, collation string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := newStorage(db, collation)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func newStorage(db *sql.DB, collation string) *SQLiteStorage {
	tag, err := language.Parse(collation)
	if err != nil {
		tag = language.Und
	}
	return &SQLiteStorage{
		db:   db,
		lang: tag,
		versions: map[library.ChangeKind]uint64{
			library.ChangeAudio:     1,
			library.ChangePlaylists: 1,
		},
		watchers: make(map[*watcher]struct{}),
	}
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS albums (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		album_key TEXT NOT NULL,
		UNIQUE(title, album_key)
	);

	CREATE TABLE IF NOT EXISTS audio (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		artist_id INTEGER REFERENCES artists(id),
		album_id INTEGER REFERENCES albums(id),
		album_artist TEXT,
		year INTEGER,
		mime_type TEXT NOT NULL,
		track INTEGER,
		disc INTEGER,
		duration INTEGER,
		genre TEXT,
		composer TEXT,
		writer TEXT,
		compilation TEXT,
		author TEXT,
		date_taken TEXT,
		is_music INTEGER NOT NULL DEFAULT 1,
		size INTEGER NOT NULL DEFAULT 0,
		date_added INTEGER NOT NULL,
		date_modified INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audio_album ON audio(album_id);
	CREATE INDEX IF NOT EXISTS idx_audio_artist ON audio(artist_id);

	CREATE TABLE IF NOT EXISTS playlists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		date_modified INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS playlist_members (
		playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
		audio_id INTEGER NOT NULL,
		play_order INTEGER NOT NULL,
		PRIMARY KEY (playlist_id, play_order)
	);
	`

	_, err := s.db.Exec(schema)
	return errors.Wrap(err, "migrate schema")
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

const rowColumns = `
	a.id, a.title, ar.name, a.artist_id, al.title, a.album_id, a.album_artist,
	a.path, a.year, a.mime_type, a.track, a.disc, a.duration, a.date_added,
	a.date_modified, a.genre, a.compilation, a.composer, a.writer, a.author,
	a.date_taken
	FROM audio a
	LEFT JOIN artists ar ON ar.id = a.artist_id
	LEFT JOIN albums al ON al.id = a.album_id`

// Rows implements library.RowSource. Rows are ordered by title using the
// configured collation.
func (s *SQLiteStorage) Rows(ctx context.Context, q library.RowQuery) (library.RowIterator, error) {
	query := "SELECT " + rowColumns + " WHERE a.is_music != 0"
	var args []any
	if q.IncludeExtraFormats {
		query += " OR a.mime_type IN (?" + strings.Repeat(", ?", len(ExtraFormatMIMETypes)-1) + ")"
		for _, m := range ExtraFormatMIMETypes {
			args = append(args, m)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query audio rows")
	}
	defer rows.Close()

	var out []library.Row
	for rows.Next() {
		var r library.Row
		if err := rows.Scan(
			&r.ID, &r.Title, &r.Artist, &r.ArtistID, &r.Album, &r.AlbumID, &r.AlbumArtist,
			&r.Path, &r.Year, &r.MimeType, &r.Track, &r.Disc, &r.Duration, &r.DateAdded,
			&r.DateModified, &r.Genre, &r.Compilation, &r.Composer, &r.Writer, &r.Author,
			&r.DateTaken,
		); err != nil {
			return nil, errors.Wrap(err, "scan audio row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate audio rows")
	}

	c := collate.New(s.lang, collate.Loose)
	sort.SliceStable(out, func(i, j int) bool {
		return c.CompareString(title(out[i]), title(out[j])) < 0
	})
	return library.NewSliceRows(out), nil
}

func title(r library.Row) string {
	if r.Title == nil {
		return ""
	}
	return *r.Title
}

// RawPlaylists implements library.PlaylistSource.
func (s *SQLiteStorage) RawPlaylists(ctx context.Context) ([]library.RawPlaylist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, m.audio_id
		FROM playlists p
		LEFT JOIN playlist_members m ON m.playlist_id = p.id
		ORDER BY p.name, p.id, m.play_order
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query playlists")
	}
	defer rows.Close()

	var out []library.RawPlaylist
	for rows.Next() {
		var id int64
		var name string
		var member sql.NullInt64
		if err := rows.Scan(&id, &name, &member); err != nil {
			return nil, errors.Wrap(err, "scan playlist row")
		}
		if n := len(out); n == 0 || *out[n-1].ID != id {
			out = append(out, library.RawPlaylist{ID: &id, Title: &name})
		}
		if member.Valid {
			last := &out[len(out)-1]
			last.SongIDs = append(last.SongIDs, member.Int64)
		}
	}
	return out, errors.Wrap(rows.Err(), "iterate playlists")
}

// IsAudioCurrent reports whether path is indexed with the given size and
// modification time, so the indexer can skip reading its tags again.
func (s *SQLiteStorage) IsAudioCurrent(ctx context.Context, path string, size int64, modified time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audio WHERE path = ? AND size = ? AND date_modified = ?",
		path, size, modified.Unix(),
	).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "check audio %s", path)
	}
	return n > 0, nil
}

// UpsertAudio inserts or updates the audio row for rec.Path and returns its
// id. date_added is kept from the first insert.
func (s *SQLiteStorage) UpsertAudio(ctx context.Context, rec *AudioRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin audio upsert")
	}
	defer tx.Rollback()

	artistID, err := upsertArtist(ctx, tx, rec.Artist)
	if err != nil {
		return 0, err
	}
	albumID, err := upsertAlbum(ctx, tx, rec.Album, rec.AlbumKey)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO audio (
			path, title, artist_id, album_id, album_artist, year, mime_type, track, disc,
			duration, genre, composer, writer, compilation, author, date_taken, is_music,
			size, date_added, date_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			artist_id = excluded.artist_id,
			album_id = excluded.album_id,
			album_artist = excluded.album_artist,
			year = excluded.year,
			mime_type = excluded.mime_type,
			track = excluded.track,
			disc = excluded.disc,
			duration = excluded.duration,
			genre = excluded.genre,
			composer = excluded.composer,
			writer = excluded.writer,
			compilation = excluded.compilation,
			author = excluded.author,
			date_taken = excluded.date_taken,
			is_music = excluded.is_music,
			size = excluded.size,
			date_modified = excluded.date_modified
		RETURNING id
	`,
		rec.Path, rec.Title, artistID, albumID, rec.AlbumArtist, rec.Year, rec.MimeType,
		rec.Track, rec.Disc, rec.Duration, rec.Genre, rec.Composer, rec.Writer,
		rec.Compilation, rec.Author, rec.DateTaken, rec.IsMusic, rec.Size,
		time.Now().Unix(), rec.ModifiedAt.Unix(),
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "upsert audio %s", rec.Path)
	}

	return id, errors.Wrap(tx.Commit(), "commit audio upsert")
}

func upsertArtist(ctx context.Context, tx *sql.Tx, name *string) (*int64, error) {
	if name == nil || *name == "" {
		return nil, nil
	}
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO artists (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id
	`, *name).Scan(&id)
	if err != nil {
		return nil, errors.Wrapf(err, "upsert artist %q", *name)
	}
	return &id, nil
}

func upsertAlbum(ctx context.Context, tx *sql.Tx, title *string, key string) (*int64, error) {
	if title == nil || *title == "" {
		return nil, nil
	}
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO albums (title, album_key) VALUES (?, ?)
		ON CONFLICT(title, album_key) DO UPDATE SET title = excluded.title
		RETURNING id
	`, *title, key).Scan(&id)
	if err != nil {
		return nil, errors.Wrapf(err, "upsert album %q", *title)
	}
	return &id, nil
}

// GetAllAudioPaths returns all indexed audio paths by id for cleanup.
func (s *SQLiteStorage) GetAllAudioPaths(ctx context.Context) (map[int64]string, error) {
	return s.idPaths(ctx, "SELECT id, path FROM audio")
}

// GetAllPlaylistPaths returns all playlist file paths by id for cleanup.
func (s *SQLiteStorage) GetAllPlaylistPaths(ctx context.Context) (map[int64]string, error) {
	return s.idPaths(ctx, "SELECT id, path FROM playlists")
}

func (s *SQLiteStorage) idPaths(ctx context.Context, query string) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query paths")
	}
	defer rows.Close()

	paths := make(map[int64]string)
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, errors.Wrap(err, "scan path")
		}
		paths[id] = path
	}
	return paths, errors.Wrap(rows.Err(), "iterate paths")
}

// AudioIDsByPath maps indexed paths to audio ids, used to resolve playlist files.
func (s *SQLiteStorage) AudioIDsByPath(ctx context.Context) (map[string]int64, error) {
	byID, err := s.GetAllAudioPaths(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(byID))
	for id, path := range byID {
		ids[path] = id
	}
	return ids, nil
}

// DeleteAudio removes an audio row. Playlist members pointing at it are
// kept, like the platform index does.
func (s *SQLiteStorage) DeleteAudio(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM audio WHERE id = ?", id)
	return errors.Wrapf(err, "delete audio %d", id)
}

// DeleteOrphans removes artists and albums no audio row refers to.
func (s *SQLiteStorage) DeleteOrphans(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM artists WHERE id NOT IN (SELECT artist_id FROM audio WHERE artist_id IS NOT NULL)"); err != nil {
		return errors.Wrap(err, "delete orphan artists")
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM albums WHERE id NOT IN (SELECT album_id FROM audio WHERE album_id IS NOT NULL)")
	return errors.Wrap(err, "delete orphan albums")
}

// IsPlaylistCurrent reports whether the playlist file at path is stored
// with the given modification time.
func (s *SQLiteStorage) IsPlaylistCurrent(ctx context.Context, path string, modified time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM playlists WHERE path = ? AND date_modified = ?",
		path, modified.Unix(),
	).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "check playlist %s", path)
	}
	return n > 0, nil
}

// UpsertPlaylist stores a playlist and replaces its members.
func (s *SQLiteStorage) UpsertPlaylist(ctx context.Context, p *PlaylistRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin playlist upsert")
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO playlists (name, path, date_modified) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			date_modified = excluded.date_modified
		RETURNING id
	`, p.Name, p.Path, p.ModifiedAt.Unix()).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "upsert playlist %s", p.Path)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_members WHERE playlist_id = ?", id); err != nil {
		return 0, errors.Wrap(err, "clear playlist members")
	}
	for i, songID := range p.SongIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO playlist_members (playlist_id, audio_id, play_order) VALUES (?, ?, ?)",
			id, songID, i,
		); err != nil {
			return 0, errors.Wrap(err, "insert playlist member")
		}
	}

	return id, errors.Wrap(tx.Commit(), "commit playlist upsert")
}

func (s *SQLiteStorage) DeletePlaylist(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
	return errors.Wrapf(err, "delete playlist %d", id)
}

func (s *SQLiteStorage) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM audio),
			(SELECT COUNT(*) FROM audio WHERE is_music != 0),
			(SELECT COUNT(*) FROM artists),
			(SELECT COUNT(*) FROM albums),
			(SELECT COUNT(*) FROM playlists)
	`).Scan(&st.Audio, &st.Music, &st.Artists, &st.Albums, &st.Playlists)
	return st, errors.Wrap(err, "query stats")
}
