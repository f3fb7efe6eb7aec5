package media

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/pkg/errors"
)

// ErrNoArtwork is returned when a file carries no embedded picture.
var ErrNoArtwork = errors.New("no embedded artwork")

type Tags struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Composer    string
	Genre       string
	Year        int
	Track       int
	Disc        int
	Compilation bool
}

func ReadTags(path string) (*Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open audio file")
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read tags of %s", filepath.Base(path))
	}

	t := &Tags{
		Title:       strings.TrimSpace(m.Title()),
		Artist:      strings.TrimSpace(m.Artist()),
		Album:       strings.TrimSpace(m.Album()),
		AlbumArtist: strings.TrimSpace(m.AlbumArtist()),
		Composer:    strings.TrimSpace(m.Composer()),
		Genre:       strings.TrimSpace(m.Genre()),
		Year:        m.Year(),
	}
	t.Track, _ = m.Track()
	t.Disc, _ = m.Disc()
	t.Compilation = isCompilation(m.Raw())
	return t, nil
}

func isCompilation(raw map[string]interface{}) bool {
	for _, key := range []string{"TCMP", "TCP", "cpil", "compilation", "COMPILATION"} {
		switch v := raw[key].(type) {
		case string:
			if v == "1" {
				return true
			}
		case bool:
			return v
		case int:
			return v == 1
		}
	}
	return false
}

type Artwork struct {
	Data     []byte
	MIMEType string
}

// EmbeddedArt extracts the embedded cover picture of an audio file.
func EmbeddedArt(path string) (*Artwork, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open audio file")
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read tags of %s", filepath.Base(path))
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, ErrNoArtwork
	}

	mime := pic.MIMEType
	if mime == "" {
		mime = GetContentType("cover." + pic.Ext)
	}
	return &Artwork{Data: pic.Data, MIMEType: mime}, nil
}
