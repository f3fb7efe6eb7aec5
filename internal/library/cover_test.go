package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreCover(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"AlbumArt.jpg", 28},
		{"albumart.webp", 25},
		{"cover.png", 23},
		{"Cover.JPG", 24},
		{"albumart_large.jpeg", 18},
		{"cover-front.bmp", 13},
		{"my_albumart.png", 11},
		{"frontcover.jpg", 8},
		{"random.jpg", 4},
		{"random.png", 3},
		{"random.jpeg", 2},
		{"random.bmp", 1},
		{"cover.txt", 0},
		{"noext", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreCover(tt.name))
		})
	}
}

type listerFunc func(string) ([]string, error)

func (f listerFunc) ListFiles(dir string) ([]string, error) { return f(dir) }

func TestFindBestCover(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"albumart beats cover", []string{"folder.jpg", "cover.jpg", "AlbumArt.jpg"}, "/d/AlbumArt.jpg"},
		{"first of equal scores wins", []string{"a.jpg", "b.jpg"}, "/d/a.jpg"},
		{"plain png qualifies", []string{"scan.png", "notes.txt"}, "/d/scan.png"},
		{"plain jpeg rejected", []string{"scan.jpeg", "random.bmp"}, ""},
		{"cover bmp accepted", []string{"cover.bmp"}, "/d/cover.bmp"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindBestCover(listerFunc(func(string) ([]string, error) { return tt.files, nil }), "/d")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindBestCoverListingError(t *testing.T) {
	boom := errors.New("denied")
	got, err := FindBestCover(listerFunc(func(string) ([]string, error) { return nil, boom }), "/d")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, got)
}

func TestOSDirListerSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "albumart.jpg"), 0o755))

	names, err := OSDirLister{}.ListFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"cover.jpg"}, names)

	best, err := FindBestCover(OSDirLister{}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cover.jpg"), best)
}
