package media

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ParseM3U reads an M3U/M3U8 file and returns its entries as cleaned
// absolute paths, in file order. Relative entries are resolved against the
// playlist's directory.
func ParseM3U(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open playlist")
	}
	defer f.Close()

	baseDir := filepath.Dir(path)
	var entries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "://") {
			continue
		}

		entry := filepath.FromSlash(strings.ReplaceAll(line, `\`, "/"))
		if !filepath.IsAbs(entry) {
			entry = filepath.Join(baseDir, entry)
		}
		entries = append(entries, filepath.Clean(entry))
	}
	return entries, errors.Wrap(sc.Err(), "read playlist")
}

func playlistName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
