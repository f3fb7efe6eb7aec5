package library

import (
	"os"
	"path/filepath"
	"strings"
)

var coverExtensions = map[string]int{
	"jpg":  3,
	"png":  2,
	"jpeg": 1,
	"bmp":  0,
	"tiff": 0,
	"tif":  0,
	"webp": 0,
}

// minCoverScore lets jpg/png through under any name but requires a cover
// or albumart name for the other formats.
const minCoverScore = 3

// ScoreCover rates a file name as an album cover candidate. It returns 0
// for files that are not images.
func ScoreCover(fileName string) int {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	bonus, ok := coverExtensions[ext]
	if !ok {
		return 0
	}
	name := strings.ToLower(strings.TrimSuffix(fileName, filepath.Ext(fileName)))

	score := 1 + bonus
	switch {
	case name == "albumart":
		score += 24
	case name == "cover":
		score += 20
	case strings.HasPrefix(name, "albumart"):
		score += 16
	case strings.HasPrefix(name, "cover"):
		score += 12
	case strings.Contains(name, "albumart"):
		score += 8
	case strings.Contains(name, "cover"):
		score += 4
	}
	return score
}

// FindBestCover returns the path of the best cover image directly inside
// dir, or "" when none qualifies. Listing errors count as no cover.
func FindBestCover(lister DirLister, dir string) (string, error) {
	names, err := lister.ListFiles(dir)
	if err != nil {
		return "", err
	}

	best, bestScore := "", 0
	for _, name := range names {
		if score := ScoreCover(name); score > bestScore {
			best, bestScore = name, score
		}
	}
	if bestScore < minCoverScore {
		return "", nil
	}
	return filepath.Join(dir, best), nil
}

// OSDirLister lists directories on the local filesystem.
type OSDirLister struct{}

func (OSDirLister) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
