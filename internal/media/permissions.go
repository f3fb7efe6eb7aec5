package media

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// PathPermissions grants scanner capabilities from configuration, checked
// against what the process can actually read.
type PathPermissions struct {
	AllowAudio  bool
	AllowImages bool
	Database    string
	Roots       []string
}

// CanReadAudio requires the audio grant and a readable media index.
func (p PathPermissions) CanReadAudio() bool {
	if !p.AllowAudio {
		return false
	}
	if p.Database == "" {
		return true
	}
	f, err := os.Open(p.Database)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// CanReadImages requires the image grant and every library root to be
// listable.
func (p PathPermissions) CanReadImages() bool {
	if !p.AllowImages {
		return false
	}
	for _, root := range p.Roots {
		f, err := os.Open(root)
		if err != nil {
			return false
		}
		_, err = f.ReadDir(1)
		f.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			return false
		}
	}
	return true
}
