package media

import (
	"path/filepath"
	"strings"
)

type audioFormat struct {
	mimeType string
	// music is false for the extra formats (wav, ogg, aac, midi) that the
	// platform index does not flag as music.
	music bool
}

var supportedAudioExtensions = map[string]audioFormat{
	".mp3":  {"audio/mpeg", true},
	".flac": {"audio/flac", true},
	".m4a":  {"audio/mp4", true},
	".opus": {"audio/opus", true},
	".wma":  {"audio/x-ms-wma", true},
	".wav":  {"audio/x-wav", false},
	".ogg":  {"audio/ogg", false},
	".oga":  {"audio/ogg", false},
	".aac":  {"audio/aac", false},
	".mid":  {"audio/midi", false},
	".midi": {"audio/midi", false},
}

func IsSupportedAudio(filename string) bool {
	_, ok := supportedAudioExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// AudioFormat returns the MIME type of an audio file and whether it counts
// as music.
func AudioFormat(filename string) (mimeType string, music bool, ok bool) {
	f, ok := supportedAudioExtensions[strings.ToLower(filepath.Ext(filename))]
	return f.mimeType, f.music, ok
}

func IsPlaylistFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".m3u", ".m3u8":
		return true
	}
	return false
}

// GetContentType returns the MIME type used to serve audio and image files.
func GetContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := supportedAudioExtensions[ext]; ok {
		return f.mimeType
	}

	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
