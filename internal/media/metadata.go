package media

import (
	"context"
	"encoding/json"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Metadata struct {
	Duration   int64 // milliseconds
	AudioCodec string
	Channels   int
	SampleRate int
	Bitrate    int64
}

// probeTimeout bounds a single ffprobe run so a damaged file cannot stall
// an index pass.
const probeTimeout = 15 * time.Second

// MetadataExtractor probes audio files with ffprobe.
type MetadataExtractor struct {
	ffprobePath string
	logger      zerolog.Logger
}

func NewMetadataExtractor(logger zerolog.Logger) *MetadataExtractor {
	ffprobePath := "ffprobe"
	if path, err := exec.LookPath("ffprobe"); err == nil {
		ffprobePath = path
	}

	return &MetadataExtractor{
		ffprobePath: ffprobePath,
		logger:      logger.With().Str("component", "ffprobe").Logger(),
	}
}

func (m *MetadataExtractor) IsAvailable() bool {
	_, err := exec.LookPath(m.ffprobePath)
	return err == nil
}

// Extract reads the first audio stream of filePath.
func (m *MetadataExtractor) Extract(ctx context.Context, filePath string) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "a:0",
		filePath,
	).Output()
	if err != nil {
		m.logger.Debug().Err(err).Str("file", filePath).Msg("ffprobe failed")
		return nil, errors.Wrapf(err, "probe %s", filePath)
	}

	return parseProbeOutput(output)
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Channels   int    `json:"channels"`
	SampleRate string `json:"sample_rate"`
	Duration   string `json:"duration"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

func parseProbeOutput(output []byte) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, errors.Wrap(err, "decode ffprobe output")
	}

	meta := &Metadata{Duration: millis(probe.Format.Duration)}
	meta.Bitrate, _ = strconv.ParseInt(probe.Format.BitRate, 10, 64)

	for _, stream := range probe.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		meta.AudioCodec = strings.ToUpper(stream.CodecName)
		meta.Channels = stream.Channels
		meta.SampleRate, _ = strconv.Atoi(stream.SampleRate)
		// Some containers (raw aac, some ogg) only report it per stream.
		if meta.Duration == 0 {
			meta.Duration = millis(stream.Duration)
		}
		break
	}

	return meta, nil
}

// millis converts ffprobe's fractional seconds to milliseconds; unparsable
// or empty values give 0.
func millis(seconds string) int64 {
	f, err := strconv.ParseFloat(seconds, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(math.Round(f * 1000))
}
