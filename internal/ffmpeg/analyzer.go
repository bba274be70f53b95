package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Analyzer runs the two filter-pipeline capabilities the monitor's media
// analysis pipeline needs: loudness measurement and thumbnail extraction.
type Analyzer struct {
	ffmpegPath string
}

// NewAnalyzer builds an Analyzer around the given ffmpeg binary path.
func NewAnalyzer(ffmpegPath string) *Analyzer {
	return &Analyzer{ffmpegPath: ffmpegPath}
}

var (
	meanVolumeRe = regexp.MustCompile(`mean_volume:\s*(-?[0-9.]+)\s*dB`)
	maxVolumeRe  = regexp.MustCompile(`max_volume:\s*(-?[0-9.]+)\s*dB`)
)

// Loudness runs the volumedetect audio filter against url with null output
// and parses stderr for mean_volume/max_volume. Invalid or non-finite
// numbers are reported as nil.
func (a *Analyzer) Loudness(ctx context.Context, url string) (meanDb, maxDb *float64, err error) {
	b := NewCommandBuilder(a.ffmpegPath)
	// volumedetect reports mean_volume/max_volume at info level.
	b.logLevel = "info"
	cmd := b.
		HideBanner().
		Input(url).
		OutputArgs("-af", "volumedetect", "-f", "null").
		Output("-").
		Build()

	output, runErr := exec.CommandContext(ctx, cmd.Binary, cmd.Args...).CombinedOutput()
	if runErr != nil && !strings.Contains(runErr.Error(), "null") {
		// Errors whose message contains "null" are expected null-sink
		// warnings and are dropped silently.
		return nil, nil, fmt.Errorf("volumedetect failed: %w", runErr)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		if m := meanVolumeRe.FindStringSubmatch(line); m != nil {
			meanDb = parseDb(m[1])
		}
		if m := maxVolumeRe.FindStringSubmatch(line); m != nil {
			maxDb = parseDb(m[1])
		}
	}
	return meanDb, maxDb, nil
}

func parseDb(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// IsSilent reports whether a measured peak indicates silence: peakDb is
// non-nil and below -50dB.
func IsSilent(peakDb *float64) bool {
	return peakDb != nil && *peakDb < -50
}

// Thumbnail extracts a single JPEG frame at 0.5s into the stream, scaled to
// width 320 (height preserved), quality 5, written to outPath.
func (a *Analyzer) Thumbnail(ctx context.Context, url, outPath string) error {
	cmd := NewCommandBuilder(a.ffmpegPath).
		HideBanner().
		Overwrite().
		InputArgs("-ss", "0.5").
		Input(url).
		VideoFilter("scale=320:-1").
		OutputArgs("-frames:v", "1", "-qscale:v", "5").
		Output(outPath).
		Build()

	if err := exec.CommandContext(ctx, cmd.Binary, cmd.Args...).Run(); err != nil {
		return fmt.Errorf("thumbnail extraction failed: %w", err)
	}
	return nil
}
