// Package analysis implements the bounded media analysis pipeline (spec
// component 4.F): probe, loudness, and thumbnail tasks dispatched per
// segment URL, running at most 4 concurrent external-tool invocations
// process-wide.
package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/streammon/monitor/internal/events"
	"github.com/streammon/monitor/internal/ffmpeg"
	"github.com/streammon/monitor/internal/models"
	"github.com/streammon/monitor/internal/scoring"
)

// Repository is the persistence surface the pipeline needs. Each task
// re-reads the stream by ID before mutating it, since tasks run
// concurrently with the scheduler's own sequential updates to the same
// record.
type Repository interface {
	GetStream(ctx context.Context, id string) (*models.Stream, error)
	SaveStream(ctx context.Context, stream *models.Stream) error
}

// Publisher broadcasts topic-style events.
type Publisher interface {
	Publish(topic string, payload any)
}

// DefaultMaxConcurrent is the default process-wide concurrency cap.
const DefaultMaxConcurrent = 4

// Prober is the probing capability the pipeline needs; *ffmpeg.Prober
// satisfies it.
type Prober interface {
	Probe(ctx context.Context, url string) (*ffmpeg.ProbeResult, error)
}

// FilterAnalyzer is the loudness/thumbnail capability the pipeline needs;
// *ffmpeg.Analyzer satisfies it.
type FilterAnalyzer interface {
	Loudness(ctx context.Context, url string) (meanDb, maxDb *float64, err error)
	Thumbnail(ctx context.Context, url, outPath string) error
}

// Pipeline bounds concurrent probe/loudness/thumbnail invocations with a
// weighted semaphore; excess submissions queue FIFO behind it. Task errors
// never propagate out of the pipeline — they are logged and swallowed.
type Pipeline struct {
	sem      *semaphore.Weighted
	prober   Prober
	analyzer FilterAnalyzer
	repo     Repository
	pub      Publisher
	tempDir  string
	logger   *slog.Logger

	// now returns the current time; overridden in tests for determinism.
	now func() time.Time
}

// New builds a Pipeline. maxConcurrent is typically DefaultMaxConcurrent.
func New(maxConcurrent int64, prober Prober, analyzer FilterAnalyzer, repo Repository, pub Publisher, tempDir string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Pipeline{
		sem:      semaphore.NewWeighted(maxConcurrent),
		prober:   prober,
		analyzer: analyzer,
		repo:     repo,
		pub:      pub,
		tempDir:  tempDir,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit dispatches the three independent tasks for one segment URL. It
// never blocks the caller: each task runs in its own goroutine and queues
// behind the semaphore when all slots are in use.
func (p *Pipeline) Submit(streamID, segmentURL string) {
	go p.run(streamID, "probe", func(ctx context.Context) error { return p.probe(ctx, streamID, segmentURL) })
	go p.run(streamID, "loudness", func(ctx context.Context) error { return p.loudness(ctx, streamID, segmentURL) })
	go p.run(streamID, "thumbnail", func(ctx context.Context) error { return p.thumbnail(ctx, streamID, segmentURL) })
}

func (p *Pipeline) run(streamID, task string, fn func(ctx context.Context) error) {
	ctx := context.Background()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer p.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("analysis task panicked", "task", task, "stream", streamID, "panic", r)
		}
	}()

	if err := fn(ctx); err != nil {
		p.logger.Warn("analysis task failed", "task", task, "stream", streamID, "error", err)
	}
}

func (p *Pipeline) probe(ctx context.Context, streamID, segmentURL string) error {
	result, err := p.prober.Probe(ctx, segmentURL)
	if err != nil {
		return fmt.Errorf("probing segment: %w", err)
	}

	stream, err := p.repo.GetStream(ctx, streamID)
	if err != nil {
		return fmt.Errorf("loading stream for probe update: %w", err)
	}
	if stream == nil {
		return nil
	}

	applyProbe(&stream.Stats, result)

	if err := p.repo.SaveStream(ctx, stream); err != nil && err != models.ErrVersionConflict {
		p.logger.Warn("saving stream after probe", "stream", streamID, "error", err)
	}

	if p.pub != nil {
		p.pub.Publish(events.TopicStreamSignal, buildSignalPayload(streamID, stream, p.now()))
	}
	return nil
}

func (p *Pipeline) loudness(ctx context.Context, streamID, segmentURL string) error {
	meanDb, maxDb, err := p.analyzer.Loudness(ctx, segmentURL)
	if err != nil {
		return fmt.Errorf("measuring loudness: %w", err)
	}

	stream, err := p.repo.GetStream(ctx, streamID)
	if err != nil {
		return fmt.Errorf("loading stream for loudness update: %w", err)
	}
	if stream == nil {
		return nil
	}

	stream.Stats.Audio.AvgDb = meanDb
	stream.Stats.Audio.PeakDb = maxDb
	stream.Stats.Audio.IsSilent = ffmpeg.IsSilent(maxDb)

	if err := p.repo.SaveStream(ctx, stream); err != nil && err != models.ErrVersionConflict {
		p.logger.Warn("saving stream after loudness", "stream", streamID, "error", err)
	}
	return nil
}

func (p *Pipeline) thumbnail(ctx context.Context, streamID, segmentURL string) error {
	tmpPath := filepath.Join(p.tempDir, fmt.Sprintf("sprite-%s-%d.jpg", streamID, p.now().UnixMilli()))

	if err := p.analyzer.Thumbnail(ctx, segmentURL, tmpPath); err != nil {
		return fmt.Errorf("extracting thumbnail: %w", err)
	}
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("deleting thumbnail temp file", "path", tmpPath, "error", err)
		}
	}()

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		p.logger.Warn("reading thumbnail temp file", "path", tmpPath, "error", err)
		return nil
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)

	stream, err := p.repo.GetStream(ctx, streamID)
	if err != nil {
		return fmt.Errorf("loading stream for thumbnail update: %w", err)
	}
	if stream == nil {
		return nil
	}
	stream.Thumbnail = dataURL

	if err := p.repo.SaveStream(ctx, stream); err != nil && err != models.ErrVersionConflict {
		p.logger.Warn("saving stream after thumbnail", "stream", streamID, "error", err)
	}

	if p.pub != nil {
		p.pub.Publish(events.TopicStreamSprite, events.SpritePayload{ID: streamID, URL: dataURL})
	}
	return nil
}

// applyProbe maps a raw ffprobe result onto Stats.
func applyProbe(stats *models.Stats, result *ffmpeg.ProbeResult) {
	stats.Container.FormatName = result.Format.FormatName
	stats.Container.Duration = parseFloatSafe(result.Format.Duration)
	stats.Container.Size = parseInt64Safe(result.Format.Size)
	formatBitRate := parseInt64Safe(result.Format.BitRate)
	stats.Container.BitRate = formatBitRate

	if v := result.GetVideoStream(); v != nil {
		stats.HasVideo = true
		stats.Video.Codec = v.CodecName
		stats.Video.Profile = v.Profile
		if v.Level > 0 {
			stats.Video.Level = fmt.Sprintf("%.1f", float64(v.Level)/10)
		}
		stats.Video.Width = v.Width
		stats.Video.Height = v.Height
		stats.Video.PixFmt = v.PixFmt
		stats.Video.ColorSpace = firstNonEmpty(v.ColorSpace, v.ColorPrimaries, "unknown")

		videoBitRate := parseInt64Safe(v.BitRate)
		if videoBitRate == 0 {
			videoBitRate = int64(float64(formatBitRate) * 0.85)
		}
		stats.Video.BitRate = videoBitRate
		stats.FPS = parseFrameRate(v.RFrameRate)
	} else {
		stats.HasVideo = false
	}

	if a := result.GetAudioStream(); a != nil {
		stats.HasAudio = true
		stats.Audio.Codec = a.CodecName
		stats.Audio.Channels = a.Channels
		stats.Audio.SampleRate = parseIntSafe(a.SampleRate)

		audioBitRate := parseInt64Safe(a.BitRate)
		if audioBitRate == 0 {
			audioBitRate = 128000
		}
		stats.Audio.BitRate = audioBitRate
		stats.Audio.ChannelLayout = channelLayoutName(a.Channels)
	} else {
		stats.HasAudio = false
		stats.Audio.ChannelLayout = channelLayoutName(0)
	}
}

// channelLayoutName derives a human-readable layout name from a channel
// count.
func channelLayoutName(channels int) string {
	switch channels {
	case 0:
		return "Unknown"
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	case 6:
		return "5.1 Surround"
	case 8:
		return "7.1 Surround"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}

// parseFrameRate safely parses a "num/den" rate string: if the denominator
// is 0 or absent, the numeric value (numerator, or the whole string when
// there is no "/") is used directly.
func parseFrameRate(s string) float64 {
	if s == "" {
		return 0
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 1 {
		return parseFloatSafe(parts[0])
	}

	num := parseFloatSafe(parts[0])
	den := parseFloatSafe(parts[1])
	if den == 0 {
		return num
	}
	return num / den
}

func parseFloatSafe(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseInt64Safe(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseIntSafe(s string) int {
	return int(parseInt64Safe(s))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// buildSignalPayload derives the live stream:signal event, including the
// random jitter applied to each signal level.
func buildSignalPayload(streamID string, stream *models.Stream, now time.Time) events.SignalPayload {
	return events.SignalPayload{
		ID:           streamID,
		Timestamp:    now.UnixMilli(),
		Video:        jitter(scoring.VideoLevel(stream.Stats.Video.BitRate)),
		Audio:        jitter(scoring.AudioLevel(stream.Stats.Audio.BitRate)),
		VideoBitrate: stream.Stats.Video.BitRate,
		AudioBitrate: stream.Stats.Audio.BitRate,
		FPS:          stream.Stats.FPS,
		PeakDb:       stream.Stats.Audio.PeakDb,
		AvgDb:        stream.Stats.Audio.AvgDb,
		IsSilent:     stream.Stats.Audio.IsSilent,
	}
}

// jitter adds a random offset in [-5, +5] to a signal level and re-clamps to
// [0, 100].
func jitter(level float64) float64 {
	offset := rand.Float64()*10 - 5
	v := level + offset
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
