// Package evaluator implements the per-poll playlist evaluator state
// machine: it turns one freshly fetched manifest plus the previously
// cached poll state into a stream update, ledger entries, a dispatched
// analysis task, and a persisted metrics sample.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streammon/monitor/internal/models"
	"github.com/streammon/monitor/internal/playlist"
	"github.com/streammon/monitor/internal/pollcache"
	"github.com/streammon/monitor/internal/scoring"

	ledgerpkg "github.com/streammon/monitor/internal/ledger"
)

// Repository is the persistence surface the evaluator needs. SaveStream is
// expected to enforce the optimistic-concurrency "drop, don't retry" policy:
// a version conflict is returned as models.ErrVersionConflict and the
// evaluator never retries it.
type Repository interface {
	SaveStream(ctx context.Context, stream *models.Stream) error
	SaveMetricsSample(ctx context.Context, sample *models.MetricsSample) error
}

// Publisher broadcasts topic-style events. Publish must never
// block the caller.
type Publisher interface {
	Publish(topic string, payload any)
}

// AnalysisDispatcher hands a segment URL off to the bounded media analysis
// pipeline. Submit must never block the caller.
type AnalysisDispatcher interface {
	Submit(streamID, segmentURL string)
}

const topicStreamUpdate = "stream:update"

// sequenceJumpGapThreshold is the minimum gap that counts as a significant
// jump; gaps of 1 or 2 are tolerated silently because the 7s poll period
// outruns a typical ~6s segment by at most that much.
const sequenceJumpGapThreshold = 3

// Evaluator wires together the components needed to evaluate one stream's
// poll.
type Evaluator struct {
	Fetcher        *playlist.Fetcher
	Cache          *pollcache.Cache
	Repository     Repository
	Publisher      Publisher
	Dispatcher     AnalysisDispatcher
	WindowSpan     time.Duration
	StaleThreshold time.Duration

	// Retention bounds how long a ledger entry survives before AgeOut drops
	// it from the stream's in-memory (and, on save, persisted) ledger.
	Retention time.Duration

	// Now returns the current time; overridden in tests for determinism.
	Now func() time.Time
}

// defaultRetention keeps a week of ledger history, comfortably longer than
// WindowSpan so RecentIssuesFrom always has data to look back across.
const defaultRetention = 7 * 24 * time.Hour

// New builds an Evaluator with the given dependencies and sensible defaults
// for WindowSpan/StaleThreshold/Retention/Now.
func New(fetcher *playlist.Fetcher, cache *pollcache.Cache, repo Repository, pub Publisher, dispatcher AnalysisDispatcher) *Evaluator {
	return &Evaluator{
		Fetcher:        fetcher,
		Cache:          cache,
		Repository:     repo,
		Publisher:      pub,
		Dispatcher:     dispatcher,
		WindowSpan:     scoring.WindowSpan,
		StaleThreshold: 7000 * time.Millisecond,
		Retention:      defaultRetention,
		Now:            time.Now,
	}
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate runs the full eight-step evaluation for one stream: fetch,
// content check, freshness, sequence semantics, discontinuity accounting,
// commit, analysis dispatch, and persist-and-publish. The stream's fields
// are mutated in place.
func (e *Evaluator) Evaluate(ctx context.Context, stream *models.Stream) {
	now := e.now()
	stream.Health.StaleThreshold = e.StaleThreshold.Milliseconds()

	// Step 1: master vs. media.
	manifest, err := e.Fetcher.Fetch(stream.URL)
	if err != nil {
		e.failManifestRetrieval(ctx, stream, stream.URL, err, now)
		return
	}

	if manifest.IsMaster {
		variant, ok := manifest.FirstVariant()
		if !ok {
			e.failManifestRetrieval(ctx, stream, stream.URL, fmt.Errorf("master playlist has no variants"), now)
			return
		}
		stream.Stats.Bandwidth = variant.Bandwidth
		stream.Stats.Resolution = variant.Resolution

		media, err := e.Fetcher.Fetch(variant.URI)
		if err != nil {
			e.failManifestRetrieval(ctx, stream, variant.URI, err, now)
			return
		}
		manifest = media
	}

	// Step 2: content check.
	if len(manifest.Segments) == 0 {
		e.appendError(stream, models.ErrorTypePlaylistContent, "media playlist has no segments", "VIDEO", now)
		stream.Status = models.StatusError
		e.persistAndPublish(ctx, stream, now)
		return
	}

	cached := e.Cache.Get(stream.ID.String())
	seq := manifest.MediaSequence
	segCount := len(manifest.Segments)
	td := manifest.TargetDuration

	// Step 3: freshness.
	if seq == cached.LastMediaSequence {
		cached.ConsecutiveStales++
		elapsed := now.Sub(cached.LastPollTime)
		stream.Health.TimeSinceLastUpdate = elapsed.Milliseconds()
		if elapsed > e.StaleThreshold {
			stream.Health.IsStale = true
			stream.Status = models.StatusStale
			e.appendError(stream, models.ErrorTypeStaleManifest,
				fmt.Sprintf("manifest unchanged for %dms", elapsed.Milliseconds()), "VIDEO", now)
		}
	} else {
		stream.Health.IsStale = false
		stream.Health.LastManifestUpdate = now
		stream.Health.TimeSinceLastUpdate = 0
		cached.ConsecutiveStales = 0
		stream.Status = models.StatusOnline
	}

	// Step 4: sequence semantics, only once a previous sequence is known.
	if cached.LastMediaSequence != -1 {
		expected := cached.LastMediaSequence + 1
		if seq > expected {
			gap := seq - expected
			if gap >= sequenceJumpGapThreshold {
				stream.Health.SequenceJumps++
				e.appendError(stream, models.ErrorTypeMediaSequence,
					fmt.Sprintf("Sequence jumped from %d to %d (gap: %d)", cached.LastMediaSequence, seq, gap),
					"VIDEO", now)
			}
		} else if seq < cached.LastMediaSequence {
			stream.Health.SequenceResets++
			e.appendError(stream, models.ErrorTypeMediaSequence,
				fmt.Sprintf("Sequence reset from %d to %d", cached.LastMediaSequence, seq),
				"VIDEO", now)
		}
	}

	// Step 5: discontinuity accounting.
	for _, seg := range manifest.Segments {
		if seg.Discontinuity {
			stream.Health.DiscontinuityCount++
		}
	}
	if manifest.HasDiscontinuitySeq && manifest.DiscontinuitySequence != stream.Health.DiscontinuitySequence {
		stream.Health.DiscontinuitySequence = manifest.DiscontinuitySequence
	}

	// Step 6: commit.
	stream.Health.PreviousMediaSequence = cached.LastMediaSequence
	stream.Health.MediaSequence = seq
	stream.Health.SegmentCount = segCount
	stream.Health.TargetDuration = td
	if manifest.PlaylistType != "" {
		stream.Health.PlaylistType = manifest.PlaylistType
	} else {
		stream.Health.PlaylistType = models.PlaylistTypeLive
	}

	cached.LastMediaSequence = seq
	cached.LastPollTime = now
	e.Cache.Set(stream.ID.String(), cached)

	// Step 7: dispatch analysis, non-blocking.
	if last := manifest.LastSegmentURI(); last != "" && e.Dispatcher != nil {
		e.Dispatcher.Submit(stream.ID.String(), last)
	}

	// Step 8: persist, score, publish.
	e.persistAndPublish(ctx, stream, now)
}

func (e *Evaluator) failManifestRetrieval(ctx context.Context, stream *models.Stream, url string, cause error, now time.Time) {
	e.appendError(stream, models.ErrorTypeManifestRetrieval, cause.Error(), "VIDEO", now)
	stream.Status = models.StatusError
	e.persistAndPublish(ctx, stream, now)
}

// appendError pushes a new ledger entry and updates the running error
// counters.
func (e *Evaluator) appendError(stream *models.Stream, errorType, details, mediaType string, now time.Time) {
	variant := ""
	if stream.Stats.Bandwidth > 0 {
		variant = fmt.Sprintf("%d", stream.Stats.Bandwidth)
	}
	stream.StreamErrors = ledgerpkg.Append(stream.StreamErrors, errorType, details, mediaType, variant, now)

	stream.Health.TotalErrors++
	stream.Health.TimeSinceLastErr = 0
	stream.Health.LastErrorTime = now
	stream.Health.HasLastErrorTime = true
}

func (e *Evaluator) persistAndPublish(ctx context.Context, stream *models.Stream, now time.Time) {
	stream.LastChecked = now
	stream.StreamErrors = ledgerpkg.AgeOut(stream.StreamErrors, e.Retention, now)

	if err := e.Repository.SaveStream(ctx, stream); err != nil && err != models.ErrVersionConflict {
		// Logged here; the sweep continues regardless.
		slog.WarnContext(ctx, "saving stream failed", slog.String("stream_id", stream.ID.String()), slog.String("error", err.Error()))
	}

	recent := scoring.RecentIssuesFrom(stream.StreamErrors, e.WindowSpan, now)
	decay := scoring.DecayFactor(stream.Health.LastErrorTime, stream.Health.HasLastErrorTime, now)

	stream.Health.RecentErrors = recent.Errors
	stream.Health.RecentSequenceJumps = recent.Jumps
	stream.Health.RecentSequenceResets = recent.Resets

	healthScore := scoring.HealthScore(scoring.HealthInput{
		IsStale:     stream.Health.IsStale,
		Status:      stream.Status,
		TotalErrors: stream.Health.TotalErrors,
		TotalJumps:  stream.Health.SequenceJumps,
		TotalResets: stream.Health.SequenceResets,
	}, &recent, decay)

	videoScore := scoring.VideoScore(stream.Stats.HasVideo, stream.Stats.Video.Codec, stream.Stats.Video.Width)
	audioScore := scoring.AudioScore(stream.Stats.HasAudio, stream.Stats.Audio.Codec, stream.Stats.Audio.SampleRate, stream.Stats.Audio.IsSilent)

	sample := &models.MetricsSample{
		StreamID:      stream.ID,
		HealthScore:   healthScore,
		VideoScore:    videoScore,
		AudioScore:    audioScore,
		VideoBitrate:  stream.Stats.Video.BitRate,
		AudioBitrate:  stream.Stats.Audio.BitRate,
		VideoLevel:    scoring.VideoLevel(stream.Stats.Video.BitRate),
		AudioLevel:    scoring.AudioLevel(stream.Stats.Audio.BitRate),
		FPS:           stream.Stats.FPS,
		Status:        stream.Status,
		MediaSequence: stream.Health.MediaSequence,
		SegmentCount:  stream.Health.SegmentCount,
		ErrorCount:    stream.Health.TotalErrors,
		Timestamp:     now,
	}
	if err := e.Repository.SaveMetricsSample(ctx, sample); err != nil {
		// Best-effort: logged, never blocks the stream update path.
		slog.WarnContext(ctx, "saving metrics sample failed", slog.String("stream_id", stream.ID.String()), slog.String("error", err.Error()))
	}

	if e.Publisher != nil {
		e.Publisher.Publish(topicStreamUpdate, stream)
	}
}
