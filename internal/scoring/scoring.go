// Package scoring implements the sliding-window + decay health, video, and
// audio scorers. All functions here are pure.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/streammon/monitor/internal/models"
)

// WindowSpan is the default sliding-window span for recentIssues.
const WindowSpan = 12 * time.Minute

// RecentIssues is the {jumps, resets, errors} window classification.
type RecentIssues struct {
	Jumps  int
	Resets int
	Errors int
}

// RecentIssuesFrom classifies the stream's error ledger entries within
// window of now into jumps/resets/errors. On any malformed input it falls
// back to the zero value rather than failing.
func RecentIssuesFrom(entries []models.StreamError, window time.Duration, now time.Time) RecentIssues {
	var out RecentIssues
	if entries == nil {
		return out
	}

	cutoff := now.Add(-window)
	for _, e := range entries {
		if e.Date.Before(cutoff) {
			continue
		}
		out.Errors++

		if e.ErrorType == "SEQUENCE_RESET" || strings.Contains(e.Details, "reset") {
			out.Resets++
		}
		if e.ErrorType == "SEQUENCE_JUMP" || strings.Contains(e.Details, "Sequence jumped") {
			out.Jumps++
		}
	}
	return out
}

// DecayFactor maps elapsed time since the last ledger error to a forgiveness
// factor in [0,1]. hasLastError distinguishes "no error ever" (factor 1.0,
// full forgiveness) from "an error at time zero" (invalid, factor 0.0).
func DecayFactor(lastErrorTime time.Time, hasLastError bool, now time.Time) float64 {
	if !hasLastError {
		return 1.0
	}

	elapsed := now.Sub(lastErrorTime)
	hours := elapsed.Hours()
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
		return 0.0
	}

	switch {
	case hours < 1:
		return 0.0
	case hours < 6:
		return 0.25
	case hours < 24:
		return 0.5
	case hours < 72:
		return 0.75
	default:
		return 0.9
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HealthInput carries the subset of stream state the health scorer needs.
type HealthInput struct {
	IsStale bool
	Status  models.StreamStatus

	// TotalErrors/TotalJumps/TotalResets are the all-time counters, used as
	// the fallback path when Recent is nil.
	TotalErrors int64
	TotalJumps  int64
	TotalResets int64
}

// HealthScore computes the composite health score from a starting 100: flat
// penalties for staleness/error/offline status, then jump/reset/error
// penalties scaled by decay. recent may be nil, in which case the all-time
// counters are used with no decay.
func HealthScore(in HealthInput, recent *RecentIssues, decay float64) float64 {
	score := 100.0

	if in.IsStale {
		score -= 30
	}
	switch in.Status {
	case models.StatusError:
		score -= 40
	case models.StatusOffline:
		score -= 50
	}

	if recent != nil {
		pen := 1 - decay
		score -= math.Min(float64(recent.Jumps)*5, 20) * pen
		score -= math.Min(float64(recent.Resets)*10, 30) * pen
		score -= math.Min(float64(recent.Errors)*2, 20) * pen
	} else {
		score -= math.Min(float64(in.TotalJumps)*5, 20)
		score -= math.Min(float64(in.TotalResets)*10, 30)
		score -= math.Min(float64(in.TotalErrors)*2, 20)
	}

	return clamp(score, 0, 100)
}

// VideoScore penalizes a missing codec or a sub-720 width; absent video
// stats score a neutral 50.
func VideoScore(hasVideo bool, codec string, width int) float64 {
	if !hasVideo {
		return 50
	}

	score := 100.0
	if codec == "" {
		score -= 20
	}
	if width < 720 {
		score -= 10
	}
	return clamp(score, 0, 100)
}

// VideoLevel derives the 0-100 video signal level from a bitrate, per the
// signal-level derivation shared by the probe event and the metrics sample.
func VideoLevel(bitrate int64) float64 {
	return clamp(float64(bitrate)/5_000_000*100, 0, 100)
}

// AudioLevel derives the 0-100 audio signal level from a bitrate.
func AudioLevel(bitrate int64) float64 {
	return clamp(float64(bitrate)/320_000*100, 0, 100)
}

// AudioScore penalizes a missing codec, a sub-44100Hz sample rate, or
// silence; absent audio stats score a neutral 50.
func AudioScore(hasAudio bool, codec string, sampleRate int, isSilent bool) float64 {
	if !hasAudio {
		return 50
	}

	score := 100.0
	if codec == "" {
		score -= 20
	}
	if sampleRate < 44100 {
		score -= 10
	}
	if isSilent {
		score -= 15
	}
	return clamp(score, 0, 100)
}
