// Package ledger implements the per-stream error ledger: entry construction,
// eid generation, and age-out.
package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/streammon/monitor/internal/models"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// eidSuffixLen is the length of the random base36 suffix in an eid:
// "eid-<unix-ms>-<9-char-base36>".
const eidSuffixLen = 9

// NewEID generates a fresh error-entry identifier of the form
// "eid-<unix-ms>-<9-char-base36>". No ecosystem ID generator produces this
// exact shape, so it is a small self-contained helper (see DESIGN.md).
func NewEID(now time.Time) string {
	return fmt.Sprintf("eid-%d-%s", now.UnixMilli(), randomBase36(eidSuffixLen))
}

func randomBase36(n int) string {
	buf := make([]byte, n)
	alphabetLen := big.NewInt(int64(len(base36Alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand failure is effectively unrecoverable; fall back to
			// a fixed character so callers still get a well-formed eid.
			buf[i] = '0'
			continue
		}
		buf[i] = base36Alphabet[idx.Int64()]
	}
	return string(buf)
}

// Append builds a new StreamError entry and appends it to the ledger: fresh
// eid, date = now, variant = the stream's current bandwidth (as a decimal
// string, or "unknown").
func Append(entries []models.StreamError, errorType, details, mediaType, variant string, now time.Time) []models.StreamError {
	if mediaType == "" {
		mediaType = "VIDEO"
	}
	if variant == "" {
		variant = "unknown"
	}
	entry := models.StreamError{
		EID:       NewEID(now),
		Date:      now,
		ErrorType: errorType,
		MediaType: mediaType,
		Variant:   variant,
		Details:   details,
	}
	return append(entries, entry)
}

// AgeOut filters out entries older than retention and any malformed entry (a zero/unparseable date). Age-out never
// fails: on any internal trouble it falls back to returning entries
// unmodified rather than blocking the caller.
func AgeOut(entries []models.StreamError, retention time.Duration, now time.Time) []models.StreamError {
	if entries == nil {
		return nil
	}

	cutoff := now.Add(-retention)
	kept := make([]models.StreamError, 0, len(entries))
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		if e.Date.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}
