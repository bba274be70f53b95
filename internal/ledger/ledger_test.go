package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streammon/monitor/internal/models"
)

func TestNewEID_Format(t *testing.T) {
	now := time.Unix(1700000000, 0)
	eid := NewEID(now)

	assert.Regexp(t, `^eid-1700000000000-[0-9a-z]{9}$`, eid)
}

func TestNewEID_Unique(t *testing.T) {
	now := time.Now()
	a := NewEID(now)
	b := NewEID(now)
	assert.NotEqual(t, a, b)
}

func TestAppend(t *testing.T) {
	now := time.Now()
	entries := Append(nil, models.ErrorTypeStaleManifest, "no update for 21s", "", "", now)

	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, models.ErrorTypeStaleManifest, e.ErrorType)
	assert.Equal(t, "VIDEO", e.MediaType)
	assert.Equal(t, "unknown", e.Variant)
	assert.Equal(t, now, e.Date)
	assert.NotEmpty(t, e.EID)
}

func TestAppend_PreservesExisting(t *testing.T) {
	now := time.Now()
	entries := Append(nil, models.ErrorTypeMediaSequence, "jump", "VIDEO", "2000000", now)
	entries = Append(entries, models.ErrorTypeSegmentContinuity, "gap", "VIDEO", "2000000", now)

	require.Len(t, entries, 2)
	assert.Equal(t, models.ErrorTypeMediaSequence, entries[0].ErrorType)
	assert.Equal(t, models.ErrorTypeSegmentContinuity, entries[1].ErrorType)
	assert.Equal(t, "2000000", entries[1].Variant)
}

func TestAgeOut_DropsOld(t *testing.T) {
	now := time.Now()
	entries := []models.StreamError{
		{EID: "eid-1", Date: now.Add(-8 * 24 * time.Hour)},
		{EID: "eid-2", Date: now.Add(-1 * time.Hour)},
	}

	kept := AgeOut(entries, 7*24*time.Hour, now)
	require.Len(t, kept, 1)
	assert.Equal(t, "eid-2", kept[0].EID)
}

func TestAgeOut_DropsMalformed(t *testing.T) {
	now := time.Now()
	entries := []models.StreamError{
		{EID: "eid-1", Date: time.Time{}},
		{EID: "eid-2", Date: now},
	}

	kept := AgeOut(entries, 7*24*time.Hour, now)
	require.Len(t, kept, 1)
	assert.Equal(t, "eid-2", kept[0].EID)
}

func TestAgeOut_Nil(t *testing.T) {
	assert.Nil(t, AgeOut(nil, 7*24*time.Hour, time.Now()))
}
