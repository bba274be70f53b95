package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMaster = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1280x720
variant_720.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
variant_360.m3u8
`

const sampleMedia = `#EXTM3U
#EXT-X-TARGETDURATION=6
#EXT-X-MEDIA-SEQUENCE=100
#EXTINF:6.0,
segment100.ts
#EXTINF:6.0,
segment101.ts
#EXT-X-DISCONTINUITY
#EXTINF:6.0,
segment102.ts
`

func TestParse_Master(t *testing.T) {
	m, err := Parse([]byte(sampleMaster))
	require.NoError(t, err)
	require.True(t, m.IsMaster)
	require.Len(t, m.Variants, 2)
	assert.Equal(t, int64(2000000), m.Variants[0].Bandwidth)
	assert.Equal(t, "1280x720", m.Variants[0].Resolution)
	assert.Equal(t, "variant_720.m3u8", m.Variants[0].URI)
}

func TestParse_Media(t *testing.T) {
	m, err := Parse([]byte(sampleMedia))
	require.NoError(t, err)
	require.False(t, m.IsMaster)
	assert.Equal(t, int64(100), m.MediaSequence)
	assert.Equal(t, 6, m.TargetDuration)
	require.Len(t, m.Segments, 3)
	assert.False(t, m.Segments[0].Discontinuity)
	assert.True(t, m.Segments[2].Discontinuity)
	assert.Equal(t, "segment102.ts", m.LastSegmentURI())
}

func TestResolveURI(t *testing.T) {
	base := "https://cdn.example.com/live/stream/index.m3u8"

	assert.Equal(t, "https://cdn.example.com/live/stream/variant.m3u8", ResolveURI(base, "variant.m3u8"))
	assert.Equal(t, "https://other.example.com/abs.m3u8", ResolveURI(base, "https://other.example.com/abs.m3u8"))
}

func TestParseInt64(t *testing.T) {
	assert.Equal(t, int64(2000000), ParseInt64("2000000"))
	assert.Equal(t, int64(0), ParseInt64("unknown"))
}
