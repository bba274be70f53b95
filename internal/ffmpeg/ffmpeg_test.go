package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilder_Build(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		Input("https://cdn.example.com/live/index.m3u8").
		VideoFilter("scale=320:-1").
		OutputArgs("-frames:v", "1", "-qscale:v", "5").
		Output("/tmp/out.jpg").
		Build()

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Binary)
	assert.Contains(t, cmd.Args, "-vf")
	assert.Contains(t, cmd.Args, "scale=320:-1")
	assert.Contains(t, cmd.Args, "/tmp/out.jpg")
}

func TestCommandBuilder_InputArgs(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		InputArgs("-reconnect", "1").
		Input("https://cdn.example.com/live/index.m3u8").
		Output("out.jpg").
		Build()

	assert.Contains(t, cmd.Args, "-reconnect")
}

func TestProbeResult_GetVideoStream(t *testing.T) {
	r := &ProbeResult{Streams: []ProbeStream{
		{CodecType: "audio", CodecName: "aac"},
		{CodecType: "video", CodecName: "h264"},
	}}
	v := r.GetVideoStream()
	require.NotNil(t, v)
	assert.Equal(t, "h264", v.CodecName)
}

func TestProbeResult_GetVideoStream_SkipsAttachedPicture(t *testing.T) {
	r := &ProbeResult{Streams: []ProbeStream{
		{CodecType: "video", CodecName: "mjpeg", Disposition: ProbeDisposition{AttachedPic: 1}},
		{CodecType: "video", CodecName: "h264"},
	}}
	v := r.GetVideoStream()
	require.NotNil(t, v)
	assert.Equal(t, "h264", v.CodecName)
}

func TestProbeResult_GetAudioStream(t *testing.T) {
	r := &ProbeResult{Streams: []ProbeStream{{CodecType: "audio", CodecName: "aac"}}}
	a := r.GetAudioStream()
	require.NotNil(t, a)
	assert.Equal(t, "aac", a.CodecName)
}

func TestParseDb(t *testing.T) {
	v := parseDb("-23.4")
	require.NotNil(t, v)
	assert.Equal(t, -23.4, *v)

	assert.Nil(t, parseDb("not-a-number"))
}

func TestIsSilent(t *testing.T) {
	quiet := -60.0
	loud := -10.0
	assert.True(t, IsSilent(&quiet))
	assert.False(t, IsSilent(&loud))
	assert.False(t, IsSilent(nil))
}

func TestMeanMaxVolumeRegex(t *testing.T) {
	line1 := "[Parsed_volumedetect_0 @ 0x0] mean_volume: -24.5 dB"
	line2 := "[Parsed_volumedetect_0 @ 0x0] max_volume: -3.2 dB"

	m1 := meanVolumeRe.FindStringSubmatch(line1)
	require.Len(t, m1, 2)
	assert.Equal(t, "-24.5", m1[1])

	m2 := maxVolumeRe.FindStringSubmatch(line2)
	require.Len(t, m2, 2)
	assert.Equal(t, "-3.2", m2[1])
}
