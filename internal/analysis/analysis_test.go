package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streammon/monitor/internal/events"
	"github.com/streammon/monitor/internal/ffmpeg"
	"github.com/streammon/monitor/internal/models"
)

func TestChannelLayoutName(t *testing.T) {
	assert.Equal(t, "Unknown", channelLayoutName(0))
	assert.Equal(t, "Mono", channelLayoutName(1))
	assert.Equal(t, "Stereo", channelLayoutName(2))
	assert.Equal(t, "5.1 Surround", channelLayoutName(6))
	assert.Equal(t, "7.1 Surround", channelLayoutName(8))
	assert.Equal(t, "3 channels", channelLayoutName(3))
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.InDelta(t, 29.97, parseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 30.0, parseFrameRate("30/0")) // den 0 -> numeric value
	assert.Equal(t, 30.0, parseFrameRate("30"))   // no "/" -> numeric value
	assert.Equal(t, 0.0, parseFrameRate(""))
}

func TestApplyProbe_VideoBitrateFallback(t *testing.T) {
	result := &ffmpeg.ProbeResult{
		Format: ffmpeg.ProbeFormat{FormatName: "mpegts", BitRate: "1000000"},
		Streams: []ffmpeg.ProbeStream{
			{CodecType: "video", CodecName: "h264", Width: 1280, Height: 720, RFrameRate: "25/1"},
		},
	}

	var stats models.Stats
	applyProbe(&stats, result)

	assert.True(t, stats.HasVideo)
	assert.Equal(t, int64(850000), stats.Video.BitRate) // 1_000_000 * 0.85
	assert.Equal(t, 25.0, stats.FPS)
	assert.Equal(t, "mpegts", stats.Container.FormatName)
}

func TestApplyProbe_AudioDefaults(t *testing.T) {
	result := &ffmpeg.ProbeResult{
		Streams: []ffmpeg.ProbeStream{
			{CodecType: "audio", CodecName: "aac", Channels: 2, SampleRate: "48000"},
		},
	}

	var stats models.Stats
	applyProbe(&stats, result)

	assert.True(t, stats.HasAudio)
	assert.Equal(t, int64(128000), stats.Audio.BitRate)
	assert.Equal(t, "Stereo", stats.Audio.ChannelLayout)
}

func TestApplyProbe_ColorSpaceFallback(t *testing.T) {
	result := &ffmpeg.ProbeResult{
		Streams: []ffmpeg.ProbeStream{
			{CodecType: "video", CodecName: "h264", ColorPrimaries: "bt709"},
		},
	}
	var stats models.Stats
	applyProbe(&stats, result)
	assert.Equal(t, "bt709", stats.Video.ColorSpace)
}

func TestApplyProbe_NoStreams(t *testing.T) {
	result := &ffmpeg.ProbeResult{}
	var stats models.Stats
	applyProbe(&stats, result)
	assert.False(t, stats.HasVideo)
	assert.False(t, stats.HasAudio)
	assert.Equal(t, "Unknown", stats.Audio.ChannelLayout)
}

func TestJitter_StaysInRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		v := jitter(50)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	assert.Equal(t, 0.0, jitter(-10))
	assert.Equal(t, 100.0, jitter(110))
}

type fakeProber struct {
	result *ffmpeg.ProbeResult
	delay  time.Duration
}

func (f *fakeProber) Probe(ctx context.Context, url string) (*ffmpeg.ProbeResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result, nil
}

type fakeAnalyzer struct {
	delay time.Duration
}

func (f *fakeAnalyzer) Loudness(ctx context.Context, url string) (*float64, *float64, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	mean, max := -20.0, -5.0
	return &mean, &max, nil
}

func (f *fakeAnalyzer) Thumbnail(ctx context.Context, url, outPath string) error {
	return nil
}

type fakeRepo struct {
	mu      sync.Mutex
	streams map[string]*models.Stream
	saves   int32
}

func newFakeRepo(stream *models.Stream) *fakeRepo {
	return &fakeRepo{streams: map[string]*models.Stream{stream.ID.String(): stream}}
}

func (r *fakeRepo) GetStream(ctx context.Context, id string) (*models.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[id], nil
}

func (r *fakeRepo) SaveStream(ctx context.Context, s *models.Stream) error {
	atomic.AddInt32(&r.saves, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[s.ID.String()] = s
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(topic string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events.Event{Topic: topic, Payload: payload})
}

func TestPipeline_ProbeUpdatesStream(t *testing.T) {
	stream := &models.Stream{}
	stream.ID = models.NewULID()
	repo := newFakeRepo(stream)
	pub := &fakePublisher{}

	prober := &fakeProber{result: &ffmpeg.ProbeResult{
		Streams: []ffmpeg.ProbeStream{{CodecType: "video", CodecName: "h264", Width: 1920}},
	}}
	pipeline := New(DefaultMaxConcurrent, prober, &fakeAnalyzer{}, repo, pub, t.TempDir(), nil)

	done := make(chan struct{})
	go func() {
		pipeline.probe(context.Background(), stream.ID.String(), "http://example.com/seg.ts")
		close(done)
	}()
	<-done

	got, _ := repo.GetStream(context.Background(), stream.ID.String())
	require.NotNil(t, got)
	assert.True(t, got.Stats.HasVideo)
	assert.Equal(t, "h264", got.Stats.Video.Codec)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TopicStreamSignal, pub.events[0].Topic)
}

func TestPipeline_BoundsConcurrency(t *testing.T) {
	stream := &models.Stream{}
	stream.ID = models.NewULID()
	repo := newFakeRepo(stream)

	var inFlight int32
	var maxObserved int32
	tracker := &trackingAnalyzer{
		before: func() {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxObserved)
				if cur <= old || atomic.CompareAndSwapInt32(&maxObserved, old, cur) {
					break
				}
			}
			time.Sleep(15 * time.Millisecond)
		},
		after: func() { atomic.AddInt32(&inFlight, -1) },
	}

	pipeline := New(2, &fakeProber{result: &ffmpeg.ProbeResult{}}, tracker, repo, nil, t.TempDir(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pipeline.run(stream.ID.String(), "loudness", func(ctx context.Context) error {
				_, _, err := pipeline.analyzer.Loudness(ctx, "seg.ts")
				return err
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(2))
}

type trackingAnalyzer struct {
	before func()
	after  func()
}

func (t *trackingAnalyzer) Loudness(ctx context.Context, url string) (*float64, *float64, error) {
	t.before()
	defer t.after()
	return nil, nil, nil
}

func (t *trackingAnalyzer) Thumbnail(ctx context.Context, url, outPath string) error {
	return nil
}
