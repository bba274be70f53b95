package evaluator

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streammon/monitor/internal/models"
	"github.com/streammon/monitor/internal/playlist"
	"github.com/streammon/monitor/internal/pollcache"
)

const mediaURL = "http://cdn.example.com/stream/media.m3u8"

func mediaBody(seq int64, segCount int) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-TARGETDURATION:6\n")
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:")
	b.WriteString(itoa(seq))
	b.WriteString("\n")
	for i := 0; i < segCount; i++ {
		b.WriteString("#EXTINF:6.0,\nsegment")
		b.WriteString(itoa(seq + int64(i)))
		b.WriteString(".ts\n")
	}
	return b.String()
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

type fakeDoer struct {
	body string
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

type fakeRepo struct {
	savedStreams []*models.Stream
	savedSamples []*models.MetricsSample
}

func (r *fakeRepo) SaveStream(ctx context.Context, s *models.Stream) error {
	r.savedStreams = append(r.savedStreams, s)
	return nil
}

func (r *fakeRepo) SaveMetricsSample(ctx context.Context, m *models.MetricsSample) error {
	r.savedSamples = append(r.savedSamples, m)
	return nil
}

type fakePublisher struct {
	events []string
}

func (p *fakePublisher) Publish(topic string, payload any) {
	p.events = append(p.events, topic)
}

type fakeDispatcher struct {
	submitted []string
}

func (d *fakeDispatcher) Submit(streamID, segmentURL string) {
	d.submitted = append(d.submitted, segmentURL)
}

func newTestEvaluator(body string, now time.Time) (*Evaluator, *fakeRepo, *fakePublisher, *fakeDispatcher) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	dispatcher := &fakeDispatcher{}
	ev := New(playlist.NewFetcher(&fakeDoer{body: body}), pollcache.New(), repo, pub, dispatcher)
	ev.Now = func() time.Time { return now }
	return ev, repo, pub, dispatcher
}

func newTestStream() *models.Stream {
	s := &models.Stream{URL: mediaURL}
	s.ID = models.NewULID()
	return s
}

func TestEvaluate_FreshOnline(t *testing.T) {
	now := time.Now()
	ev, _, _, dispatcher := newTestEvaluator(mediaBody(100, 5), now)
	stream := newTestStream()

	ev.Evaluate(context.Background(), stream)

	assert.Equal(t, models.StatusOnline, stream.Status)
	assert.Equal(t, int64(100), stream.Health.MediaSequence)
	assert.Equal(t, int64(-1), stream.Health.PreviousMediaSequence)
	assert.Empty(t, stream.StreamErrors)
	assert.Equal(t, 0, stream.Health.RecentErrors)
	require.Len(t, dispatcher.submitted, 1)
	assert.Equal(t, "http://cdn.example.com/stream/segment104.ts", dispatcher.submitted[0])
}

func TestEvaluate_NormalAdvance(t *testing.T) {
	now := time.Now()
	ev, _, _, _ := newTestEvaluator(mediaBody(101, 5), now)
	stream := newTestStream()
	ev.Cache.Set(stream.ID.String(), pollcache.State{LastMediaSequence: 100, LastPollTime: now.Add(-7 * time.Second)})

	ev.Evaluate(context.Background(), stream)

	assert.Empty(t, stream.StreamErrors)
	assert.Equal(t, int64(0), stream.Health.SequenceJumps)
	assert.Equal(t, models.StatusOnline, stream.Status)
}

func TestEvaluate_SilentGap(t *testing.T) {
	now := time.Now()
	ev, _, _, _ := newTestEvaluator(mediaBody(102, 5), now)
	stream := newTestStream()
	ev.Cache.Set(stream.ID.String(), pollcache.State{LastMediaSequence: 100, LastPollTime: now.Add(-7 * time.Second)})

	ev.Evaluate(context.Background(), stream)

	assert.Empty(t, stream.StreamErrors)
	assert.Equal(t, int64(0), stream.Health.SequenceJumps)
}

func TestEvaluate_SignificantJump(t *testing.T) {
	now := time.Now()
	ev, _, _, _ := newTestEvaluator(mediaBody(105, 5), now)
	stream := newTestStream()
	ev.Cache.Set(stream.ID.String(), pollcache.State{LastMediaSequence: 100, LastPollTime: now.Add(-7 * time.Second)})

	ev.Evaluate(context.Background(), stream)

	require.Len(t, stream.StreamErrors, 1)
	assert.Equal(t, models.ErrorTypeMediaSequence, stream.StreamErrors[0].ErrorType)
	assert.Equal(t, "Sequence jumped from 100 to 105 (gap: 4)", stream.StreamErrors[0].Details)
	assert.Equal(t, int64(1), stream.Health.SequenceJumps)
	assert.Equal(t, 1, stream.Health.RecentSequenceJumps)
}

func TestEvaluate_Reset(t *testing.T) {
	now := time.Now()
	ev, _, _, _ := newTestEvaluator(mediaBody(50, 5), now)
	stream := newTestStream()
	ev.Cache.Set(stream.ID.String(), pollcache.State{LastMediaSequence: 100, LastPollTime: now.Add(-7 * time.Second)})

	ev.Evaluate(context.Background(), stream)

	require.Len(t, stream.StreamErrors, 1)
	assert.Equal(t, "Sequence reset from 100 to 50", stream.StreamErrors[0].Details)
	assert.Equal(t, int64(1), stream.Health.SequenceResets)
}

func TestEvaluate_Stale(t *testing.T) {
	now := time.Now()
	ev, _, _, _ := newTestEvaluator(mediaBody(100, 5), now)
	stream := newTestStream()
	lastPoll := now.Add(-7100 * time.Millisecond)
	ev.Cache.Set(stream.ID.String(), pollcache.State{LastMediaSequence: 100, LastPollTime: lastPoll})

	ev.Evaluate(context.Background(), stream)

	assert.True(t, stream.Health.IsStale)
	assert.Equal(t, models.StatusStale, stream.Status)
	require.Len(t, stream.StreamErrors, 1)
	assert.Equal(t, models.ErrorTypeStaleManifest, stream.StreamErrors[0].ErrorType)
	assert.Contains(t, stream.StreamErrors[0].Details, "7100")
}

func TestEvaluate_EmptyPlaylist_SetsError(t *testing.T) {
	now := time.Now()
	ev, repo, pub, _ := newTestEvaluator("#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:5\n", now)
	stream := newTestStream()

	ev.Evaluate(context.Background(), stream)

	assert.Equal(t, models.StatusError, stream.Status)
	require.Len(t, stream.StreamErrors, 1)
	assert.Equal(t, models.ErrorTypePlaylistContent, stream.StreamErrors[0].ErrorType)
	require.Len(t, repo.savedStreams, 1)
	assert.Contains(t, pub.events, topicStreamUpdate)
}

func TestEvaluate_FetchFailure_SetsManifestRetrievalError(t *testing.T) {
	now := time.Now()
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	dispatcher := &fakeDispatcher{}
	ev := New(playlist.NewFetcher(&failingDoer{}), pollcache.New(), repo, pub, dispatcher)
	ev.Now = func() time.Time { return now }
	stream := newTestStream()

	ev.Evaluate(context.Background(), stream)

	assert.Equal(t, models.StatusError, stream.Status)
	require.Len(t, stream.StreamErrors, 1)
	assert.Equal(t, models.ErrorTypeManifestRetrieval, stream.StreamErrors[0].ErrorType)
}

type failingDoer struct{}

func (f *failingDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: 500, Body: io.NopCloser(strings.NewReader(""))}, nil
}
