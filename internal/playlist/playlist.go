// Package playlist fetches and parses HLS manifests.
package playlist

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
)

// Variant is one rendition referenced from a master playlist.
type Variant struct {
	URI        string
	Bandwidth  int64
	Resolution string // "WxH", empty when absent
}

// Segment is one media segment of a media playlist.
type Segment struct {
	URI           string
	Duration      float64
	Discontinuity bool
}

// Manifest is the structured result of parsing either a master or a media
// playlist.
type Manifest struct {
	IsMaster bool
	Variants []Variant

	Segments              []Segment
	MediaSequence         int64
	TargetDuration        int
	DiscontinuitySequence int64
	HasDiscontinuitySeq   bool
	PlaylistType          string
}

// RetrievalError wraps a fetch/parse failure with the HTTP status (if any)
// alongside the underlying message.
type RetrievalError struct {
	Message    string
	StatusCode int // 0 when no HTTP response was received
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

// HTTPDoer is satisfied by *httpclient.Client and *http.Client alike.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher performs the HTTP GET and hands the body to Parse.
type Fetcher struct {
	client HTTPDoer
}

// NewFetcher builds a Fetcher around the given HTTP client. The client is
// expected to already carry the fetch timeout and must not retry in-band.
func NewFetcher(client HTTPDoer) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch retrieves and parses the manifest at url. Relative variant/segment
// URIs in the result are resolved against this URL.
func (f *Fetcher) Fetch(reqURL string) (*Manifest, error) {
	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &RetrievalError{Message: err.Error()}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &RetrievalError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RetrievalError{
			Message:    fmt.Sprintf("unexpected HTTP status for %s", reqURL),
			StatusCode: resp.StatusCode,
		}
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, &RetrievalError{Message: err.Error()}
	}

	manifest, err := Parse(buf.Bytes())
	if err != nil {
		return nil, &RetrievalError{Message: err.Error()}
	}

	resolveURIs(manifest, reqURL)
	return manifest, nil
}

// Parse decodes raw playlist bytes into a Manifest.
func Parse(data []byte) (*Manifest, error) {
	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, fmt.Errorf("parsing playlist: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := pl.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("parsing playlist: unexpected master playlist type")
		}
		return parseMaster(master), nil
	case m3u8.MEDIA:
		media, ok := pl.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, fmt.Errorf("parsing playlist: unexpected media playlist type")
		}
		return parseMedia(media), nil
	default:
		return nil, fmt.Errorf("parsing playlist: unknown playlist type")
	}
}

func parseMaster(master *m3u8.MasterPlaylist) *Manifest {
	m := &Manifest{IsMaster: true}
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		m.Variants = append(m.Variants, Variant{
			URI:        v.URI,
			Bandwidth:  int64(v.Bandwidth),
			Resolution: v.Resolution,
		})
	}
	return m
}

func parseMedia(media *m3u8.MediaPlaylist) *Manifest {
	m := &Manifest{
		MediaSequence:  int64(media.SeqNo),
		TargetDuration: int(media.TargetDuration),
		PlaylistType:   mediaTypeString(media.MediaType),
	}
	if media.DiscontinuitySeq != 0 {
		m.HasDiscontinuitySeq = true
		m.DiscontinuitySequence = int64(media.DiscontinuitySeq)
	}

	for _, seg := range media.Segments {
		if seg == nil || seg.URI == "" {
			continue
		}
		m.Segments = append(m.Segments, Segment{
			URI:           seg.URI,
			Duration:      seg.Duration,
			Discontinuity: seg.Discontinuity,
		})
	}
	return m
}

// mediaTypeString maps grafov/m3u8's MediaType to the #EXT-X-PLAYLIST-TYPE
// string; unset (live) maps to the empty string, so callers fall back to
// "LIVE".
func mediaTypeString(mt m3u8.MediaType) string {
	switch mt {
	case m3u8.VOD:
		return "VOD"
	case m3u8.EVENT:
		return "EVENT"
	default:
		return ""
	}
}

// resolveURIs resolves relative variant/segment URIs against the base URL,
// replacing everything after the last "/". Absolute URIs (http/https) are
// kept verbatim.
func resolveURIs(m *Manifest, base string) {
	for i := range m.Variants {
		m.Variants[i].URI = ResolveURI(base, m.Variants[i].URI)
	}
	for i := range m.Segments {
		m.Segments[i].URI = ResolveURI(base, m.Segments[i].URI)
	}
}

// ResolveURI resolves a playlist-relative URI against the URL it was fetched
// from. Absolute http(s) URIs pass through unchanged.
func ResolveURI(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}

	u, err := url.Parse(base)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return u.ResolveReference(rel).String()
}

// LastSegmentURI returns the URI of the final segment in a media manifest,
// or "" when there are none.
func (m *Manifest) LastSegmentURI() string {
	if len(m.Segments) == 0 {
		return ""
	}
	return m.Segments[len(m.Segments)-1].URI
}

// FirstVariant returns the master playlist's first variant, resolved, and
// whether one was present.
func (m *Manifest) FirstVariant() (Variant, bool) {
	if len(m.Variants) == 0 {
		return Variant{}, false
	}
	return m.Variants[0], true
}

// ParseInt64 safely parses a decimal string, returning 0 on failure. Used for
// the ledger's "variant" field which stores bandwidth as a decimal string.
func ParseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
