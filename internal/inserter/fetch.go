package inserter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/grafov/m3u8"
)

// DefaultFetchTimeout bounds a single upstream playlist request.
const DefaultFetchTimeout = 5 * time.Second

// PlaylistFetcher retrieves and parses the upstream playlist. A failed fetch
// is transient: the caller must leave its ad-break state untouched and retry
// on the next cycle.
type PlaylistFetcher interface {
	Fetch(ctx context.Context, url string) (*Snapshot, error)
}

// HTTPFetcher fetches playlists over HTTP with a bounded timeout.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher with the given per-request timeout.
// If timeout <= 0, DefaultFetchTimeout is used.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch implements PlaylistFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build playlist request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch playlist: unexpected status %d", resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, false)
	if err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}
	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("parse playlist: not a media playlist")
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("parse playlist: unexpected playlist type")
	}

	snap := &Snapshot{
		TargetDuration: media.TargetDuration,
		MediaSequence:  media.SeqNo,
	}
	// grafov preallocates the segment slice; trailing entries are nil.
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		snap.Segments = append(snap.Segments, SegmentRef{
			URI:      seg.URI,
			Duration: seg.Duration,
			Tags:     segmentTags(seg),
		})
	}

	return snap, nil
}

// segmentTags re-serializes the upstream per-segment tags grafov parses into
// struct fields, so the mirrored playlist keeps discontinuity, key, and
// program-date-time markers.
func segmentTags(seg *m3u8.MediaSegment) []string {
	var tags []string
	if seg.Discontinuity {
		tags = append(tags, "#EXT-X-DISCONTINUITY")
	}
	if seg.Key != nil {
		tags = append(tags, keyTag(seg.Key))
	}
	if !seg.ProgramDateTime.IsZero() {
		tags = append(tags, "#EXT-X-PROGRAM-DATE-TIME:"+seg.ProgramDateTime.Format(time.RFC3339))
	}
	return tags
}

func keyTag(key *m3u8.Key) string {
	var b strings.Builder
	b.WriteString("#EXT-X-KEY:METHOD=")
	b.WriteString(key.Method)
	if key.URI != "" {
		fmt.Fprintf(&b, ",URI=%q", key.URI)
	}
	if key.IV != "" {
		b.WriteString(",IV=" + key.IV)
	}
	if key.Keyformat != "" {
		fmt.Fprintf(&b, ",KEYFORMAT=%q", key.Keyformat)
	}
	if key.Keyformatversions != "" {
		fmt.Fprintf(&b, ",KEYFORMATVERSIONS=%q", key.Keyformatversions)
	}
	return b.String()
}
