package inserter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDownloadConcurrency bounds simultaneous segment transfers.
	DefaultDownloadConcurrency = 4

	// downloadTimeout bounds a single segment transfer.
	downloadTimeout = 10 * time.Second
)

// SegmentSynchronizer converges a stream's output directory toward the set of
// segments referenced by the latest snapshot: missing segments are downloaded
// with bounded parallelism, stale ones pruned afterwards.
type SegmentSynchronizer struct {
	client      *http.Client
	concurrency int
	log         *slog.Logger
}

// NewSegmentSynchronizer returns a synchronizer that runs at most concurrency
// simultaneous transfers. If concurrency <= 0, DefaultDownloadConcurrency is
// used.
func NewSegmentSynchronizer(concurrency int, log *slog.Logger) *SegmentSynchronizer {
	if concurrency <= 0 {
		concurrency = DefaultDownloadConcurrency
	}
	return &SegmentSynchronizer{
		client:      &http.Client{Timeout: downloadTimeout},
		concurrency: concurrency,
		log:         log,
	}
}

// Reconcile downloads every referenced segment absent from outputDir, blocks
// until the whole batch settles, then prunes local segment files no longer
// referenced. Relative segment URIs are resolved against baseURL.
//
// Per-segment download failures are logged and skipped; the file stays absent
// and is retried naturally on the next cycle. Returns the number of segments
// downloaded. The only hard error is context cancellation.
func (s *SegmentSynchronizer) Reconcile(ctx context.Context, snap *Snapshot, baseURL, outputDir string) (int, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return 0, fmt.Errorf("parse base url: %w", err)
	}

	referenced := make(map[string]struct{}, len(snap.Segments))

	var downloaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, seg := range snap.Segments {
		name := SegmentFilename(seg.URI)
		referenced[name] = struct{}{}

		dest := filepath.Join(outputDir, name)
		if _, err := os.Stat(dest); err == nil {
			continue
		}

		ref, err := url.Parse(seg.URI)
		if err != nil {
			s.log.Warn("skipping segment with unparseable uri", "uri", seg.URI, "error", err)
			continue
		}
		absURL := base.ResolveReference(ref).String()

		g.Go(func() error {
			if err := s.download(gctx, absURL, dest); err != nil {
				s.log.Error("segment download failed", "segment", name, "error", err)
				return nil // transient; retried next cycle
			}
			downloaded.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(downloaded.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(downloaded.Load()), err
	}

	// Pruning must not overlap the batch: a stale-looking name may be the
	// target of an in-flight download.
	s.prune(outputDir, referenced)

	return int(downloaded.Load()), nil
}

// download streams one segment to a temporary file in the destination
// directory and renames it into place, so partial files are never servable.
func (s *SegmentSynchronizer) download(ctx context.Context, srcURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return fmt.Errorf("build segment request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch segment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch segment: unexpected status %d", resp.StatusCode)
	}

	pending, err := renameio.NewPendingFile(dest)
	if err != nil {
		return fmt.Errorf("create pending segment: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op once committed

	if _, err := io.Copy(pending, resp.Body); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace segment: %w", err)
	}

	return nil
}

// prune deletes every local segment file not in the referenced set.
// Failures are logged and non-fatal.
func (s *SegmentSynchronizer) prune(outputDir string, referenced map[string]struct{}) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		s.log.Error("prune: reading output directory failed", "dir", outputDir, "error", err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".ts") {
			continue
		}
		if _, ok := referenced[name]; ok {
			continue
		}
		s.log.Debug("pruning stale segment", "segment", name)
		if err := os.Remove(filepath.Join(outputDir, name)); err != nil {
			s.log.Error("prune: removing stale segment failed", "segment", name, "error", err)
		}
	}
}
