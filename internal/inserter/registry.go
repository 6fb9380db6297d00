package inserter

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"scte35-inserter/internal/platform/metrics"
)

// DefaultRemoveTimeout bounds the cooperative-shutdown wait during Remove.
const DefaultRemoveTimeout = 10 * time.Second

type workerHandle struct {
	worker   *StreamWorker
	cfg      StreamConfig
	cancel   context.CancelFunc
	removing bool
}

// StreamRegistry owns the set of active stream workers. Its id->worker map is
// the only state shared across workers and is guarded by a single mutex; each
// worker otherwise owns its state and output directory exclusively.
type StreamRegistry struct {
	fetcher PlaylistFetcher
	syncer  *SegmentSynchronizer
	enc     CueEncoder
	store   ConfigStore
	log     *slog.Logger
	metrics *metrics.Metrics

	removeTimeout time.Duration

	mu      sync.Mutex
	workers map[StreamID]*workerHandle
}

// NewStreamRegistry constructs a registry. Metrics may be nil.
func NewStreamRegistry(store ConfigStore, fetcher PlaylistFetcher, syncer *SegmentSynchronizer, enc CueEncoder, log *slog.Logger, m *metrics.Metrics) *StreamRegistry {
	return &StreamRegistry{
		fetcher:       fetcher,
		syncer:        syncer,
		enc:           enc,
		store:         store,
		log:           log,
		metrics:       m,
		removeTimeout: DefaultRemoveTimeout,
		workers:       make(map[StreamID]*workerHandle),
	}
}

// Register starts a worker for the given config and persists the updated
// configuration set. It reports false if the id is already registered.
func (r *StreamRegistry) Register(cfg StreamConfig) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[cfg.ID]; exists {
		r.log.Warn("stream already registered", "stream_id", string(cfg.ID))
		return false
	}

	worker := NewStreamWorker(cfg, r.fetcher, r.syncer, r.enc, r.log, r.metrics)
	ctx, cancel := context.WithCancel(context.Background())
	r.workers[cfg.ID] = &workerHandle{worker: worker, cfg: cfg, cancel: cancel}
	go worker.Run(ctx)

	r.log.Info("stream registered", "stream_id", string(cfg.ID))
	r.persistLocked()
	return true
}

// Remove signals the worker to stop, waits up to the remove timeout for it to
// finish, and reclaims the id regardless of the wait's outcome. In-flight I/O
// of a timed-out worker is not aborted; its results are simply discarded.
// Reports false for an unknown id.
func (r *StreamRegistry) Remove(id StreamID) bool {
	r.mu.Lock()
	h, ok := r.workers[id]
	if !ok || h.removing {
		r.mu.Unlock()
		return false
	}
	h.removing = true
	r.mu.Unlock()

	h.cancel()
	select {
	case <-h.worker.Done():
	case <-time.After(r.removeTimeout):
		r.log.Warn("worker did not stop within timeout", "stream_id", string(id))
	}

	r.mu.Lock()
	delete(r.workers, id)
	r.persistLocked()
	r.mu.Unlock()

	r.log.Info("stream removed", "stream_id", string(id))
	return true
}

// Status returns the status of one stream.
func (r *StreamRegistry) Status(id StreamID) (StreamStatus, bool) {
	r.mu.Lock()
	h, ok := r.workers[id]
	r.mu.Unlock()
	if !ok {
		return StreamStatus{}, false
	}
	return h.worker.Status(), true
}

// List returns the status of every registered stream, ordered by id.
func (r *StreamRegistry) List() []StreamStatus {
	r.mu.Lock()
	handles := make([]*workerHandle, 0, len(r.workers))
	for _, h := range r.workers {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	statuses := make([]StreamStatus, 0, len(handles))
	for _, h := range handles {
		statuses = append(statuses, h.worker.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// RunningCount returns the number of workers whose loop is currently live.
func (r *StreamRegistry) RunningCount() int {
	n := 0
	for _, st := range r.List() {
		if st.Running {
			n++
		}
	}
	return n
}

// OutputDir resolves a registered stream's output directory, for read-only
// serving of its artifacts.
func (r *StreamRegistry) OutputDir(id StreamID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.workers[id]
	if !ok {
		return "", false
	}
	return h.cfg.OutputDir, true
}

// Restore loads the persisted configuration set and starts a worker for each
// entry. Each restored stream's stale output directory is purged first, so a
// restart never serves leftovers inconsistent with the next snapshot.
func (r *StreamRegistry) Restore() error {
	configs, err := r.store.Load()
	if err != nil {
		return err
	}

	for _, cfg := range configs {
		if cfg.OutputDir != "" {
			if err := os.RemoveAll(cfg.OutputDir); err != nil {
				r.log.Warn("purging stale output directory failed",
					"stream_id", string(cfg.ID), "output_dir", cfg.OutputDir, "error", err)
			}
		}
		r.Register(cfg)
	}
	return nil
}

// Shutdown stops every worker and waits for them to drain until ctx expires.
func (r *StreamRegistry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	handles := make([]*workerHandle, 0, len(r.workers))
	for _, h := range r.workers {
		h.cancel()
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		select {
		case <-h.worker.Done():
		case <-ctx.Done():
			return
		}
	}
}

// persistLocked saves the committed configuration set. Caller holds r.mu.
// Persistence failures are logged, not escalated: the in-memory registry
// remains authoritative for the running process.
func (r *StreamRegistry) persistLocked() {
	configs := make([]StreamConfig, 0, len(r.workers))
	for _, h := range r.workers {
		configs = append(configs, h.cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	if err := r.store.Save(configs); err != nil {
		r.log.Error("persisting stream configs failed", "error", err)
	}
}
