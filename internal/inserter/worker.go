package inserter

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"sync"
	"time"

	"scte35-inserter/internal/platform/metrics"
)

const (
	// minCycleSleep floors the adaptive sleep between cycles.
	minCycleSleep = 1 * time.Second

	// defaultCycleSleep is used when the snapshot carries no target duration.
	defaultCycleSleep = 2 * time.Second

	// fetchRetryDelay is slept after a failed playlist fetch.
	fetchRetryDelay = 2 * time.Second

	// cycleErrorBackoff is slept after an unclassified cycle error.
	cycleErrorBackoff = 5 * time.Second
)

// StreamWorker drives one stream's repeating cycle:
// fetch -> state machine -> write -> synchronize -> prune -> adaptive sleep.
// All transient faults are absorbed inside the cycle; the worker exits only on
// context cancellation or a fatal (permission-denied) playlist write.
type StreamWorker struct {
	cfg     StreamConfig
	fetcher PlaylistFetcher
	syncer  *SegmentSynchronizer
	sm      *AdBreakStateMachine
	log     *slog.Logger
	metrics *metrics.Metrics

	mu                sync.Mutex
	running           bool
	segmentsProcessed int64

	done chan struct{}
}

// NewStreamWorker wires a worker for the given stream. Metrics may be nil to
// disable metric recording (e.g. in tests).
func NewStreamWorker(cfg StreamConfig, fetcher PlaylistFetcher, syncer *SegmentSynchronizer, enc CueEncoder, log *slog.Logger, m *metrics.Metrics) *StreamWorker {
	return &StreamWorker{
		cfg:     cfg,
		fetcher: fetcher,
		syncer:  syncer,
		sm:      NewAdBreakStateMachine(cfg, enc, time.Now()),
		log:     log.With("stream_id", string(cfg.ID)),
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Done is closed when the worker's loop has fully exited.
func (w *StreamWorker) Done() <-chan struct{} {
	return w.done
}

// Run executes the worker loop until ctx is cancelled or a fatal write error
// occurs. It must be called at most once.
func (w *StreamWorker) Run(ctx context.Context) {
	w.setRunning(true)
	defer func() {
		w.setRunning(false)
		close(w.done)
	}()

	w.log.Info("stream worker started", "input_url", w.cfg.InputURL)

	for ctx.Err() == nil {
		delay, fatal := w.cycle(ctx)
		if fatal {
			break
		}
		if !sleepCtx(ctx, delay) {
			break
		}
	}

	w.log.Info("stream worker stopped")
}

// cycle runs one pass and returns how long to sleep before the next one, and
// whether the fault encountered was fatal for the worker.
func (w *StreamWorker) cycle(ctx context.Context) (delay time.Duration, fatal bool) {
	snap, err := w.fetcher.Fetch(ctx, w.cfg.InputURL)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		if w.metrics != nil {
			w.metrics.IncFetchErrors()
		}
		w.log.Warn("playlist fetch failed", "error", err)
		return fetchRetryDelay, false
	}

	w.mu.Lock()
	transition, err := w.sm.Advance(time.Now(), snap)
	w.mu.Unlock()
	if err != nil {
		w.log.Error("ad-break transition failed", "error", err)
		return cycleErrorBackoff, false
	}

	switch transition {
	case TransitionBreakStart:
		w.log.Info("ad break opened", "event_id", w.sm.State().EventID)
		if w.metrics != nil {
			w.metrics.IncAdBreaksStarted()
		}
	case TransitionBreakEnd:
		w.log.Info("ad break closed")
		if w.metrics != nil {
			w.metrics.IncAdBreaksEnded()
		}
	}

	if err := WritePlaylist(snap, w.cfg.OutputDir); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			w.log.Error("permission denied writing playlist, stopping worker",
				"output_dir", w.cfg.OutputDir, "error", err)
			return 0, true
		}
		w.log.Error("playlist write failed", "error", err)
	}

	downloaded, err := w.syncer.Reconcile(ctx, snap, w.cfg.InputURL, w.cfg.OutputDir)
	if downloaded > 0 {
		w.addProcessed(int64(downloaded))
		if w.metrics != nil {
			w.metrics.AddSegmentsDownloaded(downloaded)
		}
	}
	if err != nil {
		// Reconcile only hard-fails on cancellation; the loop condition
		// handles the exit.
		return 0, false
	}

	if snap.TargetDuration > 0 {
		half := time.Duration(snap.TargetDuration/2*float64(time.Second))
		if half < minCycleSleep {
			half = minCycleSleep
		}
		return half, false
	}
	return defaultCycleSleep, false
}

// Status returns a point-in-time view of the worker.
func (w *StreamWorker) Status() StreamStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := w.sm.State()
	status := StreamStatus{
		ID:                w.cfg.ID,
		InputURL:          w.cfg.InputURL,
		OutputDir:         w.cfg.OutputDir,
		AdDuration:        w.cfg.AdDuration,
		AdInterval:        w.cfg.AdInterval,
		Enabled:           w.cfg.Enabled,
		Running:           w.running,
		InAdBreak:         state.Phase == PhaseInBreak,
		SegmentsProcessed: w.segmentsProcessed,
	}
	if state.Phase == PhaseIdle {
		status.NextAdIn = int(math.Round(time.Until(state.NextBreakDue).Seconds()))
	}
	return status
}

func (w *StreamWorker) setRunning(v bool) {
	w.mu.Lock()
	w.running = v
	w.mu.Unlock()
}

func (w *StreamWorker) addProcessed(n int64) {
	w.mu.Lock()
	w.segmentsProcessed += n
	w.mu.Unlock()
}

// sleepCtx sleeps for d unless ctx is cancelled first. It reports whether the
// full sleep elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
