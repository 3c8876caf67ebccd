// Package recorder owns the recording session: identity, the sampling
// decision, page exclusion, channel lifecycle and the outbound delivery
// pipeline.
package recorder

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/capture/dom"
	"github.com/uxtrace/uxtrace/capture/identity"
	"github.com/uxtrace/uxtrace/capture/pipeline"
	"github.com/uxtrace/uxtrace/capture/privacy"
	"github.com/uxtrace/uxtrace/capture/watch"
	"github.com/uxtrace/uxtrace/models"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateExcluded
	StateUnsampled
	StateRecording
	StateStopped
)

// Storage keys for per-visitor persisted state.
const (
	storageKeySampled = "uxtrace:sampled"
	storageKeyVisitor = "uxtrace:visitor"
)

// Recorder is the session controller. Start and Stop are idempotent:
// starting while recording or stopping while not recording is a no-op that
// reports false rather than an error.
type Recorder struct {
	page   dom.Page
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	sessionID string
	visitorID string

	policy   *privacy.Policy
	registry *identity.Registry
	tap      *dom.HistoryTap
	watchers []watch.Watcher
	pipe     *pipeline.Pipeline
	flushOff []dom.Detach

	clock func() time.Time
	roll  func(n int) int
}

// New creates a recorder for one page.
func New(page dom.Page, opts Options, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		page:   page,
		opts:   opts.withDefaults(),
		logger: logger,
		clock:  time.Now,
		roll:   rand.Intn,
	}
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SessionID returns the active session identifier, or "".
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Start begins recording. It returns false without error when recording
// is already active, the page matches an excluded pattern, or the visitor's
// persisted sampling decision is negative.
func (r *Recorder) Start() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		r.logger.Debug("start ignored, already recording")
		return false, nil
	}

	r.policy = privacy.NewPolicy(r.opts.Privacy)
	if r.policy.IsExcludedPage(r.page.URL()) {
		r.state = StateExcluded
		r.logger.Info("page excluded from recording", zap.String("url", r.page.URL()))
		return false, nil
	}

	if !r.sampled() {
		r.state = StateUnsampled
		r.logger.Info("visitor not sampled")
		return false, nil
	}

	r.sessionID = uuid.New().String()
	r.registry = identity.NewRegistry()
	r.tap = dom.NewHistoryTap(r.page.History())

	transport := r.opts.Transport
	if transport == nil {
		transport = pipeline.NewHTTPTransport(r.opts.Endpoint, r.opts.RequestTimeout)
	}
	r.pipe = pipeline.New(r.sessionID, transport, r.batchMeta, pipeline.Config{
		BatchSize:     r.opts.BatchSize,
		FlushInterval: r.opts.BatchInterval,
	}, r.logger)

	sink := r.sink()
	pointerCfg := watch.DefaultPointerConfig()
	pointerCfg.MoveInterval = r.opts.MouseThrottle
	pointerCfg.ScrollInterval = r.opts.ScrollThrottle

	r.watchers = []watch.Watcher{
		watch.NewStructuralWatcher(r.page, sink, r.registry, r.policy, r.logger),
		watch.NewPointerWatcher(r.page, sink, r.policy, pointerCfg, r.logger),
		watch.NewFormWatcher(r.page, sink, r.policy, r.logger),
		watch.NewNavigationWatcher(r.page, sink, r.policy, r.tap, r.logger),
	}

	r.pipe.Start()
	sink(models.SessionStartData{URL: r.page.URL(), UserAgent: r.page.UserAgent()})

	for _, w := range r.watchers {
		if err := w.Start(); err != nil {
			// A channel whose page facility is missing is a missing
			// feature, not a failed session.
			r.logger.Info("capture channel unavailable", zap.Error(err))
		}
	}

	r.attachFlushTriggers()

	r.state = StateRecording
	r.logger.Info("recording started",
		zap.String("session_id", r.sessionID),
		zap.String("visitor_id", r.visitorID))
	return true, nil
}

// Stop ends recording: it emits session-end, stops every channel, restores
// the history tap, and synchronously flushes whatever is still queued,
// bounded by the transport timeout. It returns false when not recording.
func (r *Recorder) Stop(ctx context.Context) bool {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		r.logger.Debug("stop ignored, not recording")
		return false
	}
	r.state = StateStopped

	r.sink()(models.SessionEndData{Reason: "stop"})

	for _, w := range r.watchers {
		w.Stop()
	}
	r.watchers = nil
	r.tap.Restore()
	for _, off := range r.flushOff {
		off()
	}
	r.flushOff = nil
	pipe := r.pipe
	r.mu.Unlock()

	pipe.Stop(ctx)
	r.logger.Info("recording stopped", zap.String("session_id", r.sessionID))
	return true
}

// HistoryTap returns the active tap the embedding application routes its
// navigation through while recording, or nil when not recording.
func (r *Recorder) HistoryTap() *dom.HistoryTap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tap
}

// sink builds the shared channel sink: it stamps session id and timestamp
// and enqueues for delivery.
func (r *Recorder) sink() watch.Sink {
	sessionID := r.sessionID
	pipe := r.pipe
	return func(data models.EventData) {
		pipe.Enqueue(models.NewEvent(sessionID, r.clock().UnixMilli(), data))
	}
}

// sampled returns the visitor's persisted sampling decision, rolling and
// persisting it on first sight. The decision is made once per visitor, not
// once per page view.
func (r *Recorder) sampled() bool {
	store := r.page.Storage()

	if id, ok := store.Get(storageKeyVisitor); ok {
		r.visitorID = id
	} else {
		r.visitorID = uuid.New().String()
		store.Set(storageKeyVisitor, r.visitorID)
	}

	if v, ok := store.Get(storageKeySampled); ok {
		return v == "true"
	}

	decision := r.roll(100) < r.opts.SamplingRate
	if decision {
		store.Set(storageKeySampled, "true")
	} else {
		store.Set(storageKeySampled, "false")
	}
	return decision
}

// attachFlushTriggers wires the unconditional flush points: page unload and
// visibility loss. The time- and size-triggered flushes live in the
// pipeline itself.
func (r *Recorder) attachFlushTriggers() {
	if off, err := r.page.ObserveUnload(func() {
		r.pipe.Flush(context.Background())
	}); err == nil {
		r.flushOff = append(r.flushOff, off)
	}
	if off, err := r.page.ObserveVisibility(func(hidden bool) {
		if hidden {
			r.pipe.Flush(context.Background())
		}
	}); err == nil {
		r.flushOff = append(r.flushOff, off)
	}
}

// batchMeta snapshots the client metadata attached to each delivered batch.
func (r *Recorder) batchMeta() models.BatchMeta {
	sw, sh := r.page.Screen()
	vw, vh := r.page.Viewport()
	return models.BatchMeta{
		UserAgent:   r.page.UserAgent(),
		Language:    r.page.Language(),
		Screen:      models.ScreenSize{Width: sw, Height: sh},
		Viewport:    &models.ScreenSize{Width: vw, Height: vh},
		URL:         r.page.URL(),
		Title:       r.page.Title(),
		Referrer:    r.page.Referrer(),
		Timezone:    r.page.Timezone(),
		Fingerprint: Fingerprint(r.page),
	}
}
