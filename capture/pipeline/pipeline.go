// Package pipeline buffers captured events and delivers them to the
// collector in batches, with at-least-once semantics: a batch that fails to
// deliver returns to the head of the queue in its original order and is
// retried on the next flush cycle.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/models"
)

// Config holds the batching thresholds.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the default batching thresholds.
func DefaultConfig() Config {
	return Config{
		BatchSize:     50,
		FlushInterval: 5 * time.Second,
	}
}

// queueWarnFactor triggers a warning once the pending queue grows past this
// multiple of the batch size. Retries are unbounded, so a dead endpoint
// grows the queue without limit; the log line is the only backpressure
// signal.
const queueWarnFactor = 20

// MetaFunc supplies the current client metadata attached to each batch.
type MetaFunc func() models.BatchMeta

// Pipeline is one session's delivery queue. Enqueue appends at the tail; a
// flush removes up to BatchSize events from the head. Flushes for one
// pipeline never overlap, which keeps re-queue-on-failure ordering correct.
type Pipeline struct {
	sessionID string
	transport Transport
	meta      MetaFunc
	cfg       Config
	logger    *zap.Logger

	mu       sync.Mutex
	queue    []models.Event
	inFlight bool
	warned   bool

	stopTimer   chan struct{}
	timerDone   sync.WaitGroup
	sizeFlushes sync.WaitGroup
	started     bool
}

// New creates a pipeline for one session.
func New(sessionID string, transport Transport, meta MetaFunc, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Pipeline{
		sessionID: sessionID,
		transport: transport,
		meta:      meta,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start begins the periodic time-triggered flush.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stopTimer = make(chan struct{})
	p.timerDone.Add(1)
	go p.runTimer(p.stopTimer)
}

func (p *Pipeline) runTimer(stop chan struct{}) {
	defer p.timerDone.Done()
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Flush(context.Background())
		case <-stop:
			return
		}
	}
}

// Enqueue appends an event at the tail. Reaching the batch size triggers an
// immediate flush; delivery happens off the caller's path, so capture
// callbacks never block on network I/O.
func (p *Pipeline) Enqueue(ev models.Event) {
	p.mu.Lock()
	p.queue = append(p.queue, ev)
	full := len(p.queue) >= p.cfg.BatchSize
	if n := len(p.queue); n >= p.cfg.BatchSize*queueWarnFactor && !p.warned {
		p.warned = true
		p.logger.Warn("pending event queue is growing, endpoint may be down",
			zap.String("session_id", p.sessionID),
			zap.Int("pending", n))
	}
	p.mu.Unlock()

	if full {
		p.sizeFlushes.Add(1)
		go func() {
			defer p.sizeFlushes.Done()
			p.Flush(context.Background())
		}()
	}
}

// Len returns the number of pending events.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Pending returns a copy of the pending events in queue order.
func (p *Pipeline) Pending() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Event, len(p.queue))
	copy(out, p.queue)
	return out
}

// Flush removes up to BatchSize events from the head and attempts delivery.
// On failure the events return to the head, ahead of anything enqueued
// since, and the failure is logged, never raised. A flush requested while
// another is in flight is a no-op; the next cycle picks the events up.
func (p *Pipeline) Flush(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight || len(p.queue) == 0 {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	n := len(p.queue)
	if n > p.cfg.BatchSize {
		n = p.cfg.BatchSize
	}
	batch := make([]models.Event, n)
	copy(batch, p.queue[:n])
	p.queue = p.queue[n:]
	p.mu.Unlock()

	err := p.deliver(ctx, batch)

	p.mu.Lock()
	p.inFlight = false
	if err != nil {
		requeued := make([]models.Event, 0, len(batch)+len(p.queue))
		requeued = append(requeued, batch...)
		requeued = append(requeued, p.queue...)
		p.queue = requeued
	} else if len(p.queue) < p.cfg.BatchSize*queueWarnFactor {
		p.warned = false
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("batch delivery failed, events re-queued",
			zap.String("session_id", p.sessionID),
			zap.Int("events", len(batch)),
			zap.Error(err))
	}
}

func (p *Pipeline) deliver(ctx context.Context, events []models.Event) error {
	wire := make([]models.WireEvent, 0, len(events))
	for _, ev := range events {
		we, err := ev.ToWire()
		if err != nil {
			// An unencodable payload cannot ever succeed; drop it
			// rather than wedge the queue.
			p.logger.Error("dropping unencodable event",
				zap.String("session_id", p.sessionID),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err))
			continue
		}
		wire = append(wire, we)
	}
	if len(wire) == 0 {
		return nil
	}

	batch := models.BatchRequest{
		SessionID: p.sessionID,
		Events:    wire,
		Timestamp: time.Now().UnixMilli(),
	}
	if p.meta != nil {
		batch.Meta = p.meta()
	}
	return p.transport.Send(ctx, batch)
}

// Stop cancels the periodic flush and drains the queue with one final
// synchronous flush per pending batch, bounded by the transport's own
// timeout. It gives up on the first failure; the events stay queued.
func (p *Pipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopTimer)
	p.mu.Unlock()
	p.timerDone.Wait()
	// A size-triggered flush may still be delivering; let it finish so
	// the drain below sees the real queue state.
	p.sizeFlushes.Wait()

	for {
		before := p.Len()
		if before == 0 {
			return
		}
		p.Flush(ctx)
		if p.Len() >= before {
			return
		}
	}
}
