package watch

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/capture/dom"
	"github.com/uxtrace/uxtrace/capture/privacy"
	"github.com/uxtrace/uxtrace/capture/selector"
	"github.com/uxtrace/uxtrace/models"
)

// clickTextLimit caps the click text preview length.
const clickTextLimit = 50

// PointerConfig holds the pointer channel's throttle intervals.
type PointerConfig struct {
	MoveInterval   time.Duration
	ScrollInterval time.Duration
	ResizeInterval time.Duration
}

// DefaultPointerConfig returns the default throttle intervals.
func DefaultPointerConfig() PointerConfig {
	return PointerConfig{
		MoveInterval:   50 * time.Millisecond,
		ScrollInterval: 100 * time.Millisecond,
		ResizeInterval: 250 * time.Millisecond,
	}
}

// PointerWatcher observes pointer movement, clicks, scrolling and viewport
// resizes. Moves, scrolls and resizes are throttled independently; clicks
// are never throttled.
type PointerWatcher struct {
	page   dom.Page
	sink   Sink
	logger *zap.Logger
	policy *privacy.Policy

	moves   *throttle
	scrolls *throttle
	resizes *throttle

	detaches []dom.Detach
}

// NewPointerWatcher creates the pointer/scroll/viewport channel.
func NewPointerWatcher(page dom.Page, sink Sink, policy *privacy.Policy, cfg PointerConfig, logger *zap.Logger) *PointerWatcher {
	return &PointerWatcher{
		page:    page,
		sink:    sink,
		logger:  logger,
		policy:  policy,
		moves:   newThrottle(cfg.MoveInterval),
		scrolls: newThrottle(cfg.ScrollInterval),
		resizes: newThrottle(cfg.ResizeInterval),
	}
}

// Start attaches the pointer, scroll and resize observers. A facility the
// page cannot provide disables that signal only.
func (w *PointerWatcher) Start() error {
	if d, err := w.page.ObservePointer(w.onPointer); err == nil {
		w.detaches = append(w.detaches, d)
	} else {
		w.logger.Info("pointer observation unavailable", zap.Error(err))
	}
	if d, err := w.page.ObserveScroll(w.onScroll); err == nil {
		w.detaches = append(w.detaches, d)
	} else {
		w.logger.Info("scroll observation unavailable", zap.Error(err))
	}
	if d, err := w.page.ObserveResize(w.onResize); err == nil {
		w.detaches = append(w.detaches, d)
	} else {
		w.logger.Info("resize observation unavailable", zap.Error(err))
	}
	return nil
}

// Stop detaches all observers and drops pending trailing emissions.
func (w *PointerWatcher) Stop() {
	for _, d := range w.detaches {
		d()
	}
	w.detaches = nil
	w.moves.Stop()
	w.scrolls.Stop()
	w.resizes.Stop()
}

func (w *PointerWatcher) onPointer(ev dom.PointerEvent) {
	guard(w.logger, "pointer", func() {
		switch ev.Kind {
		case dom.PointerMove:
			x, y := ev.X, ev.Y
			w.moves.Do(func() {
				w.sink(models.PointerMoveData{X: x, Y: y})
			})
		case dom.PointerClick:
			if ev.Target != nil && w.policy.IsExcluded(ev.Target) {
				return
			}
			data := models.PointerClickData{
				X:      ev.X,
				Y:      ev.Y,
				Button: ev.Button,
			}
			if ev.Target != nil {
				data.Selector = selector.Of(ev.Target)
				data.Tag = ev.Target.Tag
				data.Text = truncate(strings.TrimSpace(ev.Target.TextContent()), clickTextLimit)
			}
			w.sink(data)
		}
	})
}

func (w *PointerWatcher) onScroll(x, y int) {
	guard(w.logger, "pointer", func() {
		w.scrolls.Do(func() {
			w.sink(models.ScrollData{X: x, Y: y})
		})
	})
}

func (w *PointerWatcher) onResize(width, height int) {
	guard(w.logger, "pointer", func() {
		w.resizes.Do(func() {
			w.sink(models.ViewportResizeData{Width: width, Height: height})
		})
	})
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
