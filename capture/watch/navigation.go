package watch

import (
	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/capture/dom"
	"github.com/uxtrace/uxtrace/capture/privacy"
	"github.com/uxtrace/uxtrace/models"
)

// NavigationWatcher observes page lifecycle: the initial load, in-page
// route changes through the history tap, visibility loss, and unload.
type NavigationWatcher struct {
	page   dom.Page
	sink   Sink
	logger *zap.Logger
	policy *privacy.Policy
	tap    *dom.HistoryTap

	currentURL string
	detaches   []dom.Detach
}

// NewNavigationWatcher creates the navigation channel. The tap is owned by
// the session controller, which restores it on stop.
func NewNavigationWatcher(page dom.Page, sink Sink, policy *privacy.Policy, tap *dom.HistoryTap, logger *zap.Logger) *NavigationWatcher {
	return &NavigationWatcher{
		page:   page,
		sink:   sink,
		logger: logger,
		policy: policy,
		tap:    tap,
	}
}

// Start emits the page-load event and attaches navigation observers.
func (w *NavigationWatcher) Start() error {
	w.currentURL = w.page.URL()

	guard(w.logger, "navigation", func() {
		data := models.PageLoadData{
			URL:      w.currentURL,
			Title:    w.page.Title(),
			Referrer: w.page.Referrer(),
		}
		if timing, ok := w.page.Timing(); ok {
			data.DOMContentLoadedMs = timing.DOMContentLoadedMs
			data.LoadMs = timing.LoadMs
		}
		w.sink(data)
	})

	w.tap.Observe(w.onNavigate)

	if d, err := w.page.ObserveVisibility(w.onVisibility); err == nil {
		w.detaches = append(w.detaches, d)
	} else {
		w.logger.Info("visibility observation unavailable", zap.Error(err))
	}
	if d, err := w.page.ObserveUnload(w.onUnload); err == nil {
		w.detaches = append(w.detaches, d)
	} else {
		w.logger.Info("unload observation unavailable", zap.Error(err))
	}
	return nil
}

// Stop detaches the observers. The history tap itself is restored by the
// session controller.
func (w *NavigationWatcher) Stop() {
	for _, d := range w.detaches {
		d()
	}
	w.detaches = nil
}

func (w *NavigationWatcher) onNavigate(to, reason string) {
	guard(w.logger, "navigation", func() {
		from := w.currentURL
		// Bookkeeping advances even when the destination is an excluded
		// page, so a later transition away reports the right origin.
		w.currentURL = to
		if w.policy.IsExcludedPage(to) {
			w.logger.Debug("navigation to excluded page suppressed", zap.String("url", to))
			return
		}
		w.sink(models.PageTransitionData{From: from, To: to, Reason: reason})
	})
}

func (w *NavigationWatcher) onVisibility(hidden bool) {
	guard(w.logger, "navigation", func() {
		if !hidden {
			return
		}
		w.sink(models.PageTransitionData{From: w.currentURL, Reason: "hidden"})
	})
}

func (w *NavigationWatcher) onUnload() {
	guard(w.logger, "navigation", func() {
		w.sink(models.SessionEndData{Reason: "unload"})
	})
}
