package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/capture/dom"
	"github.com/uxtrace/uxtrace/capture/domtest"
	"github.com/uxtrace/uxtrace/capture/privacy"
	"github.com/uxtrace/uxtrace/models"
)

func newNavigationFixture(t *testing.T, cfg privacy.Config) (*domtest.Page, *dom.HistoryTap, *NavigationWatcher, *eventLog) {
	t.Helper()
	page := domtest.NewPage(dom.NewElement("html", nil))
	tap := dom.NewHistoryTap(page.History())
	log := &eventLog{}
	w := NewNavigationWatcher(page, log.sink, privacy.NewPolicy(cfg), tap, zap.NewNop())
	return page, tap, w, log
}

func TestNavigationWatcherEmitsPageLoad(t *testing.T) {
	page, _, w, log := newNavigationFixture(t, privacy.DefaultConfig())
	page.PageURL = "https://example.test/start"
	page.PageTitle = "Start"
	page.PageReferrer = "https://ref.example.test/"
	page.NavTiming = &dom.NavigationTiming{DOMContentLoadedMs: 120, LoadMs: 340}

	require.NoError(t, w.Start())
	defer w.Stop()

	loads := log.ofKind(models.EventPageLoad)
	require.Len(t, loads, 1)
	data := loads[0].(models.PageLoadData)
	assert.Equal(t, "https://example.test/start", data.URL)
	assert.Equal(t, "Start", data.Title)
	assert.Equal(t, "https://ref.example.test/", data.Referrer)
	assert.Equal(t, int64(120), data.DOMContentLoadedMs)
	assert.Equal(t, int64(340), data.LoadMs)
}

func TestNavigationWatcherPageLoadWithoutTiming(t *testing.T) {
	_, _, w, log := newNavigationFixture(t, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	loads := log.ofKind(models.EventPageLoad)
	require.Len(t, loads, 1)
	data := loads[0].(models.PageLoadData)
	assert.Zero(t, data.DOMContentLoadedMs)
	assert.Zero(t, data.LoadMs)
}

func TestNavigationWatcherRouteChanges(t *testing.T) {
	page, tap, w, log := newNavigationFixture(t, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	tap.Push("https://example.test/a")
	tap.Replace("https://example.test/b")
	page.History().(*domtest.History).Pop("https://example.test/a")
	page.History().(*domtest.History).Hash("https://example.test/a#sec")

	trans := log.ofKind(models.EventPageTransition)
	require.Len(t, trans, 4)

	first := trans[0].(models.PageTransitionData)
	assert.Equal(t, "https://example.test/", first.From)
	assert.Equal(t, "https://example.test/a", first.To)
	assert.Equal(t, "push", first.Reason)

	assert.Equal(t, "replace", trans[1].(models.PageTransitionData).Reason)
	assert.Equal(t, "pop", trans[2].(models.PageTransitionData).Reason)

	last := trans[3].(models.PageTransitionData)
	assert.Equal(t, "hash", last.Reason)
	assert.Equal(t, "https://example.test/a", last.From, "origin follows the previous transition")
}

func TestNavigationWatcherExcludedPageSuppressedButTracked(t *testing.T) {
	cfg := privacy.DefaultConfig()
	cfg.ExcludePages = []string{"/admin"}
	_, tap, w, log := newNavigationFixture(t, cfg)
	require.NoError(t, w.Start())
	defer w.Stop()

	tap.Push("https://example.test/admin/users")
	tap.Push("https://example.test/home")

	trans := log.ofKind(models.EventPageTransition)
	require.Len(t, trans, 1, "the excluded destination emits nothing")
	data := trans[0].(models.PageTransitionData)
	assert.Equal(t, "https://example.test/admin/users", data.From,
		"bookkeeping advanced through the suppressed page")
	assert.Equal(t, "https://example.test/home", data.To)
}

func TestNavigationWatcherVisibility(t *testing.T) {
	page, _, w, log := newNavigationFixture(t, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	page.EmitVisibility(true)
	page.EmitVisibility(false)

	trans := log.ofKind(models.EventPageTransition)
	require.Len(t, trans, 1, "only visibility loss is reported")
	data := trans[0].(models.PageTransitionData)
	assert.Equal(t, "hidden", data.Reason)
	assert.Equal(t, "https://example.test/", data.From)
	assert.Empty(t, data.To)
}

func TestNavigationWatcherUnload(t *testing.T) {
	page, _, w, log := newNavigationFixture(t, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	page.EmitUnload()

	ends := log.ofKind(models.EventSessionEnd)
	require.Len(t, ends, 1)
	assert.Equal(t, "unload", ends[0].(models.SessionEndData).Reason)
}

func TestNavigationWatcherStopLeavesTapToController(t *testing.T) {
	page, tap, w, log := newNavigationFixture(t, privacy.DefaultConfig())
	require.NoError(t, w.Start())

	w.Stop()
	page.EmitVisibility(true)
	page.EmitUnload()
	assert.Empty(t, log.ofKind(models.EventSessionEnd))

	// The tap is restored by the session controller, not the watcher.
	tap.Restore()
	tap.Push("https://example.test/later")
	assert.Empty(t, log.ofKind(models.EventPageTransition))
}

func TestNavigationWatcherDegradedLifecycleSignals(t *testing.T) {
	page := domtest.NewPage(dom.NewElement("html", nil))
	page.Unsupported["visibility"] = true
	page.Unsupported["unload"] = true
	tap := dom.NewHistoryTap(page.History())
	log := &eventLog{}
	w := NewNavigationWatcher(page, log.sink, privacy.NewPolicy(privacy.DefaultConfig()), tap, zap.NewNop())

	require.NoError(t, w.Start(), "missing lifecycle signals degrade, never fail the channel")
	defer w.Stop()

	tap.Push("https://example.test/a")
	assert.Len(t, log.ofKind(models.EventPageTransition), 1)
}
