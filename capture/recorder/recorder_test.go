package recorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/capture/dom"
	"github.com/uxtrace/uxtrace/capture/domtest"
	"github.com/uxtrace/uxtrace/models"
)

// captureTransport records delivered batches.
type captureTransport struct {
	mu      sync.Mutex
	batches []models.BatchRequest
}

func (t *captureTransport) Send(_ context.Context, batch models.BatchRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches = append(t.batches, batch)
	return nil
}

func (t *captureTransport) events() []models.WireEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []models.WireEvent
	for _, b := range t.batches {
		out = append(out, b.Events...)
	}
	return out
}

func (t *captureTransport) kinds() []string {
	var out []string
	for _, we := range t.events() {
		out = append(out, we.Type)
	}
	return out
}

func testPage() *domtest.Page {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	root.AppendChild(body)
	return domtest.NewPage(root)
}

func testOptions(transport *captureTransport) Options {
	opts := DefaultOptions()
	opts.Transport = transport
	opts.BatchInterval = time.Hour
	return opts
}

func newTestRecorder(page *domtest.Page, opts Options) *Recorder {
	r := New(page, opts, zap.NewNop())
	base := time.Unix(1700000000, 0)
	tick := 0
	r.clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return r
}

func TestStartStopLifecycle(t *testing.T) {
	transport := &captureTransport{}
	page := testPage()
	r := newTestRecorder(page, testOptions(transport))

	started, err := r.Start()
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, StateRecording, r.State())
	require.NotEmpty(t, r.SessionID())

	sessionID := r.SessionID()
	require.True(t, r.Stop(context.Background()))
	assert.Equal(t, StateStopped, r.State())

	kinds := transport.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, string(models.EventSessionStart), kinds[0], "session-start leads the stream")
	assert.Contains(t, kinds, string(models.EventStructuralSnapshot))
	assert.Contains(t, kinds, string(models.EventPageLoad))
	assert.Equal(t, string(models.EventSessionEnd), kinds[len(kinds)-1], "session-end closes the stream")

	for _, b := range transport.batches {
		assert.Equal(t, sessionID, b.SessionID)
	}
}

func TestStartWhileRecordingIsNoop(t *testing.T) {
	transport := &captureTransport{}
	r := newTestRecorder(testPage(), testOptions(transport))

	started, err := r.Start()
	require.NoError(t, err)
	require.True(t, started)
	first := r.SessionID()

	started, err = r.Start()
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, first, r.SessionID(), "the active session survives a redundant start")

	r.Stop(context.Background())
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	r := newTestRecorder(testPage(), testOptions(&captureTransport{}))
	assert.False(t, r.Stop(context.Background()))
	assert.Equal(t, StateIdle, r.State())
}

func TestNewSessionIDPerStart(t *testing.T) {
	transport := &captureTransport{}
	r := newTestRecorder(testPage(), testOptions(transport))

	started, err := r.Start()
	require.NoError(t, err)
	require.True(t, started)
	first := r.SessionID()
	r.Stop(context.Background())

	started, err = r.Start()
	require.NoError(t, err)
	require.True(t, started)
	assert.NotEqual(t, first, r.SessionID())
	r.Stop(context.Background())
}

func TestExcludedPageNeverStarts(t *testing.T) {
	transport := &captureTransport{}
	page := testPage()
	page.PageURL = "https://example.test/admin/settings"

	opts := testOptions(transport)
	opts.Privacy.ExcludePages = []string{"/admin"}
	r := newTestRecorder(page, opts)

	started, err := r.Start()
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, StateExcluded, r.State())
	assert.Empty(t, transport.batches)
}

func TestSamplingDecisionPersistsAcrossStarts(t *testing.T) {
	transport := &captureTransport{}
	page := testPage()
	opts := testOptions(transport)
	opts.SamplingRate = 50
	r := newTestRecorder(page, opts)
	r.roll = func(int) int { return 99 } // above the rate, not sampled

	started, err := r.Start()
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, StateUnsampled, r.State())

	v, ok := page.Storage().Get("uxtrace:sampled")
	require.True(t, ok)
	assert.Equal(t, "false", v)

	// A favorable roll cannot override the persisted decision.
	r.roll = func(int) int { return 0 }
	started, err = r.Start()
	require.NoError(t, err)
	assert.False(t, started)
}

func TestVisitorIDPersisted(t *testing.T) {
	transport := &captureTransport{}
	page := testPage()
	r := newTestRecorder(page, testOptions(transport))

	started, err := r.Start()
	require.NoError(t, err)
	require.True(t, started)
	id, ok := page.Storage().Get("uxtrace:visitor")
	require.True(t, ok)
	require.NotEmpty(t, id)
	r.Stop(context.Background())

	// A second recorder on the same storage sees the same visitor.
	r2 := newTestRecorder(page, testOptions(transport))
	started, err = r2.Start()
	require.NoError(t, err)
	require.True(t, started)
	id2, _ := page.Storage().Get("uxtrace:visitor")
	assert.Equal(t, id, id2)
	r2.Stop(context.Background())
}

func TestZeroSamplingRateRecordsNobody(t *testing.T) {
	page := testPage()
	opts := testOptions(&captureTransport{})
	opts.SamplingRate = 0
	r := newTestRecorder(page, opts)
	r.roll = func(int) int { return 0 }

	started, err := r.Start()
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, StateUnsampled, r.State())
}

func TestEventsFlowWhileRecording(t *testing.T) {
	transport := &captureTransport{}
	page := testPage()
	r := newTestRecorder(page, testOptions(transport))

	started, err := r.Start()
	require.NoError(t, err)
	require.True(t, started)

	body := page.Root().Children()[0]
	page.AppendChild(body, dom.NewElement("div", nil))
	page.EmitPointer(dom.PointerEvent{Kind: dom.PointerClick, X: 5, Y: 5, Target: body})
	r.HistoryTap().Push("https://example.test/next")

	r.Stop(context.Background())

	kinds := transport.kinds()
	assert.Contains(t, kinds, string(models.EventStructuralMutation))
	assert.Contains(t, kinds, string(models.EventPointerClick))
	assert.Contains(t, kinds, string(models.EventPageTransition))
}

func TestTimestampsNonDecreasing(t *testing.T) {
	transport := &captureTransport{}
	page := testPage()
	r := newTestRecorder(page, testOptions(transport))

	started, err := r.Start()
	require.NoError(t, err)
	require.True(t, started)

	body := page.Root().Children()[0]
	for i := 0; i < 5; i++ {
		page.AppendChild(body, dom.NewElement("span", nil))
	}
	r.Stop(context.Background())

	events := transport.events()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Timestamp, events[i-1].Timestamp)
	}
}

func TestStopDetachesChannels(t *testing.T) {
	transport := &captureTransport{}
	page := testPage()
	r := newTestRecorder(page, testOptions(transport))

	started, err := r.Start()
	require.NoError(t, err)
	require.True(t, started)
	r.Stop(context.Background())
	delivered := len(transport.events())

	body := page.Root().Children()[0]
	page.AppendChild(body, dom.NewElement("div", nil))
	page.EmitPointer(dom.PointerEvent{Kind: dom.PointerClick, Target: body})
	page.EmitUnload()

	assert.Len(t, transport.events(), delivered, "a stopped recorder captures nothing")
}

func TestBatchMetaAttached(t *testing.T) {
	transport := &captureTransport{}
	page := testPage()
	page.PageTitle = "Checkout"
	r := newTestRecorder(page, testOptions(transport))

	started, err := r.Start()
	require.NoError(t, err)
	require.True(t, started)
	r.Stop(context.Background())

	require.NotEmpty(t, transport.batches)
	meta := transport.batches[0].Meta
	assert.Equal(t, "domtest/1.0", meta.UserAgent)
	assert.Equal(t, "en-US", meta.Language)
	assert.Equal(t, models.ScreenSize{Width: 1920, Height: 1080}, meta.Screen)
	require.NotNil(t, meta.Viewport)
	assert.Equal(t, models.ScreenSize{Width: 1280, Height: 720}, *meta.Viewport)
	assert.Equal(t, "Checkout", meta.Title)
	assert.NotEmpty(t, meta.Fingerprint)
}

func TestFingerprintDeterministic(t *testing.T) {
	a := testPage()
	b := testPage()
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 16)

	b.UA = "other/2.0"
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestVisibilityLossFlushesQueue(t *testing.T) {
	transport := &captureTransport{}
	page := testPage()
	opts := testOptions(transport)
	opts.BatchSize = 1000
	r := newTestRecorder(page, opts)

	started, err := r.Start()
	require.NoError(t, err)
	require.True(t, started)

	page.EmitVisibility(true)

	require.Eventually(t, func() bool {
		for _, k := range transport.kinds() {
			if k == string(models.EventPageTransition) {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "the hidden transition reaches the transport without waiting for a timer")

	r.Stop(context.Background())
}
