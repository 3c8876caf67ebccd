package dom

import (
	"errors"
	"sync"
)

// ErrUnsupported is returned by Observe methods the concrete page cannot
// provide.
var ErrUnsupported = errors.New("dom: observation not supported by this page")

// HistoryTap decorates a History so route changes made through it are
// visible to an observer, without replacing the underlying history object.
// The embedding application routes its navigation calls through the tap
// while recording; Restore detaches the observer and leaves the tap as a
// transparent pass-through, so a stopped recorder can never leak into a
// later session sharing the same history.
type HistoryTap struct {
	inner History

	mu       sync.Mutex
	listener func(to, reason string)
	pops     []Detach
}

// NewHistoryTap wraps h in a tap.
func NewHistoryTap(h History) *HistoryTap {
	return &HistoryTap{inner: h}
}

// Push forwards to the underlying history and notifies the observer.
func (t *HistoryTap) Push(url string) {
	t.inner.Push(url)
	t.notify(url, "push")
}

// Replace forwards to the underlying history and notifies the observer.
func (t *HistoryTap) Replace(url string) {
	t.inner.Replace(url)
	t.notify(url, "replace")
}

// ObservePop forwards to the underlying history.
func (t *HistoryTap) ObservePop(fn func(url string)) Detach {
	return t.inner.ObservePop(fn)
}

// ObserveHash forwards to the underlying history.
func (t *HistoryTap) ObserveHash(fn func(url string)) Detach {
	return t.inner.ObserveHash(fn)
}

// Observe registers the navigation observer. Pop and hash navigation are
// wired through the underlying history so the observer sees every URL
// change with its reason.
func (t *HistoryTap) Observe(fn func(to, reason string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = fn
	t.pops = append(t.pops,
		t.inner.ObservePop(func(url string) { t.notify(url, "pop") }),
		t.inner.ObserveHash(func(url string) { t.notify(url, "hash") }),
	)
}

// Restore detaches the observer. The tap keeps forwarding Push/Replace.
func (t *HistoryTap) Restore() {
	t.mu.Lock()
	pops := t.pops
	t.pops = nil
	t.listener = nil
	t.mu.Unlock()
	for _, d := range pops {
		d()
	}
}

func (t *HistoryTap) notify(to, reason string) {
	t.mu.Lock()
	fn := t.listener
	t.mu.Unlock()
	if fn != nil {
		fn(to, reason)
	}
}
