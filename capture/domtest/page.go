// Package domtest provides a deterministic in-memory dom.Page used by the
// capture tests. Mutations go through the page's mutator methods so the
// matching observer callbacks fire synchronously, the way a single-threaded
// page event loop delivers them.
package domtest

import (
	"github.com/uxtrace/uxtrace/capture/dom"
)

// Page is an in-memory dom.Page. The zero value is not usable; construct
// with NewPage.
type Page struct {
	root *dom.Node

	PageURL      string
	PageTitle    string
	PageReferrer string
	UA           string
	Lang         string
	TZ           string
	ScreenW      int
	ScreenH      int
	ViewportW    int
	ViewportH    int
	NavTiming    *dom.NavigationTiming

	// Unsupported disables the named observation so feature-unavailable
	// paths can be exercised. Keys: mutations, pointer, scroll, resize,
	// forms, visibility, unload.
	Unsupported map[string]bool

	mutationObs   obsList[func(dom.MutationRecord)]
	pointerObs    obsList[func(dom.PointerEvent)]
	scrollObs     obsList[func(x, y int)]
	resizeObs     obsList[func(w, h int)]
	formObs       obsList[func(dom.FormEvent)]
	visibilityObs obsList[func(hidden bool)]
	unloadObs     obsList[func()]

	history *History
	storage *Storage
}

// NewPage creates a page with the given document root.
func NewPage(root *dom.Node) *Page {
	return &Page{
		root:        root,
		PageURL:     "https://example.test/",
		UA:          "domtest/1.0",
		Lang:        "en-US",
		TZ:          "UTC",
		ScreenW:     1920,
		ScreenH:     1080,
		ViewportW:   1280,
		ViewportH:   720,
		Unsupported: map[string]bool{},
		history:     &History{},
		storage:     &Storage{values: map[string]string{}},
	}
}

func (p *Page) Root() *dom.Node      { return p.root }
func (p *Page) URL() string          { return p.PageURL }
func (p *Page) Title() string        { return p.PageTitle }
func (p *Page) Referrer() string     { return p.PageReferrer }
func (p *Page) UserAgent() string    { return p.UA }
func (p *Page) Language() string     { return p.Lang }
func (p *Page) Timezone() string     { return p.TZ }
func (p *Page) Screen() (int, int)   { return p.ScreenW, p.ScreenH }
func (p *Page) Viewport() (int, int) { return p.ViewportW, p.ViewportH }
func (p *Page) History() dom.History { return p.history }
func (p *Page) Storage() dom.Storage { return p.storage }

func (p *Page) Timing() (dom.NavigationTiming, bool) {
	if p.NavTiming == nil {
		return dom.NavigationTiming{}, false
	}
	return *p.NavTiming, true
}

func (p *Page) ObserveMutations(fn func(dom.MutationRecord)) (dom.Detach, error) {
	if p.Unsupported["mutations"] {
		return nil, dom.ErrUnsupported
	}
	return p.mutationObs.add(fn), nil
}

func (p *Page) ObservePointer(fn func(dom.PointerEvent)) (dom.Detach, error) {
	if p.Unsupported["pointer"] {
		return nil, dom.ErrUnsupported
	}
	return p.pointerObs.add(fn), nil
}

func (p *Page) ObserveScroll(fn func(x, y int)) (dom.Detach, error) {
	if p.Unsupported["scroll"] {
		return nil, dom.ErrUnsupported
	}
	return p.scrollObs.add(fn), nil
}

func (p *Page) ObserveResize(fn func(w, h int)) (dom.Detach, error) {
	if p.Unsupported["resize"] {
		return nil, dom.ErrUnsupported
	}
	return p.resizeObs.add(fn), nil
}

func (p *Page) ObserveForms(fn func(dom.FormEvent)) (dom.Detach, error) {
	if p.Unsupported["forms"] {
		return nil, dom.ErrUnsupported
	}
	return p.formObs.add(fn), nil
}

func (p *Page) ObserveVisibility(fn func(hidden bool)) (dom.Detach, error) {
	if p.Unsupported["visibility"] {
		return nil, dom.ErrUnsupported
	}
	return p.visibilityObs.add(fn), nil
}

func (p *Page) ObserveUnload(fn func()) (dom.Detach, error) {
	if p.Unsupported["unload"] {
		return nil, dom.ErrUnsupported
	}
	return p.unloadObs.add(fn), nil
}

// AppendChild attaches child under parent and delivers a childList record.
func (p *Page) AppendChild(parent, child *dom.Node) {
	parent.AppendChild(child)
	p.emitMutation(dom.MutationRecord{
		Kind:   dom.MutationChildList,
		Target: parent,
		Added:  []*dom.Node{child},
	})
}

// RemoveChild detaches child from parent and delivers a childList record.
func (p *Page) RemoveChild(parent, child *dom.Node) {
	parent.RemoveChild(child)
	p.emitMutation(dom.MutationRecord{
		Kind:    dom.MutationChildList,
		Target:  parent,
		Removed: []*dom.Node{child},
	})
}

// SetAttr updates an attribute and delivers an attributes record.
func (p *Page) SetAttr(el *dom.Node, name, value string) {
	old := el.Attrs[name]
	el.Attrs[name] = value
	p.emitMutation(dom.MutationRecord{
		Kind:          dom.MutationAttributes,
		Target:        el,
		AttributeName: name,
		OldValue:      old,
	})
}

// SetText updates character data and delivers a characterData record.
func (p *Page) SetText(n *dom.Node, text string) {
	old := n.Text
	n.Text = text
	p.emitMutation(dom.MutationRecord{
		Kind:     dom.MutationCharacterData,
		Target:   n,
		OldValue: old,
	})
}

// EmitMutation delivers a raw mutation record, for malformed-record tests.
func (p *Page) EmitMutation(rec dom.MutationRecord) { p.emitMutation(rec) }

func (p *Page) emitMutation(rec dom.MutationRecord) {
	p.mutationObs.each(func(fn func(dom.MutationRecord)) { fn(rec) })
}

// EmitPointer delivers a pointer signal.
func (p *Page) EmitPointer(ev dom.PointerEvent) {
	p.pointerObs.each(func(fn func(dom.PointerEvent)) { fn(ev) })
}

// EmitScroll delivers a scroll signal.
func (p *Page) EmitScroll(x, y int) {
	p.scrollObs.each(func(fn func(x, y int)) { fn(x, y) })
}

// EmitResize delivers a resize signal and updates the viewport.
func (p *Page) EmitResize(w, h int) {
	p.ViewportW, p.ViewportH = w, h
	p.resizeObs.each(func(fn func(w, h int)) { fn(w, h) })
}

// EmitForm delivers a form signal.
func (p *Page) EmitForm(ev dom.FormEvent) {
	p.formObs.each(func(fn func(dom.FormEvent)) { fn(ev) })
}

// EmitVisibility delivers a visibility change.
func (p *Page) EmitVisibility(hidden bool) {
	p.visibilityObs.each(func(fn func(hidden bool)) { fn(hidden) })
}

// EmitUnload delivers the unload signal.
func (p *Page) EmitUnload() {
	p.unloadObs.each(func(fn func()) { fn() })
}

// History is the fake history. Push/Replace update the page URL; Pop and
// Hash simulate navigation the application did not initiate.
type History struct {
	URLs    []string
	popObs  obsList[func(url string)]
	hashObs obsList[func(url string)]
}

func (h *History) Push(url string)    { h.URLs = append(h.URLs, url) }
func (h *History) Replace(url string) { h.URLs = append(h.URLs, url) }

func (h *History) ObservePop(fn func(url string)) dom.Detach {
	return h.popObs.add(fn)
}

func (h *History) ObserveHash(fn func(url string)) dom.Detach {
	return h.hashObs.add(fn)
}

// Pop simulates a popstate navigation.
func (h *History) Pop(url string) {
	h.popObs.each(func(fn func(url string)) { fn(url) })
}

// Hash simulates a hash-only navigation.
func (h *History) Hash(url string) {
	h.hashObs.each(func(fn func(url string)) { fn(url) })
}

// Storage is an in-memory dom.Storage.
type Storage struct {
	values map[string]string
}

func (s *Storage) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Storage) Set(key, value string) { s.values[key] = value }

// obsList holds registered observers in registration order and supports
// detach by registration id.
type obsList[T any] struct {
	nextID  int
	entries []obsEntry[T]
}

type obsEntry[T any] struct {
	id int
	fn T
}

func (l *obsList[T]) add(fn T) dom.Detach {
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, obsEntry[T]{id: id, fn: fn})
	return func() {
		for i, e := range l.entries {
			if e.id == id {
				l.entries = append(l.entries[:i], l.entries[i+1:]...)
				return
			}
		}
	}
}

func (l *obsList[T]) each(f func(T)) {
	for _, e := range l.entries {
		f(e.fn)
	}
}
