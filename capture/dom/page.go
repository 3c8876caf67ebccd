package dom

// Detach unregisters an observer. Detaching twice is harmless.
type Detach func()

// MutationKind is the sub-kind of a structural mutation record.
type MutationKind int

const (
	MutationChildList MutationKind = iota
	MutationAttributes
	MutationCharacterData
)

// MutationRecord describes one observed structural change.
type MutationRecord struct {
	Kind   MutationKind
	Target *Node

	// childList
	Added   []*Node
	Removed []*Node

	// attributes
	AttributeName string

	// attributes and characterData; the new value is read from Target.
	OldValue string
}

// PointerKind distinguishes pointer signals.
type PointerKind int

const (
	PointerMove PointerKind = iota
	PointerClick
)

// PointerEvent is a raw pointer signal.
type PointerEvent struct {
	Kind   PointerKind
	X, Y   int
	Button int
	Target *Node // element under the pointer, may be nil for moves
}

// FormAction distinguishes form-control signals.
type FormAction int

const (
	FormInput FormAction = iota
	FormChange
	FormFocus
	FormBlur
)

// FormEvent is a raw form-control signal. Control state (value, checked,
// selected index) is read from Target at observation time.
type FormEvent struct {
	Action FormAction
	Target *Node

	SelectionStart int
	SelectionEnd   int
}

// NavigationTiming is the page-load timing the environment may expose.
type NavigationTiming struct {
	DOMContentLoadedMs int64
	LoadMs             int64
}

// Storage is the persisted per-visitor key/value store (localStorage-like).
// The sampling decision and visitor identifier survive page loads here.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// History is the navigation history capability. Push and Replace are called
// by the embedding application's router; Pop and hash observation cover
// navigation the application did not initiate.
type History interface {
	Push(url string)
	Replace(url string)
	ObservePop(fn func(url string)) Detach
	ObserveHash(fn func(url string)) Detach
}

// Page is the full capability surface one recorded page exposes. Any
// observation a concrete page cannot provide returns ErrUnsupported from
// the corresponding Observe method; the feature is then unavailable, not
// fatal to the session.
type Page interface {
	Root() *Node

	URL() string
	Title() string
	Referrer() string
	UserAgent() string
	Language() string
	Timezone() string
	Screen() (width, height int)
	Viewport() (width, height int)
	Timing() (NavigationTiming, bool)

	ObserveMutations(fn func(MutationRecord)) (Detach, error)
	ObservePointer(fn func(PointerEvent)) (Detach, error)
	ObserveScroll(fn func(x, y int)) (Detach, error)
	ObserveResize(fn func(width, height int)) (Detach, error)
	ObserveForms(fn func(FormEvent)) (Detach, error)
	ObserveVisibility(fn func(hidden bool)) (Detach, error)
	ObserveUnload(fn func()) (Detach, error)

	History() History
	Storage() Storage
}
