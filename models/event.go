package models

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies the type of a captured event. The set is closed:
// payload encoding and replay switch exhaustively over these values.
type EventKind string

const (
	EventStructuralSnapshot EventKind = "structural-snapshot"
	EventStructuralMutation EventKind = "structural-mutation"
	EventPointerMove        EventKind = "pointer-move"
	EventPointerClick       EventKind = "pointer-click"
	EventScroll             EventKind = "scroll"
	EventFormInput          EventKind = "form-input"
	EventViewportResize     EventKind = "viewport-resize"
	EventPageLoad           EventKind = "page-load"
	EventPageTransition     EventKind = "page-transition"
	EventSessionStart       EventKind = "session-start"
	EventSessionEnd         EventKind = "session-end"
)

// Valid reports whether k is a member of the closed EventKind set.
func (k EventKind) Valid() bool {
	switch k {
	case EventStructuralSnapshot, EventStructuralMutation,
		EventPointerMove, EventPointerClick, EventScroll,
		EventFormInput, EventViewportResize,
		EventPageLoad, EventPageTransition,
		EventSessionStart, EventSessionEnd:
		return true
	}
	return false
}

// EventData is the closed union of per-kind payloads. Each payload type
// reports its own kind so an Event cannot be built with a mismatched pair.
type EventData interface {
	EventKind() EventKind
}

// Event is one captured occurrence within a session. Events are produced in
// timestamp-ascending order and the transport must not reorder them.
type Event struct {
	Kind      EventKind `json:"type"`
	Timestamp int64     `json:"timestamp"` // epoch milliseconds
	SessionID string    `json:"sessionId"`
	Data      EventData `json:"data"`
}

// NewEvent creates an Event whose kind is taken from the payload.
func NewEvent(sessionID string, ts int64, data EventData) Event {
	return Event{
		Kind:      data.EventKind(),
		Timestamp: ts,
		SessionID: sessionID,
		Data:      data,
	}
}

// MutationKind is the structural-mutation sub-kind.
type MutationKind string

const (
	MutationChildList     MutationKind = "childList"
	MutationAttributes    MutationKind = "attributes"
	MutationCharacterData MutationKind = "characterData"
)

// SnapshotData carries the full serialized document captured at recording
// start, the baseline the mutation stream is relative to.
type SnapshotData struct {
	Root *SerializedNode `json:"root"`
	URL  string          `json:"url"`
}

func (SnapshotData) EventKind() EventKind { return EventStructuralSnapshot }

// MutationData carries one incremental structural change. Exactly one of the
// sub-kind payload groups is populated, selected by Mutation.
type MutationData struct {
	Mutation MutationKind `json:"mutation"`
	TargetID int          `json:"targetId"`
	Selector string       `json:"selector"`

	// childList
	Added      []*SerializedNode `json:"added,omitempty"`
	RemovedIDs []int             `json:"removedIds,omitempty"`

	// attributes
	Attribute string `json:"attribute,omitempty"`

	// attributes and characterData
	OldValue string `json:"oldValue,omitempty"`
	NewValue string `json:"newValue,omitempty"`
}

func (MutationData) EventKind() EventKind { return EventStructuralMutation }

// PointerMoveData carries a throttled pointer position sample.
type PointerMoveData struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (PointerMoveData) EventKind() EventKind { return EventPointerMove }

// PointerClickData carries an unthrottled click.
type PointerClickData struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Button   int    `json:"button"`
	Selector string `json:"selector"`
	Tag      string `json:"tag"`
	Text     string `json:"text,omitempty"` // truncated preview, at most 50 chars
}

func (PointerClickData) EventKind() EventKind { return EventPointerClick }

// ScrollData carries a throttled scroll position sample.
type ScrollData struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (ScrollData) EventKind() EventKind { return EventScroll }

// FormInputAction distinguishes the form interactions sharing the
// form-input event kind.
type FormInputAction string

const (
	FormActionInput  FormInputAction = "input"
	FormActionChange FormInputAction = "change"
	FormActionFocus  FormInputAction = "focus"
	FormActionBlur   FormInputAction = "blur"
)

// FormInputData carries a form-control interaction. Value is already masked
// when the redaction policy required it.
type FormInputData struct {
	Action   FormInputAction `json:"action"`
	Selector string          `json:"selector"`
	Tag      string          `json:"tag"`

	Value          string `json:"value,omitempty"`
	SelectionStart *int   `json:"selectionStart,omitempty"`
	SelectionEnd   *int   `json:"selectionEnd,omitempty"`

	Checked *bool `json:"checked,omitempty"`

	SelectedIndex *int   `json:"selectedIndex,omitempty"`
	SelectedText  string `json:"selectedText,omitempty"`
}

func (FormInputData) EventKind() EventKind { return EventFormInput }

// ViewportResizeData carries the post-resize viewport dimensions.
type ViewportResizeData struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (ViewportResizeData) EventKind() EventKind { return EventViewportResize }

// PageLoadData carries the initial navigation state and timing when the
// page makes it available.
type PageLoadData struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Referrer string `json:"referrer,omitempty"`

	DOMContentLoadedMs int64 `json:"domContentLoadedMs,omitempty"`
	LoadMs             int64 `json:"loadMs,omitempty"`
}

func (PageLoadData) EventKind() EventKind { return EventPageLoad }

// PageTransitionData carries an in-page navigation (history push/replace,
// popstate, hash change) or a visibility loss ("hidden").
type PageTransitionData struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason"` // push, replace, pop, hash, hidden
}

func (PageTransitionData) EventKind() EventKind { return EventPageTransition }

// SessionStartData marks the beginning of a recording.
type SessionStartData struct {
	URL       string `json:"url"`
	UserAgent string `json:"userAgent,omitempty"`
}

func (SessionStartData) EventKind() EventKind { return EventSessionStart }

// SessionEndData marks the end of a recording.
type SessionEndData struct {
	Reason string `json:"reason,omitempty"` // stop, unload
}

func (SessionEndData) EventKind() EventKind { return EventSessionEnd }

// WireEvent is the transport shape of an event inside a batch. The payload
// stays raw JSON on the collector side: the store appends it verbatim and
// replay decodes it by kind.
type WireEvent struct {
	Type      string          `json:"type" validate:"required"`
	Timestamp int64           `json:"timestamp" validate:"required,gt=0"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ToWire converts a typed Event into its transport shape.
func (e Event) ToWire() (WireEvent, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return WireEvent{}, fmt.Errorf("failed to encode %s payload: %w", e.Kind, err)
	}
	return WireEvent{
		Type:      string(e.Kind),
		Timestamp: e.Timestamp,
		Data:      data,
	}, nil
}

// DecodeEventData decodes a wire payload back into its typed form. Unknown
// kinds are rejected, keeping the enumeration closed at both ends.
func DecodeEventData(kind EventKind, raw json.RawMessage) (EventData, error) {
	var data EventData
	switch kind {
	case EventStructuralSnapshot:
		data = &SnapshotData{}
	case EventStructuralMutation:
		data = &MutationData{}
	case EventPointerMove:
		data = &PointerMoveData{}
	case EventPointerClick:
		data = &PointerClickData{}
	case EventScroll:
		data = &ScrollData{}
	case EventFormInput:
		data = &FormInputData{}
	case EventViewportResize:
		data = &ViewportResizeData{}
	case EventPageLoad:
		data = &PageLoadData{}
	case EventPageTransition:
		data = &PageTransitionData{}
	case EventSessionStart:
		data = &SessionStartData{}
	case EventSessionEnd:
		data = &SessionEndData{}
	default:
		return nil, fmt.Errorf("unknown event kind: %q", kind)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, data); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
	}
	return data, nil
}
