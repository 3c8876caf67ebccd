package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session is one recorded visit to a page. A session row is created on the
// first batch received for an unknown sessionId and touched (UpdatedAt,
// EventCount) by every later batch.
type Session struct {
	SessionID   string `json:"sessionId" db:"session_id"`
	VisitorID   string `json:"visitorId,omitempty" db:"visitor_id"`
	Fingerprint string `json:"fingerprint,omitempty" db:"fingerprint"`

	URL            string `json:"url" db:"url"`
	Title          string `json:"title,omitempty" db:"title"`
	Referrer       string `json:"referrer,omitempty" db:"referrer"`
	UserAgent      string `json:"userAgent,omitempty" db:"user_agent"`
	ScreenWidth    int    `json:"screenWidth,omitempty" db:"screen_width"`
	ScreenHeight   int    `json:"screenHeight,omitempty" db:"screen_height"`
	ViewportWidth  int    `json:"viewportWidth,omitempty" db:"viewport_width"`
	ViewportHeight int    `json:"viewportHeight,omitempty" db:"viewport_height"`

	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
	EventCount int       `json:"eventCount" db:"event_count"`

	// VisitCount is joined in from the visitor row for list responses.
	VisitCount int `json:"visitCount,omitempty" db:"-"`
}

// TableName returns the table name for the Session model.
func (Session) TableName() string {
	return "sessions"
}

// Visitor correlates sessions to a returning browser via a low-entropy
// fingerprint. Collisions across unrelated visitors are an accepted
// precision trade-off, not a correctness bug.
type Visitor struct {
	VisitorID   string    `json:"visitorId" db:"visitor_id"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	VisitCount  int       `json:"visitCount" db:"visit_count"`
	FirstSeen   time.Time `json:"firstSeen" db:"first_seen"`
	LastSeen    time.Time `json:"lastSeen" db:"last_seen"`
}

// TableName returns the table name for the Visitor model.
func (Visitor) TableName() string {
	return "visitors"
}

// NewVisitor creates a Visitor for a fingerprint seen for the first time.
func NewVisitor(fingerprint string) *Visitor {
	now := time.Now().UTC()
	return &Visitor{
		VisitorID:   uuid.New().String(),
		Fingerprint: fingerprint,
		VisitCount:  1,
		FirstSeen:   now,
		LastSeen:    now,
	}
}

// EventRecord is one stored event log entry. Entries are append-only, keyed
// by (session_id, timestamp, seq) and never updated or reordered; they are
// deleted only together with their owning session.
type EventRecord struct {
	SessionID string          `json:"sessionId" db:"session_id"`
	Timestamp int64           `json:"timestamp" db:"ts"`
	Seq       int             `json:"seq" db:"seq"`
	Kind      string          `json:"type" db:"kind"`
	Data      json.RawMessage `json:"data,omitempty" db:"data"`
}

// TableName returns the table name for the EventRecord model.
func (EventRecord) TableName() string {
	return "events"
}
