package models

// ScreenSize is a width/height pair in CSS pixels.
type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BatchMeta is the client metadata attached to every delivered batch.
type BatchMeta struct {
	UserAgent   string      `json:"userAgent,omitempty"`
	Language    string      `json:"language,omitempty"`
	Screen      ScreenSize  `json:"screen"`
	Viewport    *ScreenSize `json:"viewport,omitempty"`
	URL         string      `json:"url,omitempty"`
	Title       string      `json:"title,omitempty"`
	Referrer    string      `json:"referrer,omitempty"`
	Timezone    string      `json:"timezone,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
}

// BatchRequest is the POST body sent by the recorder to the collector.
type BatchRequest struct {
	SessionID string      `json:"sessionId" validate:"required"`
	Events    []WireEvent `json:"events" validate:"required,min=1,dive"`
	Timestamp int64       `json:"timestamp"`
	Meta      BatchMeta   `json:"meta"`
}

// BatchResponse acknowledges a stored batch.
type BatchResponse struct {
	Success        bool `json:"success"`
	EventsReceived int  `json:"eventsReceived"`
}
