package recorder

import (
	"time"

	"github.com/uxtrace/uxtrace/capture/pipeline"
	"github.com/uxtrace/uxtrace/capture/privacy"
)

// Options is the recorder configuration surface.
type Options struct {
	// Endpoint is the collector URL batches are posted to.
	Endpoint string

	// SamplingRate is the percentage (0-100) of visitors whose sessions
	// are recorded. The roll happens once per visitor and the outcome is
	// persisted, not re-rolled per page view.
	SamplingRate int

	// BatchSize and BatchInterval are the flush thresholds.
	BatchSize     int
	BatchInterval time.Duration

	// MouseThrottle and ScrollThrottle bound pointer-move and scroll
	// event rates.
	MouseThrottle  time.Duration
	ScrollThrottle time.Duration

	// RequestTimeout bounds one delivery attempt, including the final
	// synchronous flush on stop.
	RequestTimeout time.Duration

	// Privacy is the redaction and exclusion rule set.
	Privacy privacy.Config

	// Transport overrides the HTTP transport. Tests use this; production
	// leaves it nil.
	Transport pipeline.Transport
}

// DefaultOptions returns the recorder defaults.
func DefaultOptions() Options {
	return Options{
		SamplingRate:   100,
		BatchSize:      50,
		BatchInterval:  5 * time.Second,
		MouseThrottle:  50 * time.Millisecond,
		ScrollThrottle: 100 * time.Millisecond,
		RequestTimeout: 10 * time.Second,
		Privacy:        privacy.DefaultConfig(),
	}
}

// withDefaults fills unset fields from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	// A zero rate is a valid "record nobody"; only out-of-range values
	// fall back to the default.
	if o.SamplingRate < 0 || o.SamplingRate > 100 {
		o.SamplingRate = def.SamplingRate
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.BatchInterval <= 0 {
		o.BatchInterval = def.BatchInterval
	}
	if o.MouseThrottle <= 0 {
		o.MouseThrottle = def.MouseThrottle
	}
	if o.ScrollThrottle <= 0 {
		o.ScrollThrottle = def.ScrollThrottle
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = def.RequestTimeout
	}
	if o.Privacy.MaskAttribute == "" {
		o.Privacy.MaskAttribute = def.Privacy.MaskAttribute
	}
	if o.Privacy.ExcludeAttribute == "" {
		o.Privacy.ExcludeAttribute = def.Privacy.ExcludeAttribute
	}
	return o
}
