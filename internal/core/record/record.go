// Package record defines the persisted session record and its on-disk codec.
package record

import (
	"maps"
	"time"
)

// Record is the unit persisted for one identifier.
type Record struct {
	// Payload holds the session values. Values must be JSON serializable;
	// after a round trip numbers come back as float64.
	Payload map[string]any
	// CreatedAt is set on the first successful save of an identifier and
	// never changed afterwards. Stored with second precision.
	CreatedAt time.Time
}

// New returns a Record for payload created at now.
func New(payload map[string]any, now time.Time) Record {
	return Record{Payload: clonePayload(payload), CreatedAt: now.Truncate(time.Second)}
}

// IsZero reports whether r is the empty record returned for missing sessions.
func (r Record) IsZero() bool {
	return r.Payload == nil && r.CreatedAt.IsZero()
}

// WithPayload returns a copy of r carrying payload, preserving CreatedAt.
func (r Record) WithPayload(payload map[string]any) Record {
	return Record{Payload: clonePayload(payload), CreatedAt: r.CreatedAt}
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return maps.Clone(p)
}
