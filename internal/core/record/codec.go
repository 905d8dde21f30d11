package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt is matched (via errors.Is) by every decode failure.
var ErrCorrupt = errors.New("record: corrupt")

// CorruptError describes why a record could not be decoded.
type CorruptError struct {
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("record: corrupt: %s: %v", e.Reason, e.Err)
	}
	return "record: corrupt: " + e.Reason
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCorrupt) true for any *CorruptError.
func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

func corrupt(reason string, err error) error {
	return &CorruptError{Reason: reason, Err: err}
}

// wireRecord is the on-disk layout:
//
//	{"session": {...}, "created": 1700000000}
type wireRecord struct {
	Session json.RawMessage `json:"session"`
	Created json.RawMessage `json:"created"`
}

// Encode serializes r.
func Encode(r Record) ([]byte, error) {
	payload := r.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	session, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	created, err := json.Marshal(r.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("encode created: %w", err)
	}

	return json.Marshal(wireRecord{Session: session, Created: created})
}

// Decode parses data produced by Encode. Empty input, malformed JSON, and
// missing or mistyped fields all yield an error matching ErrCorrupt.
func Decode(data []byte) (Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Record{}, corrupt("empty", nil)
	}

	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, corrupt("malformed", err)
	}

	if isNullOrMissing(w.Session) {
		return Record{}, corrupt("missing session", nil)
	}
	if isNullOrMissing(w.Created) {
		return Record{}, corrupt("missing created", nil)
	}

	var payload map[string]any
	if err := json.Unmarshal(w.Session, &payload); err != nil {
		return Record{}, corrupt("session is not an object", err)
	}

	created, err := decodeUnix(w.Created)
	if err != nil {
		return Record{}, corrupt("created is not a timestamp", err)
	}

	return Record{Payload: payload, CreatedAt: created}, nil
}

func isNullOrMissing(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func decodeUnix(raw json.RawMessage) (time.Time, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, err
	}

	if i, err := n.Int64(); err == nil {
		return time.Unix(i, 0), nil
	}

	f, err := n.Float64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(f), 0), nil
}
