package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// errBadMarker is returned when an expiration marker cannot be parsed.
var errBadMarker = errors.New("malformed expiration marker")

// expiry persists the absolute expiration of each record in a companion
// file, so TTL can be checked without decoding the record itself.
type expiry struct {
	store *Store
}

// expiresAt computes the marker value for a save at now with ttl. Markers
// hold whole seconds, so now+ttl is rounded up: a record may outlive its TTL
// by less than a second but never expires before it. TTL is never clamped.
func expiresAt(now time.Time, ttl time.Duration) int64 {
	end := now.Add(ttl)
	secs := end.Unix()
	if end.Nanosecond() != 0 {
		secs++
	}
	return secs
}

// Write replaces the marker for id with the absolute expiry at.
func (e expiry) Write(id string, at int64) error {
	data := strconv.AppendInt(nil, at, 10)
	if err := e.store.writeFile(e.store.ExpirationPath(id), data, e.store.fileMode); err != nil {
		return fmt.Errorf("write expiration marker: %w", err)
	}
	return nil
}

// Clear removes the marker for id. A missing marker is not an error.
func (e expiry) Clear(id string) error {
	if err := removeIfExists(e.store.ExpirationPath(id)); err != nil {
		return fmt.Errorf("clear expiration marker: %w", err)
	}
	return nil
}

// Read returns the stored expiry for id. ok is false when there is no marker.
func (e expiry) Read(id string) (at time.Time, ok bool, err error) {
	data, err := os.ReadFile(e.store.ExpirationPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	secs, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("%w: %v", errBadMarker, err)
	}
	return time.Unix(secs, 0), true, nil
}

// IsExpired reports whether a marker exists for id and now is at or past it.
// No marker means the record never expires. A marker that cannot be parsed
// counts as expired and is reported through err alongside true.
func (e expiry) IsExpired(id string, now time.Time) (bool, error) {
	at, ok, err := e.Read(id)
	if err != nil {
		if errors.Is(err, errBadMarker) {
			return true, err
		}
		return false, err
	}
	if !ok {
		return false, nil
	}
	return !now.Before(at), nil
}
