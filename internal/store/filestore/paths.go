package filestore

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultPrefix is prepended to every identifier to form the record file name.
	DefaultPrefix = "FILESESSION_"

	// ExpirationSuffix names the marker file that sits next to a record.
	ExpirationSuffix = ".expiration"

	tempMarker = ".tmp-"

	maxIDLength = 128
)

// ValidID reports whether id is a well formed identifier: 1 to 128
// characters drawn from [A-Za-z0-9_-]. Anything else could name a file
// outside the store directory and is never touched.
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !validIDByte(id[i]) {
			return false
		}
	}
	return true
}

// ValidPrefix reports whether p can be used as a record file prefix. The
// empty prefix is allowed.
func ValidPrefix(p string) bool {
	for i := 0; i < len(p); i++ {
		if !validIDByte(p[i]) {
			return false
		}
	}
	return true
}

func validIDByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}

// recordName returns the file name (no directory) for id.
func (s *Store) recordName(id string) string {
	return s.prefix + id
}

// RecordPath returns the path of the record file for id.
func (s *Store) RecordPath(id string) string {
	return filepath.Join(s.dir, s.recordName(id))
}

// ExpirationPath returns the path of the expiration marker for id.
func (s *Store) ExpirationPath(id string) string {
	return s.RecordPath(id) + ExpirationSuffix
}

// idFromName maps a directory entry name back to an identifier. The second
// result reports whether the name is an expiration marker.
func (s *Store) idFromName(name string) (id string, marker bool, ok bool) {
	if strings.HasPrefix(name, ".") || strings.Contains(name, tempMarker) {
		return "", false, false
	}
	if !strings.HasPrefix(name, s.prefix) {
		return "", false, false
	}

	rest := strings.TrimPrefix(name, s.prefix)
	if trimmed, found := strings.CutSuffix(rest, ExpirationSuffix); found {
		rest = trimmed
		marker = true
	}

	if !ValidID(rest) {
		return "", false, false
	}
	return rest, marker, true
}

// fingerprint shortens an identifier for log output.
func fingerprint(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[:6] + "…"
}

// removeIfExists deletes path, treating a missing file as success.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
