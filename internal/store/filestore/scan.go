package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/colonyops/filesession/internal/core/logging"
	"github.com/colonyops/filesession/internal/core/record"
)

// Entry describes one identifier found in the store directory.
type Entry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	ExpiresAt time.Time `json:"expires_at,omitzero"` // zero means no expiry
	Size      int64     `json:"size"`
	Expired   bool      `json:"expired,omitempty"`
	Corrupt   bool      `json:"corrupt,omitempty"`
}

// Report summarizes the state of the store directory.
type Report struct {
	Records       int      `json:"records"`
	Corrupt       []string `json:"corrupt,omitempty"`
	Expired       []string `json:"expired,omitempty"`
	OrphanMarkers []string `json:"orphan_markers,omitempty"`
	TempFiles     []string `json:"temp_files,omitempty"`
}

// glob returns base names in the store directory matching pattern.
func (s *Store) glob(pattern string) ([]string, error) {
	names, err := doublestar.Glob(os.DirFS(s.dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	slices.Sort(names)
	return names, nil
}

// scan splits the directory into record and marker identifiers.
func (s *Store) scan() (records, markers []string, err error) {
	names, err := s.glob(s.prefix + "*")
	if err != nil {
		return nil, nil, err
	}

	for _, name := range names {
		id, marker, ok := s.idFromName(name)
		if !ok {
			continue
		}
		if marker {
			markers = append(markers, id)
		} else {
			records = append(records, id)
		}
	}
	return records, markers, nil
}

// List returns every record in the directory without reaping anything.
// Corrupt and expired records are included and flagged.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	ids, _, err := s.scan()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := s.clock.Now()
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry := Entry{ID: id}

		data, err := os.ReadFile(s.RecordPath(id))
		if err != nil {
			// Removed between scan and read.
			continue
		}
		entry.Size = int64(len(data))

		if rec, err := record.Decode(data); err == nil {
			entry.CreatedAt = rec.CreatedAt
		} else {
			entry.Corrupt = true
		}

		at, ok, err := s.expiry().Read(id)
		switch {
		case err != nil:
			entry.Expired = true
		case ok:
			entry.ExpiresAt = at
			entry.Expired = !now.Before(at)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// SweepExpired reaps every record whose marker says it has expired and
// removes markers whose record is already gone. It returns the number of
// identifiers cleaned up.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	records, markers, err := s.scan()
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}

	now := s.clock.Now()
	count := 0
	for _, id := range markers {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		idCtx := logging.WithSessionID(ctx, fingerprint(id))

		if _, found := slices.BinarySearch(records, id); !found {
			if err := removeIfExists(s.ExpirationPath(id)); err != nil {
				s.log.Warn().Ctx(idCtx).Err(err).Msg("delete orphan expiration marker")
				continue
			}
			count++
			continue
		}

		expired, err := s.expiry().IsExpired(id, now)
		if err != nil {
			s.log.Warn().Ctx(idCtx).Err(err).Msg("read expiration marker")
		}
		if expired {
			s.reap(idCtx, id)
			count++
		}
	}

	if count > 0 {
		s.log.Info().Int("count", count).Msg("swept expired sessions")
	}
	return count, nil
}

// Inspect reports corrupt records, expired but unreaped records, orphan
// markers, and leftover temp files. It changes nothing on disk.
func (s *Store) Inspect(ctx context.Context) (Report, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return Report{}, err
	}

	_, markers, err := s.scan()
	if err != nil {
		return Report{}, err
	}

	var r Report
	r.Records = len(entries)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
		if e.Corrupt {
			r.Corrupt = append(r.Corrupt, e.ID)
		}
		if e.Expired {
			r.Expired = append(r.Expired, e.ID)
		}
	}

	for _, id := range markers {
		if !slices.Contains(ids, id) {
			r.OrphanMarkers = append(r.OrphanMarkers, id)
		}
	}

	temps, err := s.glob("." + s.prefix + "*" + tempMarker + "*")
	if err != nil {
		return Report{}, err
	}
	r.TempFiles = temps

	return r, nil
}

// RemoveStaleTemp deletes temp files left behind by interrupted writes that
// are older than age. Younger temp files may belong to a save in flight.
func (s *Store) RemoveStaleTemp(age time.Duration) (int, error) {
	temps, err := s.glob("." + s.prefix + "*" + tempMarker + "*")
	if err != nil {
		return 0, err
	}

	cutoff := s.clock.Now().Add(-age)
	count := 0
	for _, name := range temps {
		if !strings.Contains(name, tempMarker) {
			continue
		}

		path := filepath.Join(s.dir, name)
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := removeIfExists(path); err != nil {
			return count, fmt.Errorf("remove temp file %s: %w", name, err)
		}
		count++
	}
	return count, nil
}
