// Package filestore persists session records as plain files, one per
// identifier, with an optional companion file holding the absolute expiry.
//
// All state lives on disk. A Store holds configuration only, takes no locks,
// and any number of Stores (in one process or several) may share a directory.
// Concurrent saves to the same identifier resolve as last write wins.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/filesession/internal/core/clock"
	"github.com/colonyops/filesession/internal/core/logging"
	"github.com/colonyops/filesession/internal/core/record"
	"github.com/colonyops/filesession/pkg/randid"
)

// NoExpiry is the TTL that saves a record without an expiration marker.
const NoExpiry time.Duration = 0

const (
	defaultFileMode = 0o600
	defaultDirMode  = 0o700

	// newIDAttempts bounds how often Save asks the generator for an
	// identifier that is neither the rejected caller id nor already in use.
	newIDAttempts = 8
)

var (
	// ErrWrite wraps every failure surfaced by Save.
	ErrWrite = errors.New("filestore: write failed")

	// ErrInvalidID is returned when the generator yields an identifier that
	// cannot be used as a file name.
	ErrInvalidID = errors.New("filestore: invalid identifier")
)

// Options configures a Store. Only Dir is required.
type Options struct {
	// Dir is the directory holding record and marker files. It is created
	// if missing.
	Dir string
	// Prefix is prepended to identifiers to form file names.
	// Defaults to DefaultPrefix.
	Prefix string
	// DefaultTTL is reported to callers that have no TTL of their own.
	// NoExpiry (zero) means records do not expire.
	DefaultTTL time.Duration
	// NewID generates identifiers for new records. Defaults to randid.UUIDHex.
	NewID randid.Generator
	// Clock supplies the current time. Defaults to clock.Real.
	Clock clock.Clock
	// FileMode is applied to record and marker files. Defaults to 0600.
	FileMode os.FileMode
	// Logger receives warnings for swallowed read and delete failures.
	// Defaults to the "filestore" component logger.
	Logger *zerolog.Logger
}

// Store is the file backed session engine.
type Store struct {
	dir        string
	prefix     string
	defaultTTL time.Duration
	newID      randid.Generator
	clock      clock.Clock
	fileMode   os.FileMode
	log        zerolog.Logger

	// writeFile replaces a file's contents atomically. Tests swap it to
	// inject failures.
	writeFile func(path string, data []byte, mode os.FileMode) error
}

// New creates a Store rooted at opts.Dir.
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("filestore: directory is required")
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !ValidPrefix(prefix) {
		return nil, fmt.Errorf("filestore: invalid prefix %q", prefix)
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("filestore: negative default ttl %s", opts.DefaultTTL)
	}

	if err := os.MkdirAll(opts.Dir, defaultDirMode); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{
		dir:        opts.Dir,
		prefix:     prefix,
		defaultTTL: opts.DefaultTTL,
		newID:      opts.NewID,
		clock:      opts.Clock,
		fileMode:   opts.FileMode,
		writeFile:  writeFileAtomic,
	}

	if s.newID == nil {
		s.newID = randid.UUIDHex
	}
	if s.clock == nil {
		s.clock = clock.Real
	}
	if s.fileMode == 0 {
		s.fileMode = defaultFileMode
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	} else {
		s.log = logging.Component("filestore")
	}

	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Prefix returns the record file name prefix.
func (s *Store) Prefix() string { return s.prefix }

// DefaultTTL returns the configured default TTL, NoExpiry if unset.
func (s *Store) DefaultTTL() time.Duration { return s.defaultTTL }

func (s *Store) expiry() expiry { return expiry{store: s} }

// Load returns the record for id. The boolean is false when id is malformed,
// unknown, expired, or its record is corrupt; callers cannot tell these
// apart. An expired record and its marker are deleted before returning.
func (s *Store) Load(ctx context.Context, id string) (record.Record, bool) {
	if ctx.Err() != nil || !ValidID(id) {
		return record.Record{}, false
	}

	ctx = logging.WithSessionID(ctx, fingerprint(id))

	if !s.checkLive(ctx, id) {
		return record.Record{}, false
	}

	data, err := os.ReadFile(s.RecordPath(id))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Ctx(ctx).Err(err).Msg("read session record")
		}
		return record.Record{}, false
	}

	rec, err := record.Decode(data)
	if err != nil {
		s.log.Debug().Ctx(ctx).Err(err).Msg("discarding corrupt session record")
		return record.Record{}, false
	}

	return rec, true
}

// Exists reports whether id names a record that is present and not expired.
// It does not decode the record, so a corrupt record still reports true.
func (s *Store) Exists(ctx context.Context, id string) bool {
	if ctx.Err() != nil || !ValidID(id) {
		return false
	}

	ctx = logging.WithSessionID(ctx, fingerprint(id))
	if !s.checkLive(ctx, id) {
		return false
	}

	_, err := os.Stat(s.RecordPath(id))
	return err == nil
}

// checkLive evaluates the expiration marker for id, reaping the pair when
// it says the record has expired. It returns false if the caller must treat
// id as absent.
func (s *Store) checkLive(ctx context.Context, id string) bool {
	expired, err := s.expiry().IsExpired(id, s.clock.Now())
	if err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("read expiration marker")
		if !expired {
			return false
		}
	}

	if expired {
		s.reap(ctx, id)
		return false
	}
	return true
}

// Save persists payload and returns the identifier to use from now on.
//
// If id names a live record its payload is replaced and its creation time
// kept. Otherwise a new record is created under a freshly generated
// identifier; the supplied id is never used for a new record. A positive
// ttl writes an expiration marker at now+ttl, anything else removes it.
//
// A failed Save leaves the stored state as it was: for an update the marker
// is changed first and restored if the record cannot be written, for a new
// record the record is written first and removed if the marker cannot be.
//
// Errors wrap ErrWrite.
func (s *Store) Save(ctx context.Context, id string, payload map[string]any, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}

	now := s.clock.Now()

	rec, isExisting := s.Load(ctx, id)
	if isExisting {
		rec = rec.WithPayload(payload)
	} else {
		fresh, err := s.freshID(id)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrWrite, err)
		}
		id = fresh
		rec = record.New(payload, now)
	}

	ctx = logging.WithSessionID(ctx, fingerprint(id))

	data, err := record.Encode(rec)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}

	if isExisting {
		err = s.update(ctx, id, data, now, ttl)
	} else {
		err = s.create(ctx, id, data, now, ttl)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}

	s.log.Debug().Ctx(ctx).Bool("new", !isExisting).Dur("ttl", ttl).Msg("saved session")
	return id, nil
}

// create writes the record before its marker. A marker written first could
// be swept as an orphan before the record lands.
func (s *Store) create(ctx context.Context, id string, data []byte, now time.Time, ttl time.Duration) error {
	if err := s.writeFile(s.RecordPath(id), data, s.fileMode); err != nil {
		return fmt.Errorf("save record: %w", err)
	}

	if err := s.applyTTL(id, now, ttl); err != nil {
		// A new record must not outlive a marker that was never written.
		if rmErr := removeIfExists(s.RecordPath(id)); rmErr != nil {
			s.log.Warn().Ctx(ctx).Err(rmErr).Msg("remove record after failed marker write")
		}
		return err
	}
	return nil
}

// update changes the marker before the record, so a failed marker write
// leaves the old payload in place.
func (s *Store) update(ctx context.Context, id string, data []byte, now time.Time, ttl time.Duration) error {
	prev, hadPrev, err := s.expiry().Read(id)
	if err != nil {
		return err
	}

	if err := s.applyTTL(id, now, ttl); err != nil {
		return err
	}

	if err := s.writeFile(s.RecordPath(id), data, s.fileMode); err != nil {
		var restoreErr error
		if hadPrev {
			restoreErr = s.expiry().Write(id, prev.Unix())
		} else {
			restoreErr = s.expiry().Clear(id)
		}
		if restoreErr != nil {
			s.log.Warn().Ctx(ctx).Err(restoreErr).Msg("restore expiration marker after failed record write")
		}
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

func (s *Store) applyTTL(id string, now time.Time, ttl time.Duration) error {
	if ttl > 0 {
		return s.expiry().Write(id, expiresAt(now, ttl))
	}
	return s.expiry().Clear(id)
}

// freshID asks the generator for an identifier that differs from rejected
// and is not already in use on disk.
func (s *Store) freshID(rejected string) (string, error) {
	for range newIDAttempts {
		id := s.newID()
		if !ValidID(id) {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
		if id == rejected {
			continue
		}
		if _, err := os.Lstat(s.RecordPath(id)); err == nil {
			continue
		}
		return id, nil
	}
	return "", fmt.Errorf("generate identifier: no unused identifier after %d attempts", newIDAttempts)
}

// Invalidate deletes the record and marker for id. It is idempotent and
// never fails; deletion errors are logged.
func (s *Store) Invalidate(ctx context.Context, id string) {
	if !ValidID(id) {
		return
	}
	s.reap(logging.WithSessionID(ctx, fingerprint(id)), id)
}

// reap removes the record first and the marker second. If the record cannot
// be removed its marker is kept, so an expired record never loses the file
// that marks it expired. An orphan marker left by a crash is swept later.
func (s *Store) reap(ctx context.Context, id string) {
	if err := removeIfExists(s.RecordPath(id)); err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("delete session record")
		return
	}
	if err := removeIfExists(s.ExpirationPath(id)); err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("delete expiration marker")
	}
	s.log.Debug().Ctx(ctx).Msg("removed session")
}
