package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/filesession/internal/core/clock"
	"github.com/colonyops/filesession/pkg/randid"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestStore creates a store in a temp dir with a fake clock. Fields set on
// opts override the defaults.
func newTestStore(t *testing.T, opts Options) (*Store, *clock.Fake) {
	t.Helper()

	fake := clock.NewFake(epoch)
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	if opts.Clock == nil {
		opts.Clock = fake
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	s, err := New(opts)
	require.NoError(t, err)
	return s, fake
}

// sequence yields ids in order, then falls back to random hex.
func sequence(ids ...string) randid.Generator {
	var n atomic.Int64
	fallback := randid.Hex(16)
	return func() string {
		i := int(n.Add(1)) - 1
		if i < len(ids) {
			return ids[i]
		}
		return fallback()
	}
}

func fileExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires dir", func(t *testing.T) {
		_, err := New(Options{})
		require.Error(t, err)
	})

	t.Run("rejects bad prefix", func(t *testing.T) {
		_, err := New(Options{Dir: t.TempDir(), Prefix: "../x"})
		require.Error(t, err)
	})

	t.Run("rejects negative ttl", func(t *testing.T) {
		_, err := New(Options{Dir: t.TempDir(), DefaultTTL: -time.Second})
		require.Error(t, err)
	})

	t.Run("creates missing dir and applies defaults", func(t *testing.T) {
		dir := t.TempDir() + "/nested/sessions"
		s, err := New(Options{Dir: dir})
		require.NoError(t, err)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, DefaultPrefix, s.Prefix())
		assert.Equal(t, NoExpiry, s.DefaultTTL())
		assert.Equal(t, dir, s.Dir())
	})
}

func TestLoad_UnknownID(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	for _, id := range []string{"", "never-saved", "0123456789abcdef", "../etc/passwd", "a/b", "has.dot"} {
		_, ok := s.Load(ctx, id)
		assert.False(t, ok, "id %q", id)
	}
}

func TestSave_NewRecordRoundTrip(t *testing.T) {
	t.Parallel()

	ttls := []struct {
		name string
		ttl  time.Duration
	}{
		{"no expiry", NoExpiry},
		{"one hour", time.Hour},
		{"fractional", 1500 * time.Millisecond},
	}

	for _, tt := range ttls {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t, Options{})
			ctx := context.Background()
			payload := map[string]any{"user": "alice", "count": float64(3)}

			id, err := s.Save(ctx, "", payload, tt.ttl)
			require.NoError(t, err)
			require.True(t, ValidID(id))

			rec, ok := s.Load(ctx, id)
			require.True(t, ok)
			assert.Equal(t, payload, rec.Payload)
			assert.Equal(t, epoch.Unix(), rec.CreatedAt.Unix())

			assert.Equal(t, tt.ttl > 0, fileExists(t, s.ExpirationPath(id)))
		})
	}
}

func TestSave_ExistingPreservesCreatedAt(t *testing.T) {
	t.Parallel()
	s, fake := newTestStore(t, Options{})
	ctx := context.Background()

	id, err := s.Save(ctx, "", map[string]any{"v": "one"}, time.Hour)
	require.NoError(t, err)

	fake.Advance(10 * time.Minute)

	id2, err := s.Save(ctx, id, map[string]any{"v": "two"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	rec, ok := s.Load(ctx, id)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"v": "two"}, rec.Payload)
	assert.Equal(t, epoch.Unix(), rec.CreatedAt.Unix())
}

func TestSave_ExistingWithoutTTLClearsMarker(t *testing.T) {
	t.Parallel()
	s, fake := newTestStore(t, Options{})
	ctx := context.Background()

	id, err := s.Save(ctx, "", map[string]any{"k": "v"}, time.Minute)
	require.NoError(t, err)
	require.True(t, fileExists(t, s.ExpirationPath(id)))

	_, err = s.Save(ctx, id, map[string]any{"k": "v"}, NoExpiry)
	require.NoError(t, err)
	assert.False(t, fileExists(t, s.ExpirationPath(id)))

	fake.Advance(24 * time.Hour)
	_, ok := s.Load(ctx, id)
	assert.True(t, ok)
}

func TestLoad_ExpiredIsReaped(t *testing.T) {
	t.Parallel()
	s, fake := newTestStore(t, Options{})
	ctx := context.Background()

	id, err := s.Save(ctx, "", map[string]any{"k": "v"}, 30*time.Second)
	require.NoError(t, err)

	fake.Advance(29 * time.Second)
	_, ok := s.Load(ctx, id)
	require.True(t, ok, "still live one second before expiry")

	fake.Advance(time.Second)
	_, ok = s.Load(ctx, id)
	assert.False(t, ok)

	assert.False(t, fileExists(t, s.RecordPath(id)))
	assert.False(t, fileExists(t, s.ExpirationPath(id)))
}

func TestLoad_SubSecondSaveTime(t *testing.T) {
	t.Parallel()

	saved := time.Unix(1_700_000_000, 999_000_000)

	tests := []struct {
		name  string
		ttl   time.Duration
		after time.Duration
		live  bool
	}{
		{"two milliseconds later", time.Second, 2 * time.Millisecond, true},
		{"ttl less one millisecond", time.Second, time.Second - time.Millisecond, true},
		{"ttl elapsed", time.Second, time.Second, true},
		{"next whole second", time.Second, time.Second + time.Millisecond, false},
		{"thirty days plus one less a millisecond", 30*24*time.Hour + time.Second, 30*24*time.Hour + time.Second - time.Millisecond, true},
		{"thirty days plus one elapsed", 30*24*time.Hour + time.Second, 30*24*time.Hour + 2*time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, fake := newTestStore(t, Options{})
			fake.Set(saved)
			ctx := context.Background()

			id, err := s.Save(ctx, "", map[string]any{"k": "v"}, tt.ttl)
			require.NoError(t, err)

			fake.Set(saved.Add(tt.after))
			_, ok := s.Load(ctx, id)
			assert.Equal(t, tt.live, ok)
			assert.Equal(t, tt.live, fileExists(t, s.RecordPath(id)))
		})
	}
}

func TestLoad_NoTTLNeverExpires(t *testing.T) {
	t.Parallel()
	s, fake := newTestStore(t, Options{})
	ctx := context.Background()

	id, err := s.Save(ctx, "", map[string]any{"k": "v"}, NoExpiry)
	require.NoError(t, err)

	fake.Advance(100 * 365 * 24 * time.Hour)

	rec, ok := s.Load(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "v", rec.Payload["k"])
}

func TestLoad_LongTTLIsNotClamped(t *testing.T) {
	t.Parallel()
	s, fake := newTestStore(t, Options{})
	ctx := context.Background()

	ttl := 30*24*time.Hour + time.Second
	id, err := s.Save(ctx, "", map[string]any{"k": "v"}, ttl)
	require.NoError(t, err)

	fake.Advance(30 * 24 * time.Hour)
	rec, ok := s.Load(ctx, id)
	require.True(t, ok, "must survive past 30 days")
	assert.Equal(t, map[string]any{"k": "v"}, rec.Payload)

	fake.Advance(time.Second)
	_, ok = s.Load(ctx, id)
	assert.False(t, ok)
}

func TestLoad_CorruptRecordIsEmpty(t *testing.T) {
	t.Parallel()

	contents := map[string][]byte{
		"zero length": {},
		"garbage":     []byte("\x00\x01not json"),
		"truncated":   []byte(`{"session":{"a":1},"crea`),
		"wrong shape": []byte(`["session"]`),
		"no created":  []byte(`{"session":{}}`),
	}

	for name, data := range contents {
		t.Run(name, func(t *testing.T) {
			s, _ := newTestStore(t, Options{})
			ctx := context.Background()

			id := "corrupt-" + randid.Generate(8)
			require.NoError(t, os.WriteFile(s.RecordPath(id), data, 0o600))

			assert.NotPanics(t, func() {
				_, ok := s.Load(ctx, id)
				assert.False(t, ok)
			})

			// The store keeps working and a save mints a fresh id.
			newID, err := s.Save(ctx, id, map[string]any{"ok": true}, NoExpiry)
			require.NoError(t, err)
			assert.NotEqual(t, id, newID)
		})
	}
}

func TestLoad_CorruptMarkerReapsPair(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	id, err := s.Save(ctx, "", map[string]any{"k": "v"}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.ExpirationPath(id), []byte("soon"), 0o600))

	_, ok := s.Load(ctx, id)
	assert.False(t, ok)
	assert.False(t, fileExists(t, s.RecordPath(id)))
	assert.False(t, fileExists(t, s.ExpirationPath(id)))
}

func TestLoad_ExpiredCorruptRecordIsReaped(t *testing.T) {
	t.Parallel()
	s, fake := newTestStore(t, Options{})
	ctx := context.Background()

	id, err := s.Save(ctx, "", map[string]any{"k": "v"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.RecordPath(id), []byte("{broken"), 0o600))

	fake.Advance(2 * time.Minute)

	_, ok := s.Load(ctx, id)
	assert.False(t, ok)
	assert.False(t, fileExists(t, s.RecordPath(id)))
	assert.False(t, fileExists(t, s.ExpirationPath(id)))
}

func TestSave_FixationResistance(t *testing.T) {
	t.Parallel()

	t.Run("caller id never reused", func(t *testing.T) {
		s, _ := newTestStore(t, Options{})
		ctx := context.Background()

		id, err := s.Save(ctx, "attacker-chosen-id", map[string]any{"k": "v"}, time.Hour)
		require.NoError(t, err)
		assert.NotEqual(t, "attacker-chosen-id", id)
		assert.False(t, fileExists(t, s.RecordPath("attacker-chosen-id")))
	})

	t.Run("generator returning caller id is retried", func(t *testing.T) {
		s, _ := newTestStore(t, Options{NewID: sequence("attacker", "attacker", "minted")})

		id, err := s.Save(context.Background(), "attacker", nil, NoExpiry)
		require.NoError(t, err)
		assert.Equal(t, "minted", id)
	})

	t.Run("generator returning a used id is retried", func(t *testing.T) {
		s, _ := newTestStore(t, Options{NewID: sequence("first", "first", "second")})
		ctx := context.Background()

		id1, err := s.Save(ctx, "", nil, NoExpiry)
		require.NoError(t, err)
		id2, err := s.Save(ctx, "", nil, NoExpiry)
		require.NoError(t, err)

		assert.Equal(t, "first", id1)
		assert.Equal(t, "second", id2)
	})

	t.Run("expired id is not revived", func(t *testing.T) {
		s, fake := newTestStore(t, Options{})
		ctx := context.Background()

		id, err := s.Save(ctx, "", map[string]any{"k": "v"}, time.Second)
		require.NoError(t, err)
		fake.Advance(time.Minute)

		id2, err := s.Save(ctx, id, map[string]any{"k": "v2"}, time.Second)
		require.NoError(t, err)
		assert.NotEqual(t, id, id2)
	})

	t.Run("stuck generator fails the save", func(t *testing.T) {
		s, _ := newTestStore(t, Options{NewID: randid.Static("same")})

		_, err := s.Save(context.Background(), "same", nil, NoExpiry)
		require.ErrorIs(t, err, ErrWrite)
	})

	t.Run("malformed generated id fails the save", func(t *testing.T) {
		s, _ := newTestStore(t, Options{NewID: randid.Static("../escape")})

		_, err := s.Save(context.Background(), "", nil, NoExpiry)
		require.ErrorIs(t, err, ErrWrite)
		require.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestSave_WriteFailureSurfaces(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	s, _ := newTestStore(t, Options{})
	require.NoError(t, os.Chmod(s.Dir(), 0o500))
	t.Cleanup(func() { _ = os.Chmod(s.Dir(), 0o700) })

	_, err := s.Save(context.Background(), "", map[string]any{"k": "v"}, time.Hour)
	require.ErrorIs(t, err, ErrWrite)
}

// failWrites makes writes to paths matching match fail.
func failWrites(s *Store, match func(path string) bool) {
	next := s.writeFile
	s.writeFile = func(path string, data []byte, mode os.FileMode) error {
		if match(path) {
			return errors.New("disk full")
		}
		return next(path, data, mode)
	}
}

func isMarker(path string) bool { return strings.HasSuffix(path, ExpirationSuffix) }

func TestSave_UpdateFailureKeepsStoredState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failing   func(path string) bool
		origTTL   time.Duration
		updateTTL time.Duration
	}{
		{"marker write fails", isMarker, time.Hour, 2 * time.Hour},
		{"record write fails after marker rewrite", func(p string) bool { return !isMarker(p) }, time.Hour, 2 * time.Hour},
		{"record write fails after marker added", func(p string) bool { return !isMarker(p) }, NoExpiry, time.Hour},
		{"record write fails after marker cleared", func(p string) bool { return !isMarker(p) }, time.Hour, NoExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, fake := newTestStore(t, Options{})
			ctx := context.Background()

			id, err := s.Save(ctx, "", map[string]any{"v": "old"}, tt.origTTL)
			require.NoError(t, err)
			origMarker, origHasMarker, err := s.expiry().Read(id)
			require.NoError(t, err)

			fake.Advance(time.Minute)
			failWrites(s, tt.failing)

			_, err = s.Save(ctx, id, map[string]any{"v": "new"}, tt.updateTTL)
			require.ErrorIs(t, err, ErrWrite)

			rec, ok := s.Load(ctx, id)
			require.True(t, ok)
			assert.Equal(t, "old", rec.Payload["v"])

			marker, hasMarker, err := s.expiry().Read(id)
			require.NoError(t, err)
			assert.Equal(t, origHasMarker, hasMarker)
			assert.Equal(t, origMarker.Unix(), marker.Unix())
		})
	}
}

func TestSave_NewRecordMarkerFailureRemovesRecord(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Options{NewID: sequence("fresh")})
	failWrites(s, isMarker)

	_, err := s.Save(context.Background(), "", map[string]any{"k": "v"}, time.Hour)
	require.ErrorIs(t, err, ErrWrite)

	assert.False(t, fileExists(t, s.RecordPath("fresh")))
	assert.False(t, fileExists(t, s.ExpirationPath("fresh")))
}

func TestSave_CancelledContext(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, "", map[string]any{"k": "v"}, NoExpiry)
	require.ErrorIs(t, err, ErrWrite)
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvalidate_Idempotent(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	id, err := s.Save(ctx, "", map[string]any{"k": "v"}, time.Hour)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.Invalidate(ctx, id)
		s.Invalidate(ctx, id)
		s.Invalidate(ctx, "never-existed")
		s.Invalidate(ctx, "")
		s.Invalidate(ctx, "../../etc/passwd")
	})

	_, ok := s.Load(ctx, id)
	assert.False(t, ok)
	assert.False(t, fileExists(t, s.RecordPath(id)))
	assert.False(t, fileExists(t, s.ExpirationPath(id)))
}

func TestExists(t *testing.T) {
	t.Parallel()
	s, fake := newTestStore(t, Options{})
	ctx := context.Background()

	id, err := s.Save(ctx, "", map[string]any{"k": "v"}, time.Minute)
	require.NoError(t, err)

	assert.True(t, s.Exists(ctx, id))
	assert.False(t, s.Exists(ctx, "missing"))
	assert.False(t, s.Exists(ctx, ""))

	fake.Advance(time.Minute)
	assert.False(t, s.Exists(ctx, id))
	assert.False(t, fileExists(t, s.RecordPath(id)))
}

func TestStore_SharedDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a, _ := newTestStore(t, Options{Dir: dir})
	b, _ := newTestStore(t, Options{Dir: dir})
	ctx := context.Background()

	id, err := a.Save(ctx, "", map[string]any{"from": "a"}, NoExpiry)
	require.NoError(t, err)

	rec, ok := b.Load(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "a", rec.Payload["from"])

	b.Invalidate(ctx, id)
	_, ok = a.Load(ctx, id)
	assert.False(t, ok)
}

func TestSave_ConcurrentDistinctIDs(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	const workers = 32

	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Save(ctx, "", map[string]any{"n": float64(i)}, time.Hour)
			assert.NoError(t, err)
			for j := range 5 {
				id, err = s.Save(ctx, id, map[string]any{"n": float64(i), "step": float64(j)}, time.Hour)
				assert.NoError(t, err)
			}
			ids[i] = id
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, workers)
	for i, id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true

		rec, ok := s.Load(ctx, id)
		require.True(t, ok, fmt.Sprintf("worker %d", i))
		assert.Equal(t, float64(i), rec.Payload["n"])
		assert.Equal(t, float64(4), rec.Payload["step"])
	}

	// No temp files are left behind.
	report, err := s.Inspect(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.TempFiles)
	assert.Equal(t, workers, report.Records)
}

func TestSave_FileMode(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Options{FileMode: 0o640})

	id, err := s.Save(context.Background(), "", nil, time.Hour)
	require.NoError(t, err)

	for _, path := range []string{s.RecordPath(id), s.ExpirationPath(id)} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o640), info.Mode().Perm(), path)
	}
}
