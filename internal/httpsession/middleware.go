// Package httpsession exposes the file store to net/http handlers through a
// cookie carried session identifier.
package httpsession

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/filesession/internal/core/clock"
	"github.com/colonyops/filesession/internal/core/logging"
	"github.com/colonyops/filesession/internal/core/record"
	"github.com/colonyops/filesession/pkg/randid"
)

// DefaultCookieName is used when Options.CookieName is empty.
const DefaultCookieName = "sessionid"

const requestIDLength = 8

// errCommitFailed is returned from Write after the session could not be
// saved and a 500 was sent instead of the handler's response.
var errCommitFailed = errors.New("httpsession: session save failed")

// Store is the subset of the file store the middleware needs.
type Store interface {
	Load(ctx context.Context, id string) (record.Record, bool)
	Save(ctx context.Context, id string, payload map[string]any, ttl time.Duration) (string, error)
	Invalidate(ctx context.Context, id string)
	DefaultTTL() time.Duration
}

// Options configures the middleware and the cookie it issues.
type Options struct {
	CookieName string
	Path       string
	Domain     string
	Secure     bool
	HTTPOnly   bool
	SameSite   http.SameSite
	// TTL applies to saved sessions that did not call SetMaxAge. Zero uses
	// the store's default TTL.
	TTL    time.Duration
	Clock  clock.Clock
	Logger *zerolog.Logger
}

// DefaultOptions returns an HttpOnly cookie named DefaultCookieName scoped to
// the whole site.
func DefaultOptions() Options {
	return Options{
		CookieName: DefaultCookieName,
		Path:       "/",
		HTTPOnly:   true,
		SameSite:   http.SameSiteLaxMode,
	}
}

type middleware struct {
	store Store
	opts  Options
	clock clock.Clock
	log   zerolog.Logger
}

// New returns middleware that loads the session named by the request cookie,
// exposes it through FromContext, and persists it before the response
// headers are written.
func New(store Store, opts Options) func(http.Handler) http.Handler {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Path == "" {
		opts.Path = "/"
	}

	m := &middleware{store: store, opts: opts, clock: opts.Clock}
	if m.clock == nil {
		m.clock = clock.Real
	}
	if opts.Logger != nil {
		m.log = *opts.Logger
	} else {
		m.log = logging.Component("httpsession")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.WithRequestID(r.Context(), randid.Generate(requestIDLength))

			s := m.load(ctx, r)
			ctx = context.WithValue(ctx, sessionContextKey{}, s)

			rw := &responseWriter{ResponseWriter: w}
			rw.commit = func() error { return m.commit(ctx, rw.ResponseWriter, s) }

			next.ServeHTTP(rw, r.WithContext(ctx))

			if !rw.committed {
				rw.WriteHeader(http.StatusOK)
			}
		})
	}
}

func (m *middleware) load(ctx context.Context, r *http.Request) *Session {
	c, err := r.Cookie(m.opts.CookieName)
	if err != nil || c.Value == "" {
		return newSession("", nil, time.Time{}, true)
	}

	rec, ok := m.store.Load(ctx, c.Value)
	if !ok {
		m.log.Debug().Ctx(ctx).Msg("presented session not found")
		return newSession("", nil, time.Time{}, true)
	}
	return newSession(c.Value, rec.Payload, rec.CreatedAt, false)
}

// commit persists s and sets the cookie on w. It runs once per request.
func (m *middleware) commit(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.invalidated {
		if s.id != "" {
			m.store.Invalidate(ctx, s.id)
			s.id = ""
		}
		if len(s.values) == 0 {
			http.SetCookie(w, m.expiredCookie())
			return nil
		}
	} else if !s.changed {
		return nil
	}

	ttl := m.ttl(s)
	id, err := m.store.Save(ctx, s.id, s.values, ttl)
	if err != nil {
		m.log.Error().Ctx(ctx).Err(err).Msg("save session")
		return err
	}

	s.id = id
	http.SetCookie(w, m.sessionCookie(id, ttl))
	return nil
}

func (m *middleware) ttl(s *Session) time.Duration {
	if s.maxAge != nil {
		return *s.maxAge
	}
	if m.opts.TTL > 0 {
		return m.opts.TTL
	}
	return m.store.DefaultTTL()
}

// responseWriter commits the session immediately before the first header
// write, while Set-Cookie can still be added.
type responseWriter struct {
	http.ResponseWriter
	commit    func() error
	committed bool
	failed    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.committed {
		w.committed = true
		if err := w.commit(); err != nil {
			w.failed = true
			http.Error(w.ResponseWriter, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}
	if w.failed {
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	if w.failed {
		return 0, errCommitFailed
	}
	return w.ResponseWriter.Write(b)
}

// Flush commits the session if needed and flushes the underlying writer.
func (w *responseWriter) Flush() {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok && !w.failed {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
