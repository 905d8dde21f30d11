package httpsession

import (
	"net/http"
	"time"
)

// maxCookieAge is the longest Max-Age browsers honour. Longer TTLs are still
// stored in full; only the cookie is capped.
const maxCookieAge = 400 * 24 * time.Hour

func (m *middleware) sessionCookie(id string, ttl time.Duration) *http.Cookie {
	c := m.baseCookie()
	c.Value = id

	if ttl > 0 {
		age := min(ttl, maxCookieAge)
		seconds := int((age + time.Second - 1) / time.Second)
		c.MaxAge = seconds
		c.Expires = m.clock.Now().Add(time.Duration(seconds) * time.Second).UTC()
	}
	return c
}

// expiredCookie tells the client to drop its token. MaxAge -1 renders as
// "Max-Age=0".
func (m *middleware) expiredCookie() *http.Cookie {
	c := m.baseCookie()
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	return c
}

func (m *middleware) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.opts.CookieName,
		Path:     m.opts.Path,
		Domain:   m.opts.Domain,
		Secure:   m.opts.Secure,
		HttpOnly: m.opts.HTTPOnly,
		SameSite: m.opts.SameSite,
	}
}
