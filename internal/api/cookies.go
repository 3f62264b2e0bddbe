package api

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"dogfinder-bot/internal/model"

	"golang.org/x/net/publicsuffix"
)

// cookieStore is a cookie jar that also remembers the expiry and Secure flag
// of every cookie it was given. http.CookieJar.Cookies hands back only name
// and value, which is not enough to persist a session.
type cookieStore struct {
	*cookiejar.Jar

	mu    sync.Mutex
	attrs map[string]*http.Cookie
}

func newCookieStore() (*cookieStore, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &cookieStore{Jar: jar, attrs: make(map[string]*http.Cookie)}, nil
}

func (c *cookieStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.mu.Lock()
	for _, cookie := range cookies {
		kept := *cookie
		if kept.MaxAge > 0 && kept.Expires.IsZero() {
			kept.Expires = time.Now().Add(time.Duration(kept.MaxAge) * time.Second)
		}
		c.attrs[kept.Name] = &kept
	}
	c.mu.Unlock()
	c.Jar.SetCookies(u, cookies)
}

// snapshot returns the cookies the jar still sends to u, expired ones left out.
func (c *cookieStore) snapshot(u *url.URL) []model.SessionCookie {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []model.SessionCookie
	for _, cookie := range c.Jar.Cookies(u) {
		saved := model.SessionCookie{Name: cookie.Name, Value: cookie.Value}
		if attr, ok := c.attrs[cookie.Name]; ok && attr.Value == cookie.Value {
			saved.Expires = attr.Expires
			saved.Secure = attr.Secure
		}
		out = append(out, saved)
	}
	return out
}

// restore seeds the jar with persisted cookies. Cookies past their expiry are
// dropped by the jar itself.
func (c *cookieStore) restore(u *url.URL, cookies []model.SessionCookie) {
	if len(cookies) == 0 {
		return
	}
	restored := make([]*http.Cookie, 0, len(cookies))
	for _, saved := range cookies {
		restored = append(restored, &http.Cookie{
			Name:    saved.Name,
			Value:   saved.Value,
			Path:    "/",
			Expires: saved.Expires,
			Secure:  saved.Secure,
		})
	}
	c.SetCookies(u, restored)
}
