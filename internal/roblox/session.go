package roblox

import (
	"context"
	"net/url"
	"strings"
	"sync"

	domain "github.com/dawnbot/dawn/pkg/types"
)

const (
	cookieName = ".ROBLOSECURITY"

	// Roblox rejects cookies missing this prefix; accepting a bare token
	// and normalizing saves operators from pasting the whole thing.
	cookieWarning = "_|WARNING:-DO-NOT-SHARE-THIS.--Sharing-this-will-allow-someone-to-log-in-as-you-and-to-steal-your-ROBUX-and-items.|_"
)

// Credential holds the session secret and optional outbound proxy.
// Immutable after construction.
type Credential struct {
	cookie string
	proxy  *url.URL
}

// NewCredential builds a Credential from a session secret, which may be
// the bare token or the full warning-prefixed cookie value.
func NewCredential(secret string, proxy *url.URL) *Credential {
	parts := strings.Split(secret, "_")
	token := strings.TrimSpace(parts[len(parts)-1])

	return &Credential{
		cookie: cookieWarning + token,
		proxy:  proxy,
	}
}

// CookieValue returns the normalized .ROBLOSECURITY cookie value.
func (c *Credential) CookieValue() string {
	return c.cookie
}

// Proxy returns the outbound proxy endpoint, or nil.
func (c *Credential) Proxy() *url.URL {
	return c.proxy
}

// ProxyID returns a loggable identifier for the proxy in use ("" when
// direct). Credentials embedded in the proxy URL are not included.
func (c *Credential) ProxyID() string {
	if c.proxy == nil {
		return ""
	}
	return c.proxy.Host
}

// Session holds the mutable per-session state: the CSRF token and the
// authenticated identity. The CSRF token is shared by every concurrent
// logical call on the session, so all access goes through the mutex.
type Session struct {
	mu       sync.Mutex
	csrf     string
	identity *domain.Identity
}

// NewSession returns an empty session; the request engine populates the
// CSRF token on first use and Authenticate fills in the identity.
func NewSession() *Session {
	return &Session{}
}

// EnsureCSRF returns the current CSRF token, running bootstrap to
// obtain one if the session has none yet. The lock is held across the
// bootstrap call so concurrent first requests perform it exactly once.
func (s *Session) EnsureCSRF(
	ctx context.Context,
	bootstrap func(context.Context) (string, error),
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.csrf != "" {
		return s.csrf, nil
	}

	token, err := bootstrap(ctx)
	if err != nil {
		return "", err
	}

	s.csrf = token
	return token, nil
}

// Rotate installs an offered replacement token if it differs from the
// one a request was sent with. Reports whether a rotation happened.
// Servers rotate opportunistically; a client that ignores the offer
// gets a 403 on its next call.
func (s *Session) Rotate(offered, sent string) bool {
	if offered == "" || offered == sent {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.csrf = offered
	return true
}

// CSRF returns the current token ("" before bootstrap).
func (s *Session) CSRF() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrf
}

// Identity returns the authenticated identity, if populated.
func (s *Session) Identity() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity == nil {
		return domain.Identity{}, false
	}
	return *s.identity, true
}

// SetIdentity records the authenticated identity.
func (s *Session) SetIdentity(id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &id
}
