// Package session holds the authenticated backend session. It stores the
// bearer token, tracks its expiry from the token's own claims, and
// collapses concurrent re-login attempts into a single request.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/greenloop/ewaste-monitor/internal/models"
)

// expiryLeeway treats tokens about to lapse as already expired so a renew
// happens before the backend starts rejecting calls.
const expiryLeeway = 30 * time.Second

// Authenticator performs the credential exchange against the backend.
type Authenticator func(ctx context.Context) (*models.AuthResponse, error)

// Session is the live login state. It satisfies the REST client's
// TokenProvider. Safe for concurrent use.
type Session struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	auth    Authenticator
	token   string
	user    string
	expires time.Time

	flight singleflight.Group
}

// New creates an unauthenticated session. Bind an Authenticator before
// calling Authenticate.
func New(logger zerolog.Logger) *Session {
	return &Session{logger: logger}
}

// SetAuthenticator binds the login call. Kept separate from New because
// the REST client and the session reference each other: the client needs
// the session as its token source, and the session logs in through the
// client.
func (s *Session) SetAuthenticator(auth Authenticator) {
	s.mu.Lock()
	s.auth = auth
	s.mu.Unlock()
}

// Authenticate performs a login and stores the resulting token. Concurrent
// callers share one in-flight login; every caller gets its outcome.
func (s *Session) Authenticate(ctx context.Context) error {
	s.mu.RLock()
	auth := s.auth
	s.mu.RUnlock()
	if auth == nil {
		return errors.New("session has no authenticator bound")
	}

	_, err, _ := s.flight.Do("login", func() (any, error) {
		resp, err := auth(ctx)
		if err != nil {
			return nil, err
		}
		s.store(resp)
		return nil, nil
	})
	return err
}

// Token returns the current bearer token, empty when unauthenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the username the backend acknowledged at login.
func (s *Session) User() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// ExpiresAt returns the token expiry, zero when the token carries no
// readable exp claim.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expires
}

// Valid reports whether a token is present and not within the expiry
// leeway. Tokens without a readable expiry count as valid until the
// backend says otherwise.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return false
	}
	if s.expires.IsZero() {
		return true
	}
	return time.Now().Add(expiryLeeway).Before(s.expires)
}

// store records the login result and lifts expiry and subject out of the
// token claims. The signature is not verified; the backend vouches for
// tokens it just issued, and the expiry is advisory only.
func (s *Session) store(resp *models.AuthResponse) {
	expires := time.Time{}
	subject := resp.User

	parsed, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, jwt.MapClaims{})
	if err != nil {
		s.logger.Debug().Err(err).Msg("Token is not a readable JWT, expiry tracking disabled")
	} else {
		if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
			expires = exp.Time
		}
		if sub, err := parsed.Claims.GetSubject(); err == nil && sub != "" {
			subject = sub
		}
	}

	s.mu.Lock()
	s.token = resp.AccessToken
	s.user = subject
	s.expires = expires
	s.mu.Unlock()

	event := s.logger.Info().Str("user", subject)
	if !expires.IsZero() {
		event = event.Time("expires_at", expires)
	}
	event.Msg("Session authenticated")
}
