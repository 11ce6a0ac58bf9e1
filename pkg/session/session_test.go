package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenloop/ewaste-monitor/internal/models"
)

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestAuthenticateStoresTokenAndClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signedToken(t, "admin", exp)

	s := New(zerolog.Nop())
	s.SetAuthenticator(func(ctx context.Context) (*models.AuthResponse, error) {
		return &models.AuthResponse{AccessToken: raw, TokenType: "bearer", User: "admin"}, nil
	})

	require.NoError(t, s.Authenticate(context.Background()))
	assert.Equal(t, raw, s.Token())
	assert.Equal(t, "admin", s.User())
	assert.True(t, s.ExpiresAt().Equal(exp))
	assert.True(t, s.Valid())
}

func TestAuthenticatePropagatesFailure(t *testing.T) {
	loginErr := errors.New("invalid credentials")

	s := New(zerolog.Nop())
	s.SetAuthenticator(func(ctx context.Context) (*models.AuthResponse, error) {
		return nil, loginErr
	})

	err := s.Authenticate(context.Background())
	require.ErrorIs(t, err, loginErr)
	assert.Empty(t, s.Token())
	assert.False(t, s.Valid())
}

func TestAuthenticateWithoutAuthenticator(t *testing.T) {
	s := New(zerolog.Nop())
	require.Error(t, s.Authenticate(context.Background()))
}

func TestConcurrentAuthenticateSharesOneLogin(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	s := New(zerolog.Nop())
	s.SetAuthenticator(func(ctx context.Context) (*models.AuthResponse, error) {
		calls.Add(1)
		<-release
		return &models.AuthResponse{AccessToken: "opaque-token", User: "admin"}, nil
	})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Authenticate(context.Background())
		}(i)
	}

	// Give the goroutines time to pile onto the same flight before
	// releasing the login.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent callers must share one login")
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, "opaque-token", s.Token())
}

func TestOpaqueTokenDisablesExpiryTracking(t *testing.T) {
	s := New(zerolog.Nop())
	s.SetAuthenticator(func(ctx context.Context) (*models.AuthResponse, error) {
		return &models.AuthResponse{AccessToken: "not-a-jwt", User: "demo"}, nil
	})

	require.NoError(t, s.Authenticate(context.Background()))
	assert.True(t, s.ExpiresAt().IsZero())
	assert.True(t, s.Valid(), "opaque tokens stay valid until the backend rejects them")
	assert.Equal(t, "demo", s.User())
}

func TestExpiredTokenIsInvalid(t *testing.T) {
	raw := signedToken(t, "admin", time.Now().Add(-time.Minute))

	s := New(zerolog.Nop())
	s.SetAuthenticator(func(ctx context.Context) (*models.AuthResponse, error) {
		return &models.AuthResponse{AccessToken: raw, User: "admin"}, nil
	})

	require.NoError(t, s.Authenticate(context.Background()))
	assert.NotEmpty(t, s.Token(), "expired tokens are still reported, validity is advisory")
	assert.False(t, s.Valid())
}

func TestTokenNearExpiryIsInvalid(t *testing.T) {
	raw := signedToken(t, "admin", time.Now().Add(10*time.Second))

	s := New(zerolog.Nop())
	s.SetAuthenticator(func(ctx context.Context) (*models.AuthResponse, error) {
		return &models.AuthResponse{AccessToken: raw, User: "admin"}, nil
	})

	require.NoError(t, s.Authenticate(context.Background()))
	assert.False(t, s.Valid(), "tokens inside the renewal leeway count as expired")
}
