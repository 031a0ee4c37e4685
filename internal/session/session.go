// Package session holds the logged-in user. The session is loaded and
// cleared explicitly and persisted through a Persister, never read from
// ambient state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hseb5/internal/domain"
)

var ErrUnauthenticated = errors.New("not authenticated")

type Persister interface {
	CurrentUser(ctx context.Context) (domain.Session, bool, error)
	SetCurrentUser(ctx context.Context, s domain.Session) error
	ClearCurrentUser(ctx context.Context) error
}

type Manager struct {
	Store Persister
	Now   func() time.Time

	mu      sync.RWMutex
	current *domain.Session
}

func New(store Persister) *Manager {
	return &Manager{Store: store, Now: time.Now}
}

// Load reads the persisted session, if any.
func (m *Manager) Load(ctx context.Context) error {
	sess, ok, err := m.Store.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	if ok {
		m.current = &sess
	}
	return nil
}

func (m *Manager) Save(ctx context.Context, sess domain.Session) error {
	if err := m.Store.SetCurrentUser(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.mu.Lock()
	m.current = &sess
	m.mu.Unlock()
	return nil
}

func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	return m.Store.ClearCurrentUser(ctx)
}

func (m *Manager) Current() (domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return domain.Session{}, false
	}
	return *m.current, true
}

// Token implements hsesdk.TokenSource.
func (m *Manager) Token() string {
	s, ok := m.Current()
	if !ok {
		return ""
	}
	return s.Token
}

// Guard returns the session user, or ErrUnauthenticated when nobody is
// logged in or the session has expired.
func (m *Manager) Guard(ctx context.Context) (domain.User, error) {
	s, ok := m.Current()
	if !ok || s.Token == "" {
		return domain.User{}, ErrUnauthenticated
	}
	exp, ok := expiry(s)
	if ok && !m.now().Before(exp) {
		return domain.User{}, fmt.Errorf("%w: session expired at %s", ErrUnauthenticated, exp.Format(time.RFC3339))
	}
	return s.User, nil
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// expiry prefers the stored expiry and falls back to the token's exp claim.
// The token is not verified here; the issuer verifies it on every request.
func expiry(s domain.Session) (time.Time, bool) {
	if s.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, s.ExpiresAt); err == nil {
			return t, true
		}
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
