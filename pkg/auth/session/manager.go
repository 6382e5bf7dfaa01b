// Package session ties access tokens to a Redis liveness key so logout takes
// effect before the token expires.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mosly/envelope-stock/pkg/auth"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	pkgredis "github.com/mosly/envelope-stock/pkg/redis"
)

const liveMarker = "1"

// Store is the Redis surface the manager needs.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// Token is what the operator receives on login.
type Token struct {
	Value     string
	SessionID string
	ExpiresAt time.Time
}

type Manager struct {
	store  Store
	issuer *auth.Issuer
}

func NewManager(store Store, issuer *auth.Issuer) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if issuer == nil {
		return nil, errors.New("token issuer is required")
	}
	return &Manager{store: store, issuer: issuer}, nil
}

// Open mints an operator token and marks its session live for the token's lifetime.
func (m *Manager) Open(ctx context.Context) (*Token, error) {
	id := uuid.NewString()
	signed, claims, err := m.issuer.Issue(auth.OperatorSubject, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(id), liveMarker, m.issuer.TTL()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register session")
	}
	return &Token{Value: signed, SessionID: id, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Authenticate verifies raw and requires its session to still be live.
func (m *Manager) Authenticate(ctx context.Context, raw string) (*auth.AccessTokenClaims, error) {
	claims, err := m.issuer.Verify(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	live, err := m.HasSession(ctx, claims.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
	}
	if !live {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session revoked or expired")
	}
	return claims, nil
}

// Revoke ends the session; revoking an unknown id is not an error.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := m.store.Del(ctx, m.store.AccessSessionKey(sessionID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (m *Manager) HasSession(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("session id is required")
	}
	_, err := m.store.Get(ctx, m.store.AccessSessionKey(sessionID))
	switch {
	case errors.Is(err, pkgredis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
