// Package auth authenticates officers and carries their session through
// request contexts.
package auth

import (
	"context"
	"time"

	"github.com/opensource-finance/casewatch/internal/domain"
)

// Session identifies the officer behind a request.
type Session struct {
	OfficerID   string      `json:"officerId"`
	Username    string      `json:"username"`
	DisplayName string      `json:"displayName"`
	Role        domain.Role `json:"role"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

// HasRole reports whether the session holds one of roles. Admins hold every role.
func (s *Session) HasRole(roles ...domain.Role) bool {
	if s == nil {
		return false
	}
	if s.Role == domain.RoleAdmin {
		return true
	}
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

type sessionKey struct{}

// ContextWithSession returns ctx carrying s.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by ContextWithSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
