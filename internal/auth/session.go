package auth

import (
	"context"

	"orgmap.org/internal/authz"
	"orgmap.org/internal/directory"
)

// UserStore is the credential lookup the session layer needs.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (directory.User, error)
}

// SessionProvider resolves a bearer token into a principal with its role
// assignments preloaded. The moderation engine receives the result as input
// and performs no authentication itself.
type SessionProvider struct {
	store directory.Store
}

func NewSessionProvider(store directory.Store) *SessionProvider {
	return &SessionProvider{store: store}
}

// Resolve validates the token and loads the subject's role assignments.
func (s *SessionProvider) Resolve(ctx context.Context, token string) (authz.Principal, error) {
	claims, err := ParseAndValidate(token)
	if err != nil {
		return authz.Principal{}, err
	}
	assignments, err := s.store.AssignmentsFor(ctx, claims.Subject)
	if err != nil {
		return authz.Principal{}, err
	}
	return authz.Principal{ID: claims.Subject, Assignments: assignments}, nil
}
