// Package auth verifies bearer tokens and exposes the caller's identity.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidToken is returned when a bearer token cannot be verified
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified identity of a caller. UserID is the subject
// claim issued by the identity provider and is always a UUID string.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Validate checks that the identity carries a well-formed user ID
func (i *Identity) Validate() error {
	if i.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if _, err := uuid.Parse(i.UserID); err != nil {
		return fmt.Errorf("user ID must be a UUID: %w", err)
	}
	return nil
}

// Context carries the authenticated identity through a request
type Context struct {
	Identity Identity
}

// Provider verifies a bearer token and returns the caller's identity
type Provider interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}
