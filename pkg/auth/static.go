package auth

import (
	"context"
	"fmt"
	"strings"
)

// StaticProvider authenticates against a fixed token table. It exists for
// development and tests, never for production deployments.
type StaticProvider struct {
	tokens map[string]Identity
}

// NewStaticProvider parses a token spec of the form
// "token:user_uuid:email,token2:user_uuid2:email2"
func NewStaticProvider(spec string) (*StaticProvider, error) {
	tokens := make(map[string]Identity)

	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static token entry %q (want token:user_id:email)", entry)
		}

		identity := Identity{
			UserID: parts[1],
			Email:  parts[2],
		}
		if err := identity.Validate(); err != nil {
			return nil, fmt.Errorf("invalid static token entry %q: %w", entry, err)
		}

		tokens[parts[0]] = identity
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("no static tokens configured")
	}

	return &StaticProvider{tokens: tokens}, nil
}

// Authenticate looks the token up in the static table
func (p *StaticProvider) Authenticate(ctx context.Context, token string) (*Identity, error) {
	identity, ok := p.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &identity, nil
}
