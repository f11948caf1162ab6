// internal/identity/identity.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdazone/engine/internal/config"
)

// Role is the authorization class of a caller.
type Role string

const (
	RolePlayer   Role = "player"
	RoleTrader   Role = "trader"
	RoleOperator Role = "operator"
)

// ErrUnauthenticated is returned for missing or unknown tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the resolved caller passed explicitly into every engine call.
type Identity struct {
	PlayerID string `json:"playerId"`
	Role     Role   `json:"role"`
}

// Operator reports whether the caller may run operator actions.
func (i Identity) Operator() bool {
	return i.Role == RoleOperator
}

// Provider resolves a bearer token to an identity.
type Provider interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// Static resolves tokens from a fixed table.
type Static struct {
	tokens map[string]Identity
}

// NewStatic builds a provider from config tokens. Unknown roles are rejected.
func NewStatic(tokens map[string]config.Token) (*Static, error) {
	s := &Static{tokens: make(map[string]Identity, len(tokens))}
	for tok, t := range tokens {
		role := Role(strings.ToLower(t.Role))
		switch role {
		case "":
			role = RolePlayer
		case RolePlayer, RoleTrader, RoleOperator:
		default:
			return nil, fmt.Errorf("token for %q: unknown role %q", t.PlayerID, t.Role)
		}
		if t.PlayerID == "" {
			return nil, fmt.Errorf("token with role %q has no playerId", role)
		}
		s.tokens[tok] = Identity{PlayerID: t.PlayerID, Role: role}
	}
	return s, nil
}

// FromConfig builds a provider from auth.tokens.
func FromConfig() (*Static, error) {
	tokens, err := config.GetTokens()
	if err != nil {
		return nil, err
	}
	return NewStatic(tokens)
}

// Resolve looks up token.
func (s *Static) Resolve(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	id, ok := s.tokens[token]
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

type ctxKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
