package identity

import (
	"context"
	"testing"

	"github.com/pdazone/engine/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_Resolve(t *testing.T) {
	p, err := NewStatic(map[string]config.Token{
		"tok-strelok": {PlayerID: "strelok"},
		"tok-admin":   {PlayerID: "admin", Role: "Operator"},
	})
	require.NoError(t, err)

	id, err := p.Resolve(context.Background(), "tok-strelok")
	require.NoError(t, err)
	assert.Equal(t, Identity{PlayerID: "strelok", Role: RolePlayer}, id)
	assert.False(t, id.Operator())

	id, err = p.Resolve(context.Background(), "tok-admin")
	require.NoError(t, err)
	assert.True(t, id.Operator())

	_, err = p.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = p.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestStatic_RejectsBadTokens(t *testing.T) {
	_, err := NewStatic(map[string]config.Token{"x": {PlayerID: "a", Role: "god"}})
	assert.Error(t, err)

	_, err = NewStatic(map[string]config.Token{"x": {Role: "player"}})
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("auth.tokens", map[string]any{
		"secret": map[string]any{"playerId": "sidorovich", "role": "trader"},
	})

	p, err := FromConfig()
	require.NoError(t, err)
	id, err := p.Resolve(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, Identity{PlayerID: "sidorovich", Role: RoleTrader}, id)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{PlayerID: "p1", Role: RolePlayer})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "p1", id.PlayerID)
}
