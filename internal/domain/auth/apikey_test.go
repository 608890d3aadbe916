package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKey(t *testing.T) {
	pepper := []byte("pepper")

	h := HashKey(pepper, "key-1")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashKey(pepper, "key-1"))
	assert.NotEqual(t, h, HashKey(pepper, "key-2"))
	assert.NotEqual(t, h, HashKey([]byte("other"), "key-1"))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "u1", Scopes: []string{"orders", ScopeAdmin}})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", p.UserID)
	assert.True(t, p.IsAdmin())
	assert.True(t, p.HasScope("orders"))
	assert.False(t, Principal{UserID: "u2"}.IsAdmin())
}
