package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry_SetGetTTL(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	require.NoError(t, r.SetWithTTL(ctx, "k", "v", 50*time.Millisecond))
	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	time.Sleep(75 * time.Millisecond)
	_, err = r.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRegistry_Sets(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	require.NoError(t, r.SetAdd(ctx, "s", "a"))
	require.NoError(t, r.SetAdd(ctx, "s", "b"))
	members, err := r.SetMembers(ctx, "s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	require.NoError(t, r.SetRemove(ctx, "s", "a"))
	members, err = r.SetMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestMemoryRegistry_ListTrim(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	for i := 0; i < 5; i++ {
		require.NoError(t, r.ListPush(ctx, "l", string(rune('a'+i))))
	}
	require.NoError(t, r.ListTrim(ctx, "l", -3, -1))

	vals, err := r.ListRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "e"}, vals)
}
