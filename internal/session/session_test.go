package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	s := New(7, "ada")

	require.NoError(t, store.Save(ctx, s))
	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint(7), got.UserID)
	assert.Nil(t, got.ConversationID)

	conv := uint(3)
	got.ConversationID = &conv
	require.NoError(t, store.Save(ctx, got))
	again, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, again.ConversationID)
	assert.Equal(t, uint(3), *again.ConversationID)

	require.NoError(t, store.Delete(ctx, s.ID))
	gone, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	s := New(1, "bob")
	require.NoError(t, store.Save(ctx, s))

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	s := New(1, "bob")
	require.NoError(t, store.Save(ctx, s))

	got, _ := store.Get(ctx, s.ID)
	got.Username = "mallory"

	fresh, _ := store.Get(ctx, s.ID)
	assert.Equal(t, "bob", fresh.Username)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "docchat:session:abc", redisKey("abc"))
}
