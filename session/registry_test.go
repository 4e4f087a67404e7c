package session

import (
	"context"
	"testing"
	"time"

	"github.com/Seednode/liedetector/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetCachesPerPlayer(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMemory(), 0)
	defer r.Close()

	a1, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	a2, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	b, err := r.Get(ctx, "bob")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.NotEqual(t, a1.CurrentUser().ID, b.CurrentUser().ID)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_MissingPlayer(t *testing.T) {
	r := NewRegistry(store.NewMemory(), 0)
	defer r.Close()

	_, err := r.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoPlayer)
}

func TestRegistry_ReapKeepsStoredState(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMemory(), 0)
	defer r.Close()

	m, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	_, err = m.UpdateUsername(ctx, "Alice")
	require.NoError(t, err)

	assert.Equal(t, 1, r.reap(time.Now().Add(time.Minute)))
	assert.Zero(t, r.Len())

	m2, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	assert.NotSame(t, m, m2)
	assert.Equal(t, "Alice", m2.CurrentUser().Username)
}

func TestRegistry_CommitHook(t *testing.T) {
	ctx := context.Background()

	var players []string
	r := NewRegistry(store.NewMemory(), 0, WithCommitHook(func(id string, _ store.Snapshot) {
		players = append(players, id)
	}))
	defer r.Close()

	for _, id := range []string{"alice", "bob"} {
		m, err := r.Get(ctx, id)
		require.NoError(t, err)
		_, err = m.UpdateUsername(ctx, id)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alice", "bob"}, players)
}

func TestRegistry_StatementsSharedAcrossPlayers(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	r := NewRegistry(kv, 0)
	defer r.Close()

	alice, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	bob, err := r.Get(ctx, "bob")
	require.NoError(t, err)

	id, err := alice.AddStatements(ctx, [3]string{"a", "b", "c"}, 2)
	require.NoError(t, err)

	s, ok := bob.StatementByID(id)
	require.True(t, ok)
	assert.Equal(t, alice.CurrentUser().ID, s.UserID)

	picked, ok := bob.RandomStatement(nil)
	require.True(t, ok)
	assert.Equal(t, id, picked.ID)

	_, ok = alice.RandomStatement(nil)
	assert.False(t, ok)

	res, err := bob.SubmitGuess(ctx, id, 2)
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)

	assert.Equal(t, 10, bob.CurrentUser().Score)
	assert.Zero(t, alice.CurrentUser().Score)

	s, _ = alice.StatementByID(id)
	assert.Equal(t, 1, s.PlayCount)

	// a fresh registry over the same store sees the shared sets
	r2 := NewRegistry(kv, 0)
	defer r2.Close()

	carol, err := r2.Get(ctx, "carol")
	require.NoError(t, err)
	s, ok = carol.StatementByID(id)
	require.True(t, ok)
	assert.Equal(t, 1, s.PlayCount)
}
