package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToID(t *testing.T) {
	assert.Equal(t, "alice", ToID("Alice"))
	assert.Equal(t, "mrx99", ToID(" Mr. X-99 "))
	assert.Equal(t, "", ToID("!!!"))
}

func TestAuthenticateCreatesAndReuses(t *testing.T) {
	r := NewRegistry()

	u, err := r.Authenticate("Alice", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
	assert.True(t, u.Named)
	assert.True(t, u.Connected)

	// The same identity key resolves to the same account, with the display
	// name refreshed.
	again, err := r.Authenticate("ALICE", "10.0.0.2")
	require.NoError(t, err)
	assert.Same(t, u, again)
	assert.Equal(t, "ALICE", again.Name)

	_, err = r.Authenticate("???", "10.0.0.3")
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestRename(t *testing.T) {
	r := NewRegistry()
	u, err := r.Authenticate("Alice", "10.0.0.1")
	require.NoError(t, err)
	_, err = r.Authenticate("Bob", "10.0.0.2")
	require.NoError(t, err)

	// Cosmetic rename keeps the identity key.
	require.NoError(t, r.Rename(u, "alice"))
	assert.Equal(t, "alice", u.ID)

	require.ErrorIs(t, r.Rename(u, "BOB"), ErrNameTaken)

	require.NoError(t, r.Rename(u, "Alicia"))
	assert.Equal(t, "alicia", u.ID)
	assert.Same(t, u, r.GetExact("alicia"))
	assert.Nil(t, r.GetExact("alice"))
}

func TestMergeLeavesGhostBehind(t *testing.T) {
	r := NewRegistry()
	old, err := r.Authenticate("Alice", "10.0.0.1")
	require.NoError(t, err)
	survivor, err := r.Authenticate("Bob", "10.0.0.2")
	require.NoError(t, err)

	r.Merge(old.ID, survivor)

	// A stale pointer to the merged-away account no longer matches what the
	// registry resolves, which is how ghost members are detected.
	assert.NotSame(t, old, r.GetExact("alice"))
	assert.Same(t, survivor, r.GetExact("alice"))
	assert.False(t, old.Connected)
}
