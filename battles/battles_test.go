package battles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/arena-tournaments/users"
)

func testUser(name string) *users.User {
	return &users.User{ID: name, Name: name, Named: true, Connected: true}
}

func TestSimPrepValidation(t *testing.T) {
	sim := NewSim()
	alice := testUser("alice")

	cfg, err := sim.Prep(context.Background(), alice, "standard")
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.UserID)

	_, err = sim.Prep(context.Background(), alice, "")
	require.ErrorIs(t, err, ErrFormatRequired)

	offline := testUser("bob")
	offline.Connected = false
	_, err = sim.Prep(context.Background(), offline, "standard")
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestRoomFinishFiresHandlerOnce(t *testing.T) {
	sim := NewSim()
	alice, bob := testUser("alice"), testUser("bob")
	room, err := sim.Start(context.Background(), alice, bob, "standard", false)
	require.NoError(t, err)

	got, ok := sim.Get(room.ID)
	require.True(t, ok)
	assert.Same(t, room, got)

	var calls int
	var winner *users.User
	room.SetResultHandler(func(w *users.User, score []int) {
		calls++
		winner = w
	})

	require.NoError(t, room.Finish(alice, []int{2, 0}))
	require.ErrorIs(t, room.Finish(bob, nil), ErrRoomFinished)
	assert.Equal(t, 1, calls)
	assert.Same(t, alice, winner)

	sim.Remove(room.ID)
	_, ok = sim.Get(room.ID)
	assert.False(t, ok)
}

func TestRoomForfeitReportsOpponentAsWinner(t *testing.T) {
	sim := NewSim()
	alice, bob := testUser("alice"), testUser("bob")
	room, err := sim.Start(context.Background(), alice, bob, "standard", true)
	require.NoError(t, err)

	var winner *users.User
	room.SetResultHandler(func(w *users.User, score []int) { winner = w })

	require.ErrorIs(t, room.Forfeit(testUser("eve")), ErrNotParticipant)
	require.NoError(t, room.Forfeit(alice))
	assert.Same(t, bob, winner)
}

func TestDetachedRoomStopsReporting(t *testing.T) {
	sim := NewSim()
	alice, bob := testUser("alice"), testUser("bob")
	room, err := sim.Start(context.Background(), alice, bob, "standard", false)
	require.NoError(t, err)

	fired := false
	room.SetResultHandler(func(*users.User, []int) { fired = true })
	room.Detach()

	require.NoError(t, room.Finish(alice, nil))
	assert.False(t, fired)
	assert.True(t, room.Finished())
}
