package tourney

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/arena-tournaments/brackets"
)

func TestBracketBroadcastsAreCoalesced(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})

	// The first invalidation goes straight out.
	h.addPlayer(t, "Alice")
	require.Equal(t, 1, h.notifier.countBroadcast(MsgBracketUpdated))

	// Invalidations inside the minimum interval arm one deferred refresh and
	// are absorbed into it.
	h.addPlayer(t, "Bob")
	require.Equal(t, 1, h.notifier.countBroadcast(MsgBracketUpdated))
	require.Equal(t, 1, h.timers.count())
	assert.Equal(t, 2*time.Second, h.timers.last(t).delay)

	h.addPlayer(t, "Carol")
	require.Equal(t, 1, h.notifier.countBroadcast(MsgBracketUpdated))
	require.Equal(t, 1, h.timers.count())

	h.clock.Advance(2 * time.Second)
	h.timers.last(t).fn()
	require.Equal(t, 2, h.notifier.countBroadcast(MsgBracketUpdated))

	data, ok := h.notifier.lastPayload(MsgBracketUpdated).(*brackets.BracketData)
	require.True(t, ok)
	assert.Len(t, data.TableHeaders.Rows, 3)
}

func TestBracketRefreshSkippedAfterEnd(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})
	h.addPlayer(t, "Alice")
	h.addPlayer(t, "Bob")
	require.Equal(t, 1, h.timers.count())

	h.tournament.ForceEnd()
	broadcasts := h.notifier.countBroadcast(MsgBracketUpdated)

	h.clock.Advance(time.Minute)
	h.timers.last(t).fn()
	assert.Equal(t, broadcasts, h.notifier.countBroadcast(MsgBracketUpdated))
}

func TestResyncReplaysState(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})
	alice := h.addPlayer(t, "Alice")
	h.addPlayer(t, "Bob")

	h.clock.Advance(2 * time.Second)
	h.timers.last(t).fn()

	require.NoError(t, h.tournament.Resync(alice))
	assert.Equal(t, 1, h.notifier.countFor(alice.ID, MsgTournamentCreated))
	assert.Equal(t, 1, h.notifier.countFor(alice.ID, MsgBracketUpdated))
	assert.Equal(t, 1, h.notifier.countFor(alice.ID, MsgUpdateEnd))
	// Not started yet, so there is no match list to replay.
	assert.Equal(t, 0, h.notifier.countFor(alice.ID, MsgMatchesUpdated))

	// Once started the replay includes the member's match list: one push from
	// the start transition, one from the resync.
	require.NoError(t, h.tournament.Start())
	require.NoError(t, h.tournament.Resync(alice))
	assert.Equal(t, 2, h.notifier.countFor(alice.ID, MsgMatchesUpdated))
}

func TestResyncRefusesDirtyCacheWithNoRefreshPending(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})
	alice := h.addPlayer(t, "Alice")

	// A dirty bracket with no refresh armed cannot happen through the public
	// surface; force the state to verify the guard.
	h.tournament.mu.Lock()
	h.tournament.bracketDirty = true
	h.tournament.bracketTimer = nil
	h.tournament.mu.Unlock()

	require.ErrorIs(t, h.tournament.Resync(alice), ErrStaleResync)
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgBackendError))
}
