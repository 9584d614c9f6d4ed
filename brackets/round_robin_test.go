package brackets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/users"
)

func testUser(name string) *users.User {
	return &users.User{ID: users.ToID(name), Name: name, Named: true, Connected: true}
}

func TestRoundRobinMembership(t *testing.T) {
	g := NewRoundRobin()
	alice := testUser("Alice")
	bob := testUser("Bob")

	require.NoError(t, g.AddUser(alice))
	require.NoError(t, g.AddUser(bob))
	require.ErrorIs(t, g.AddUser(alice), ErrUserAlreadyAdded)

	require.NoError(t, g.RemoveUser(bob))
	require.ErrorIs(t, g.RemoveUser(bob), ErrUserNotAdded)

	require.NoError(t, g.AddUser(bob))
	g.FreezeBracket()
	require.ErrorIs(t, g.AddUser(testUser("Carol")), ErrBracketFrozen)
	require.ErrorIs(t, g.RemoveUser(bob), ErrBracketFrozen)
}

func TestRoundRobinAvailableMatchesExcludeBusyAndDisqualified(t *testing.T) {
	g := NewRoundRobin()
	alice, bob, carol := testUser("Alice"), testUser("Bob"), testUser("Carol")
	for _, u := range []*users.User{alice, bob, carol} {
		require.NoError(t, g.AddUser(u))
	}
	g.FreezeBracket()

	require.Len(t, g.AvailableMatches(), 3)

	g.SetUserBusy(alice, true)
	matches := g.AvailableMatches()
	require.Len(t, matches, 1)
	assert.Equal(t, bob, matches[0][0])
	assert.Equal(t, carol, matches[0][1])

	g.SetUserBusy(alice, false)
	require.NoError(t, g.DisqualifyUser(carol))
	matches = g.AvailableMatches()
	require.Len(t, matches, 1)
	assert.Equal(t, alice, matches[0][0])
	assert.Equal(t, bob, matches[0][1])
}

func TestRoundRobinResultsAndRanking(t *testing.T) {
	g := NewRoundRobin()
	alice, bob, carol := testUser("Alice"), testUser("Bob"), testUser("Carol")
	for _, u := range []*users.User{alice, bob, carol} {
		require.NoError(t, g.AddUser(u))
	}
	g.FreezeBracket()

	require.NoError(t, g.SetMatchResult(alice, bob, models.OutcomeWin, []int{2, 0}))
	require.ErrorIs(t, g.SetMatchResult(bob, alice, models.OutcomeWin, nil), ErrMatchAlreadyPlayed)
	require.NoError(t, g.SetMatchResult(alice, carol, models.OutcomeWin, []int{2, 1}))
	assert.False(t, g.Ended())

	require.NoError(t, g.SetMatchResult(bob, carol, models.OutcomeDraw, []int{1, 1}))
	require.True(t, g.Ended())

	groups := g.Results()
	require.Len(t, groups, 2)
	assert.Equal(t, []*users.User{alice}, groups[0])
	assert.ElementsMatch(t, []*users.User{bob, carol}, groups[1])
}

func TestRoundRobinDisqualificationForfeitsUnplayedGames(t *testing.T) {
	g := NewRoundRobin()
	alice, bob, carol := testUser("Alice"), testUser("Bob"), testUser("Carol")
	for _, u := range []*users.User{alice, bob, carol} {
		require.NoError(t, g.AddUser(u))
	}
	g.FreezeBracket()

	require.NoError(t, g.SetMatchResult(alice, bob, models.OutcomeWin, []int{2, 0}))
	require.NoError(t, g.DisqualifyUser(carol))
	require.ErrorIs(t, g.DisqualifyUser(carol), ErrUserAlreadyDisqualified)

	// Both of Carol's unplayed games concede, so every pair is settled.
	require.True(t, g.Ended())
	groups := g.Results()
	require.NotEmpty(t, groups)
	assert.Equal(t, []*users.User{alice}, groups[0])
}

func TestRoundRobinBracketDataTable(t *testing.T) {
	g := NewRoundRobin()
	alice, bob := testUser("Alice"), testUser("Bob")
	require.NoError(t, g.AddUser(alice))
	require.NoError(t, g.AddUser(bob))
	g.FreezeBracket()

	require.NoError(t, g.SetMatchResult(alice, bob, models.OutcomeWin, []int{2, 1}))

	data := g.BracketData()
	require.Equal(t, "table", data.Type)
	require.NotNil(t, data.TableHeaders)
	assert.Equal(t, []string{"Alice", "Bob"}, data.TableHeaders.Rows)

	cell := data.TableContents[0][1]
	require.NotNil(t, cell)
	assert.Equal(t, EdgeFinished, cell.State)
	assert.Equal(t, models.OutcomeWin, cell.Result)
	assert.Equal(t, []int{2, 1}, cell.Score)

	// The mirrored cell carries the flipped perspective.
	mirror := data.TableContents[1][0]
	require.NotNil(t, mirror)
	assert.Equal(t, models.OutcomeLoss, mirror.Result)
	assert.Equal(t, []int{1, 2}, mirror.Score)

	assert.Nil(t, data.TableContents[0][0])
	assert.Equal(t, []int{2, 0}, data.Scores)
}

func TestRoundRobinReplaceUserKeepsSlot(t *testing.T) {
	g := NewRoundRobin()
	alice, bob := testUser("Alice"), testUser("Bob")
	require.NoError(t, g.AddUser(alice))
	require.NoError(t, g.AddUser(bob))
	g.FreezeBracket()

	require.NoError(t, g.SetMatchResult(alice, bob, models.OutcomeWin, nil))

	dave := testUser("Dave")
	require.NoError(t, g.ReplaceUser(alice, dave))
	require.True(t, g.Ended())
	assert.Equal(t, []*users.User{dave}, g.Results()[0])
}
