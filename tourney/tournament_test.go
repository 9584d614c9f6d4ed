package tourney

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/arena-tournaments/battles"
	"github.com/Dosada05/arena-tournaments/brackets"
	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/users"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type recordedMsg struct {
	user    string // empty for broadcasts
	msgType string
	payload any
}

// fakeNotifier records every outbound message under a lock so assertions can
// run while engine goroutines are still delivering.
type fakeNotifier struct {
	mu   sync.Mutex
	msgs []recordedMsg
}

func (n *fakeNotifier) Broadcast(roomID, msgType string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, recordedMsg{msgType: msgType, payload: payload})
}

func (n *fakeNotifier) SendToUser(roomID, userID, msgType string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, recordedMsg{user: userID, msgType: msgType, payload: payload})
}

func (n *fakeNotifier) count(msgType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.msgs {
		if m.msgType == msgType {
			c++
		}
	}
	return c
}

func (n *fakeNotifier) countBroadcast(msgType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.msgs {
		if m.user == "" && m.msgType == msgType {
			c++
		}
	}
	return c
}

func (n *fakeNotifier) countFor(userID, msgType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.msgs {
		if m.user == userID && m.msgType == msgType {
			c++
		}
	}
	return c
}

func (n *fakeNotifier) lastPayload(msgType string) any {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.msgs) - 1; i >= 0; i-- {
		if n.msgs[i].msgType == msgType {
			return n.msgs[i].payload
		}
	}
	return nil
}

func (n *fakeNotifier) lastPayloadFor(userID, msgType string) any {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.msgs) - 1; i >= 0; i-- {
		if n.msgs[i].user == userID && n.msgs[i].msgType == msgType {
			return n.msgs[i].payload
		}
	}
	return nil
}

// stubBattles wraps the in-process backend with a settable gate so tests can
// hold the engine inside a prep suspension and act while it waits.
type stubBattles struct {
	sim *battles.Sim

	mu       sync.Mutex
	prepGate chan struct{}
	prepErr  error
	startErr error
	rooms    []*battles.Room
}

func newStubBattles() *stubBattles {
	return &stubBattles{sim: battles.NewSim()}
}

func (s *stubBattles) gatePrep() chan struct{} {
	gate := make(chan struct{})
	s.mu.Lock()
	s.prepGate = gate
	s.mu.Unlock()
	return gate
}

func (s *stubBattles) Prep(ctx context.Context, u *users.User, format string) (*battles.Config, error) {
	s.mu.Lock()
	gate, prepErr := s.prepGate, s.prepErr
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if prepErr != nil {
		return nil, prepErr
	}
	return s.sim.Prep(ctx, u, format)
}

func (s *stubBattles) Start(ctx context.Context, from, to *users.User, format string, rated bool) (*battles.Room, error) {
	s.mu.Lock()
	startErr := s.startErr
	s.mu.Unlock()
	if startErr != nil {
		return nil, startErr
	}
	room, err := s.sim.Start(ctx, from, to, format, rated)
	if err == nil {
		s.mu.Lock()
		s.rooms = append(s.rooms, room)
		s.mu.Unlock()
	}
	return room, err
}

func (s *stubBattles) Get(id string) (*battles.Room, bool) { return s.sim.Get(id) }
func (s *stubBattles) Remove(id string)                    { s.sim.Remove(id) }

func (s *stubBattles) roomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *stubBattles) room(t *testing.T, i int) *battles.Room {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Greater(t, len(s.rooms), i)
	return s.rooms[i]
}

type fakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type scheduledTimer struct {
	delay time.Duration
	fn    func()
}

// timerRecorder captures timer arming instead of scheduling it, so tests fire
// callbacks deterministically. The returned timer never fires on its own.
type timerRecorder struct {
	mu        sync.Mutex
	scheduled []scheduledTimer
}

func (r *timerRecorder) afterFunc(d time.Duration, fn func()) *time.Timer {
	r.mu.Lock()
	r.scheduled = append(r.scheduled, scheduledTimer{delay: d, fn: fn})
	r.mu.Unlock()
	return time.NewTimer(time.Hour)
}

func (r *timerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scheduled)
}

func (r *timerRecorder) last(t *testing.T) scheduledTimer {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.scheduled)
	return r.scheduled[len(r.scheduled)-1]
}

type harness struct {
	tournament *Tournament
	notifier   *fakeNotifier
	battles    *stubBattles
	registry   *users.Registry
	clock      *fakeClock
	timers     *timerRecorder
	ipSeq      int
}

func newHarness(t *testing.T, generatorName string, settings Settings) *harness {
	t.Helper()
	gen, err := brackets.New(generatorName)
	require.NoError(t, err)
	settings.Generator = gen
	if settings.Format == "" {
		settings.Format = "standard"
	}

	h := &harness{
		notifier: &fakeNotifier{},
		battles:  newStubBattles(),
		registry: users.NewRegistry(),
		clock:    newFakeClock(),
		timers:   &timerRecorder{},
	}
	h.tournament = New("lobby", settings, Deps{
		Notifier: h.notifier,
		Battles:  h.battles,
		Registry: h.registry,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, DefaultOptions())
	h.tournament.now = h.clock.Now
	h.tournament.afterFunc = h.timers.afterFunc
	return h
}

func (h *harness) addPlayer(t *testing.T, name string) *users.User {
	t.Helper()
	h.ipSeq++
	u, err := h.registry.Authenticate(name, fmt.Sprintf("10.0.0.%d", h.ipSeq))
	require.NoError(t, err)
	require.NoError(t, h.tournament.AddUser(u))
	return u
}

func TestStartRequiresTwoPlayers(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})
	h.addPlayer(t, "Alice")

	require.ErrorIs(t, h.tournament.Start(), ErrNotEnoughUsers)
	assert.Equal(t, models.StateForming, h.tournament.State())

	h.addPlayer(t, "Bob")
	require.NoError(t, h.tournament.Start())
	assert.Equal(t, models.StateStarted, h.tournament.State())
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgTournamentStarted))

	require.ErrorIs(t, h.tournament.Start(), ErrAlreadyStarted)
	carol, err := h.registry.Authenticate("Carol", "10.0.0.99")
	require.NoError(t, err)
	require.ErrorIs(t, h.tournament.AddUser(carol), ErrAlreadyStarted)
}

func TestStartPurgesGhostMembers(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})
	alice := h.addPlayer(t, "Alice")
	bob := h.addPlayer(t, "Bob")

	// Merging Alice away leaves the tournament holding a stale pointer; the
	// start transition reconciles against the registry first.
	h.registry.Merge(alice.ID, bob)

	require.ErrorIs(t, h.tournament.Start(), ErrNotEnoughUsers)
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgPlayerLeft))
	assert.Equal(t, []string{"Bob"}, h.tournament.Users())
}

func TestJoinRules(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{PlayerCap: 2})
	alice := h.addPlayer(t, "Alice")

	require.ErrorIs(t, h.tournament.AddUser(alice), brackets.ErrUserAlreadyAdded)

	// A second account from the same address is an alt.
	alt, err := h.registry.Authenticate("Alice2", alice.IP)
	require.NoError(t, err)
	require.ErrorIs(t, h.tournament.AddUser(alt), ErrAltUserAlreadyAdded)

	h.addPlayer(t, "Bob")
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgTournamentFull))

	carol, err := h.registry.Authenticate("Carol", "10.0.0.99")
	require.NoError(t, err)
	require.ErrorIs(t, h.tournament.AddUser(carol), ErrTournamentFull)
}

func TestAutoStartOnFullCap(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{PlayerCap: 2, AutoStartCap: true})
	h.addPlayer(t, "Alice")
	h.addPlayer(t, "Bob")

	assert.Equal(t, models.StateStarted, h.tournament.State())
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgTournamentFull))
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgTournamentStarted))
}

func TestAutoStartFailureOnFullCapStillPublishes(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{PlayerCap: 2, AutoStartCap: true})
	alice := h.addPlayer(t, "Alice")
	bob, err := h.registry.Authenticate("Bob", "10.0.0.2")
	require.NoError(t, err)

	// Alice was merged away before the cap was reached; the automatic start
	// purges her and finds too few players left.
	h.registry.Merge(alice.ID, bob)
	require.NoError(t, h.tournament.AddUser(bob))

	assert.Equal(t, models.StateForming, h.tournament.State())
	assert.Equal(t, 0, h.notifier.countBroadcast(MsgTournamentStarted))

	// The join is still published: a refresh is armed, replay works, and the
	// deferred snapshot goes out.
	require.NoError(t, h.tournament.Resync(bob))
	h.clock.Advance(2 * time.Second)
	h.timers.last(t).fn()
	assert.Equal(t, 2, h.notifier.countBroadcast(MsgBracketUpdated))
}

func TestSetGenerator(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})
	h.addPlayer(t, "Alice")
	h.addPlayer(t, "Bob")

	require.NoError(t, h.tournament.SetGenerator("elimination"))
	assert.Equal(t, "Single Elimination", h.tournament.GeneratorName())
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, h.tournament.Users())

	require.Error(t, h.tournament.SetGenerator("swiss"))
	assert.Equal(t, "Single Elimination", h.tournament.GeneratorName())

	require.NoError(t, h.tournament.Start())
	require.ErrorIs(t, h.tournament.SetGenerator("roundrobin"), ErrAlreadyStarted)
}

func TestRemoveUserOnlyWhileForming(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})
	h.addPlayer(t, "Alice")
	bob := h.addPlayer(t, "Bob")
	carol := h.addPlayer(t, "Carol")

	require.NoError(t, h.tournament.RemoveUser(carol))
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, h.tournament.Users())

	require.NoError(t, h.tournament.Start())
	require.ErrorIs(t, h.tournament.RemoveUser(bob), ErrAlreadyStarted)
}

func TestReplaceUserKeepsBracketSlot(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})
	alice := h.addPlayer(t, "Alice")
	bob := h.addPlayer(t, "Bob")

	carol, err := h.registry.Authenticate("Carol", "10.0.0.50")
	require.NoError(t, err)
	require.NoError(t, h.tournament.ReplaceUser(alice, carol))
	assert.ElementsMatch(t, []string{"Carol", "Bob"}, h.tournament.Users())
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgPlayerReplaced))

	// A member cannot take over another member's slot.
	require.ErrorIs(t, h.tournament.ReplaceUser(carol, bob), ErrAltUserAlreadyAdded)
}

func TestRemoveBannedUser(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})
	h.addPlayer(t, "Alice")
	bob := h.addPlayer(t, "Bob")
	carol := h.addPlayer(t, "Carol")

	// While forming a ban is a plain withdrawal.
	require.NoError(t, h.tournament.RemoveBannedUser(carol))
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgPlayerLeft))
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, h.tournament.Users())

	require.NoError(t, h.tournament.AddUser(carol))
	require.NoError(t, h.tournament.Start())

	// Once started the ban disqualifies without telling the player why.
	require.NoError(t, h.tournament.RemoveBannedUser(bob))
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgPlayerDisqualified))
	assert.Equal(t, 0, h.notifier.countFor(bob.ID, MsgPlayerDisqualified))
	assert.Equal(t, models.StateStarted, h.tournament.State())
}

func TestForceEndDetachesRunningBattles(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})
	alice := h.addPlayer(t, "Alice")
	bob := h.addPlayer(t, "Bob")
	require.NoError(t, h.tournament.Start())

	require.NoError(t, h.tournament.Challenge(alice, bob))
	require.Eventually(t, func() bool {
		return h.notifier.countFor(bob.ID, MsgChallengeReceived) == 1
	}, waitFor, tick)
	require.NoError(t, h.tournament.AcceptChallenge(bob))
	require.Eventually(t, func() bool {
		return h.notifier.countBroadcast(MsgBattleStarted) == 1
	}, waitFor, tick)

	h.tournament.ForceEnd()
	assert.Equal(t, models.StateEnded, h.tournament.State())
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgForceEnded))

	// Both sides are told their battle no longer counts.
	for _, u := range []*users.User{alice, bob} {
		payload, ok := h.notifier.lastPayloadFor(u.ID, MsgBattleEnded).(battleEndedPayload)
		require.True(t, ok)
		assert.Equal(t, "fail", payload.Result)
	}

	// The detached room finishes on its own without reporting back.
	room := h.battles.room(t, 0)
	require.NoError(t, room.Finish(alice, []int{2, 0}))
	assert.Equal(t, 0, h.notifier.countBroadcast(MsgBattleEnded))

	h.tournament.ForceEnd() // idempotent
	assert.Equal(t, 1, h.notifier.countBroadcast(MsgForceEnded))
}

func TestSettingsToggles(t *testing.T) {
	h := newHarness(t, "roundrobin", Settings{})

	h.tournament.SetScouting(false)
	h.tournament.SetModJoin(true)

	payload, ok := h.notifier.lastPayload(MsgSettingsChanged).(settingsPayload)
	require.True(t, ok)
	assert.False(t, payload.Scouting)
	assert.True(t, payload.ModJoin)
}
