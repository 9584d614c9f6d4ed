package tourney

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/arena-tournaments/battles"
	"github.com/Dosada05/arena-tournaments/brackets"
	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/users"
)

// Notifier is the outbound push channel. The websocket hub satisfies it; tests
// substitute a recorder.
type Notifier interface {
	Broadcast(roomID, msgType string, payload any)
	SendToUser(roomID, userID, msgType string, payload any)
}

// Options are the engine's timing policy constants.
type Options struct {
	// Minimum interval between full bracket snapshot recomputations.
	BracketUpdateInterval time.Duration
	// How long before the deadline an idle player is warned.
	AutoDQWarningWindow time.Duration
	// Smallest accepted auto start timeout.
	AutoStartMinimum time.Duration
}

func DefaultOptions() Options {
	return Options{
		BracketUpdateInterval: 2 * time.Second,
		AutoDQWarningWindow:   30 * time.Second,
		AutoStartMinimum:      30 * time.Second,
	}
}

// Deps are the collaborators a tournament is wired with.
type Deps struct {
	Notifier Notifier
	Battles  battles.Service
	Registry *users.Registry
	Logger   *slog.Logger
	// OnEnd fires once, off the tournament lock, when the tournament ends.
	OnEnd func(*Result)
}

// Settings are the per-tournament creation parameters.
type Settings struct {
	Format       string
	Generator    brackets.Generator
	PlayerCap    int // 0 = unlimited
	Rated        bool
	AllowAlts    bool
	AutoStartCap bool // start automatically when the cap is reached
}

// Result is the summary handed to the OnEnd hook.
type Result struct {
	RoomID      string
	Format      string
	Generator   string
	Results     [][]string
	Bracket     *brackets.BracketData
	PlayerCount int
	Forced      bool
	EndedAt     time.Time
}

type playerState struct {
	user         *users.User
	disqualified bool
	warned       bool
	lastAction   time.Time
}

type challenge struct {
	from, to *users.User
	config   *battles.Config
}

type match struct {
	from, to *users.User
	room     *battles.Room
}

// Tournament is the per-room orchestrator. One mutex serializes every
// mutation; the only operations running off the lock are battle prep and
// battle room creation, and both re-validate their preconditions when they
// re-enter (see challenges.go).
type Tournament struct {
	mu sync.Mutex

	RoomID string
	Format string

	playerCap     int
	rated         bool
	allowAlts     bool
	autoStartCap  bool
	allowScouting bool
	allowModjoin  bool

	state     models.TournamentState
	generator brackets.Generator

	players           map[string]*playerState
	pendingChallenges map[string]*challenge // both endpoints keyed
	inProgress        map[string]*match     // both endpoints keyed

	// bracket cache state
	bracketDirty      bool
	matchesDirty      bool
	lastBracketUpdate time.Time
	bracketTimer      *time.Timer
	bracketCache      *brackets.BracketData
	availableCache    *availableSet
	hadAvailable      map[string]bool

	// timers
	autoStartTimer    *time.Timer
	autoStartDeadline time.Time
	autoDQTimeout     time.Duration
	autoDQTimer       *time.Timer
	sweepEpoch        uint64

	opts      Options
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
	notifier  Notifier
	battles   battles.Service
	registry  *users.Registry
	logger    *slog.Logger
	onEnd     func(*Result)
}

func New(roomID string, settings Settings, deps Deps, opts Options) *Tournament {
	if opts.BracketUpdateInterval <= 0 {
		opts = DefaultOptions()
	}
	t := &Tournament{
		RoomID:            roomID,
		Format:            settings.Format,
		playerCap:         settings.PlayerCap,
		rated:             settings.Rated,
		allowAlts:         settings.AllowAlts,
		autoStartCap:      settings.AutoStartCap,
		allowScouting:     true,
		state:             models.StateForming,
		generator:         settings.Generator,
		players:           make(map[string]*playerState),
		pendingChallenges: make(map[string]*challenge),
		inProgress:        make(map[string]*match),
		hadAvailable:      make(map[string]bool),
		opts:              opts,
		now:               time.Now,
		afterFunc:         time.AfterFunc,
		notifier:          deps.Notifier,
		battles:           deps.Battles,
		registry:          deps.Registry,
		logger:            deps.Logger,
		onEnd:             deps.OnEnd,
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.notifier.Broadcast(roomID, MsgTournamentCreated, createdPayload{
		Format:    settings.Format,
		Generator: settings.Generator.Name(),
		PlayerCap: settings.PlayerCap,
		Rated:     settings.Rated,
	})
	t.notifier.Broadcast(roomID, MsgUpdateEnd, nil)
	return t
}

// State returns the current lifecycle state.
func (t *Tournament) State() models.TournamentState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// GeneratorName returns the active bracket type.
func (t *Tournament) GeneratorName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generator.Name()
}

// Users returns the display names of the current members, disqualified
// included.
func (t *Tournament) Users() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return userNames(t.generator.Users(true))
}

// AddUser admits a player while the tournament is forming. Reaching the cap
// announces fullness and, when configured, starts play.
func (t *Tournament) AddUser(u *users.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateStarted:
		return ErrAlreadyStarted
	}
	if !u.Named {
		return ErrUserNotNamed
	}
	if t.playerCap > 0 && len(t.players) >= t.playerCap {
		return ErrTournamentFull
	}
	if !t.allowAlts {
		for _, ps := range t.players {
			if ps.user != u && ps.user.IP == u.IP {
				return ErrAltUserAlreadyAdded
			}
		}
	}
	if err := t.generator.AddUser(u); err != nil {
		return err
	}
	t.players[u.ID] = &playerState{user: u, lastAction: t.now()}
	t.notifier.Broadcast(t.RoomID, MsgPlayerJoined, playerPayload{Name: u.Name})
	t.bracketDirty = true

	if t.playerCap > 0 && len(t.players) == t.playerCap {
		t.notifier.Broadcast(t.RoomID, MsgTournamentFull, nil)
		if t.autoStartCap {
			if err := t.startLocked(); err != nil {
				// The tournament keeps forming, and the join above still has
				// to publish.
				t.logger.Error("auto start on full cap failed", "room", t.RoomID, "error", err)
				t.update()
			}
			return nil
		}
	}
	t.update()
	return nil
}

// RemoveUser withdraws a player. Only valid while forming; started
// tournaments go through Disqualify instead.
func (t *Tournament) RemoveUser(u *users.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateStarted:
		return ErrAlreadyStarted
	}
	if err := t.generator.RemoveUser(u); err != nil {
		return err
	}
	delete(t.players, u.ID)
	delete(t.hadAvailable, u.ID)
	t.notifier.Broadcast(t.RoomID, MsgPlayerLeft, playerPayload{Name: u.Name})
	t.bracketDirty = true
	t.update()
	return nil
}

// ReplaceUser substitutes the identity behind a bracket slot, preserving the
// position. Used for account merge recovery.
func (t *Tournament) ReplaceUser(old, replacement *users.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == models.StateEnded {
		return ErrAlreadyEnded
	}
	if !replacement.Named {
		return ErrUserNotNamed
	}
	if _, member := t.players[replacement.ID]; member {
		return ErrAltUserAlreadyAdded
	}
	if err := t.generator.ReplaceUser(old, replacement); err != nil {
		return err
	}
	ps := t.players[old.ID]
	delete(t.players, old.ID)
	ps.user = replacement
	t.players[replacement.ID] = ps
	if t.hadAvailable[old.ID] {
		delete(t.hadAvailable, old.ID)
		t.hadAvailable[replacement.ID] = true
	}
	t.notifier.Broadcast(t.RoomID, MsgPlayerReplaced, replacedPayload{Old: old.Name, New: replacement.Name})
	t.bracketDirty = true
	t.update()
	return nil
}

// SetGenerator swaps the bracket type while forming. Membership is replayed
// into the new bracket; if any member is rejected the old bracket stays in
// place untouched.
func (t *Tournament) SetGenerator(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateStarted:
		return ErrAlreadyStarted
	}
	replacement, err := brackets.New(name)
	if err != nil {
		return err
	}
	for _, u := range t.generator.Users(true) {
		if err := replacement.AddUser(u); err != nil {
			return err
		}
	}
	t.generator = replacement
	t.bracketDirty = true
	t.update()
	return nil
}

// SetScouting toggles whether players may watch each other's battles.
func (t *Tournament) SetScouting(allowed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowScouting = allowed
	t.broadcastSettings()
}

// SetModJoin toggles whether moderators may join players' battles.
func (t *Tournament) SetModJoin(allowed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowModjoin = allowed
	t.broadcastSettings()
}

func (t *Tournament) broadcastSettings() {
	t.notifier.Broadcast(t.RoomID, MsgSettingsChanged, settingsPayload{
		Scouting: t.allowScouting,
		ModJoin:  t.allowModjoin,
	})
	t.notifier.Broadcast(t.RoomID, MsgUpdateEnd, nil)
}

// Start freezes membership and opens play.
func (t *Tournament) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked()
}

func (t *Tournament) startLocked() error {
	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateStarted:
		return ErrAlreadyStarted
	}
	t.purgeGhostsLocked()
	if len(t.players) < 2 {
		return ErrNotEnoughUsers
	}
	if pre, ok := t.generator.(brackets.Pregenerator); ok {
		pre.GenerateBracket()
	}
	t.generator.FreezeBracket()
	t.state = models.StateStarted

	if t.autoStartTimer != nil {
		t.autoStartTimer.Stop()
		t.autoStartTimer = nil
	}
	start := t.now()
	for _, ps := range t.players {
		ps.lastAction = start
	}
	t.bracketDirty = true
	t.matchesDirty = true
	t.notifier.Broadcast(t.RoomID, MsgTournamentStarted, startedPayload{
		Generator: t.generator.Name(),
		Players:   userNames(t.generator.Users(false)),
	})
	if t.autoDQTimeout > 0 {
		t.runAutoDisqualifyLocked()
	}
	t.update()
	return nil
}

// Disqualify removes a started player from contention, voiding any pending
// challenge and forfeiting any running battle. A nil reason keeps the notice
// away from the player (silent removal).
func (t *Tournament) Disqualify(u *users.User, reason *string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateForming:
		return ErrNotStarted
	}
	if err := t.disqualifyLocked(u, reason); err != nil {
		return err
	}
	if t.generator.Ended() {
		t.finishLocked()
		return nil
	}
	if t.autoDQTimeout > 0 {
		t.runAutoDisqualifyLocked()
	}
	t.update()
	return nil
}

func (t *Tournament) disqualifyLocked(u *users.User, reason *string) error {
	ps, member := t.players[u.ID]
	if !member {
		return brackets.ErrUserNotAdded
	}
	if ps.disqualified {
		return ErrAlreadyDisqualified
	}

	if ch, ok := t.pendingChallenges[u.ID]; ok {
		delete(t.pendingChallenges, ch.from.ID)
		delete(t.pendingChallenges, ch.to.ID)
		t.generator.SetUserBusy(ch.from, false)
		t.generator.SetUserBusy(ch.to, false)
		other := ch.from
		if other == u {
			other = ch.to
		}
		t.notifier.SendToUser(t.RoomID, other.ID, MsgChallengeCleared, challengePayload{Opponent: u.Name})
	}

	if m, ok := t.inProgress[u.ID]; ok {
		delete(t.inProgress, m.from.ID)
		delete(t.inProgress, m.to.ID)
		t.generator.SetUserBusy(m.from, false)
		t.generator.SetUserBusy(m.to, false)
		// The battle keeps running, but it no longer reports here; the
		// bracket edge is settled by the disqualification below.
		m.room.Detach()
		m.room.Forfeit(u)
	}

	if err := t.generator.DisqualifyUser(u); err != nil {
		return err
	}
	t.generator.SetUserBusy(u, false)
	ps.disqualified = true

	payload := disqualifiedPayload{Name: u.Name}
	if reason != nil {
		payload.Reason = *reason
		t.notifier.SendToUser(t.RoomID, u.ID, MsgPlayerDisqualified, payload)
	}
	t.notifier.Broadcast(t.RoomID, MsgPlayerDisqualified, disqualifiedPayload{Name: u.Name})
	t.bracketDirty = true
	t.matchesDirty = true
	return nil
}

// RemoveBannedUser pulls a banned account out of the tournament: withdrawal
// while forming, silent disqualification once started.
func (t *Tournament) RemoveBannedUser(u *users.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateForming:
		if err := t.generator.RemoveUser(u); err != nil {
			return err
		}
		delete(t.players, u.ID)
		delete(t.hadAvailable, u.ID)
		t.notifier.Broadcast(t.RoomID, MsgPlayerLeft, playerPayload{Name: u.Name})
		t.bracketDirty = true
		t.update()
		return nil
	}

	if err := t.disqualifyLocked(u, nil); err != nil {
		return err
	}
	if t.generator.Ended() {
		t.finishLocked()
		return nil
	}
	t.update()
	return nil
}

// PurgeGhosts reconciles members against the identity registry, dropping any
// whose backing account has been merged away.
func (t *Tournament) PurgeGhosts() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == models.StateEnded {
		return
	}
	t.purgeGhostsLocked()
	t.update()
}

func (t *Tournament) purgeGhostsLocked() {
	var ghosts []*playerState
	for _, ps := range t.players {
		if t.registry.GetExact(ps.user.ID) != ps.user {
			ghosts = append(ghosts, ps)
		}
	}
	for _, ps := range ghosts {
		if ps.disqualified {
			continue
		}
		if t.state == models.StateForming {
			if err := t.generator.RemoveUser(ps.user); err != nil {
				t.logger.Error("ghost removal rejected", "room", t.RoomID, "user", ps.user.ID, "error", err)
				continue
			}
			delete(t.players, ps.user.ID)
			delete(t.hadAvailable, ps.user.ID)
			t.notifier.Broadcast(t.RoomID, MsgPlayerLeft, playerPayload{Name: ps.user.Name})
			t.bracketDirty = true
			continue
		}
		if err := t.disqualifyLocked(ps.user, nil); err != nil {
			t.logger.Error("ghost disqualification rejected", "room", t.RoomID, "user", ps.user.ID, "error", err)
		}
	}
	if t.state == models.StateStarted && t.generator.Ended() {
		t.finishLocked()
	}
}

// ForceEnd terminates the tournament unconditionally. Running battles are
// detached and keep going on their own.
func (t *Tournament) ForceEnd() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == models.StateEnded {
		return
	}
	t.cancelTimersLocked()
	t.detachMatchesLocked()
	t.state = models.StateEnded
	t.notifier.Broadcast(t.RoomID, MsgForceEnded, nil)
	t.notifier.Broadcast(t.RoomID, MsgUpdateEnd, nil)
	t.fireOnEnd(&Result{
		RoomID:      t.RoomID,
		Format:      t.Format,
		Generator:   t.generator.Name(),
		PlayerCount: len(t.players),
		Forced:      true,
		EndedAt:     t.now(),
	})
}

func (t *Tournament) finishLocked() {
	t.cancelTimersLocked()
	t.detachMatchesLocked()
	t.state = models.StateEnded

	t.bracketCache = t.renderBracketLocked()
	t.bracketDirty = false

	groups := t.generator.Results()
	results := make([][]string, len(groups))
	for i, group := range groups {
		results[i] = userNames(group)
	}
	t.notifier.Broadcast(t.RoomID, MsgTournamentEnded, endedPayload{
		Format:    t.Format,
		Generator: t.generator.Name(),
		Results:   results,
		Bracket:   t.bracketCache,
	})
	t.notifier.Broadcast(t.RoomID, MsgUpdateEnd, nil)
	t.fireOnEnd(&Result{
		RoomID:      t.RoomID,
		Format:      t.Format,
		Generator:   t.generator.Name(),
		Results:     results,
		Bracket:     t.bracketCache,
		PlayerCount: len(t.players),
		EndedAt:     t.now(),
	})
}

func (t *Tournament) fireOnEnd(res *Result) {
	if t.onEnd == nil {
		return
	}
	// Off the lock: the hook may hit storage.
	go t.onEnd(res)
}

func (t *Tournament) detachMatchesLocked() {
	seen := make(map[*match]bool)
	for _, m := range t.inProgress {
		if seen[m] {
			continue
		}
		seen[m] = true
		m.room.Detach()
		t.notifier.SendToUser(t.RoomID, m.from.ID, MsgBattleEnded, battleEndedPayload{
			From: m.from.Name, To: m.to.Name, Result: "fail", Room: m.room.ID,
		})
		t.notifier.SendToUser(t.RoomID, m.to.ID, MsgBattleEnded, battleEndedPayload{
			From: m.from.Name, To: m.to.Name, Result: "fail", Room: m.room.ID,
		})
	}
	t.inProgress = make(map[string]*match)
}

func (t *Tournament) cancelTimersLocked() {
	if t.bracketTimer != nil {
		t.bracketTimer.Stop()
		t.bracketTimer = nil
	}
	if t.autoStartTimer != nil {
		t.autoStartTimer.Stop()
		t.autoStartTimer = nil
	}
	if t.autoDQTimer != nil {
		t.autoDQTimer.Stop()
		t.autoDQTimer = nil
	}
	t.sweepEpoch++
}

// sortedPlayers returns the member states in a stable order for sweeps.
func (t *Tournament) sortedPlayers() []*playerState {
	out := make([]*playerState, 0, len(t.players))
	for _, ps := range t.players {
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].user.ID < out[j].user.ID })
	return out
}

func userNames(list []*users.User) []string {
	names := make([]string, len(list))
	for i, u := range list {
		names[i] = u.Name
	}
	return names
}
