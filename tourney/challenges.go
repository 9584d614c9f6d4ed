package tourney

import (
	"context"

	"github.com/Dosada05/arena-tournaments/battles"
	"github.com/Dosada05/arena-tournaments/brackets"
	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/users"
)

// Challenge opens the handshake: from offers a match to to. Both players are
// reserved immediately, but the challenge is only recorded once from's battle
// prep resolves; until then a disqualification or disconnect can still void
// it (see finishChallenge).
func (t *Tournament) Challenge(from, to *users.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateForming:
		return ErrNotStarted
	}

	t.purgeGhostsLocked()
	if t.state == models.StateEnded {
		return ErrAlreadyEnded
	}

	psFrom, ok := t.players[from.ID]
	if !ok || psFrom.user != from {
		return brackets.ErrUserNotAdded
	}
	psTo, ok := t.players[to.ID]
	if !ok || psTo.user != to {
		return brackets.ErrUserNotAdded
	}
	if psFrom.disqualified || psTo.disqualified {
		return brackets.ErrInvalidMatch
	}

	permitted := false
	for _, pair := range t.generator.AvailableMatches() {
		if pair[0] == from && pair[1] == to {
			permitted = true
			break
		}
	}
	if !permitted {
		return brackets.ErrInvalidMatch
	}

	// The bracket never offers a busy player, so a busy endpoint here means
	// the handshake maps and the bracket have diverged.
	if t.generator.UserBusy(from) || t.generator.UserBusy(to) {
		t.logger.Error("challenge endpoint already busy", "room", t.RoomID, "from", from.ID, "to", to.ID)
		t.notifier.Broadcast(t.RoomID, MsgBackendError, errorPayload{Message: ErrBackendMismatch.Error()})
		return ErrBackendMismatch
	}

	t.generator.SetUserBusy(from, true)
	t.generator.SetUserBusy(to, true)
	t.matchesDirty = true
	t.update()

	go func() {
		cfg, err := t.battles.Prep(context.Background(), from, t.Format)
		t.finishChallenge(from, to, cfg, err)
	}()
	return nil
}

// finishChallenge resumes after from's battle prep. Everything is
// re-validated: the tournament, either player, or the account backing them
// may have moved on while prep ran. A failed re-validation releases the
// reservation and stays silent.
func (t *Tournament) finishChallenge(from, to *users.User, cfg *battles.Config, prepErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != models.StateStarted {
		return
	}

	valid := prepErr == nil
	for _, u := range []*users.User{from, to} {
		ps, ok := t.players[u.ID]
		if !ok || ps.user != u || ps.disqualified || t.registry.GetExact(u.ID) != u {
			valid = false
		}
	}
	if !valid {
		t.generator.SetUserBusy(from, false)
		t.generator.SetUserBusy(to, false)
		t.matchesDirty = true
		t.update()
		return
	}

	ch := &challenge{from: from, to: to, config: cfg}
	t.pendingChallenges[from.ID] = ch
	t.pendingChallenges[to.ID] = ch
	// Both clocks restart: the recipient gets the full timeout to answer.
	now := t.now()
	t.players[from.ID].lastAction = now
	t.players[to.ID].lastAction = now

	t.notifier.SendToUser(t.RoomID, from.ID, MsgChallengePending, challengePayload{Opponent: to.Name})
	t.notifier.SendToUser(t.RoomID, to.ID, MsgChallengeReceived, challengePayload{Opponent: from.Name})
	t.bracketDirty = true
	t.matchesDirty = true
	t.update()
}

// CancelChallenge withdraws a recorded challenge. Only the challenging side
// may cancel; the challenged side simply declines by never accepting.
func (t *Tournament) CancelChallenge(u *users.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateForming:
		return ErrNotStarted
	}
	ch, ok := t.pendingChallenges[u.ID]
	if !ok {
		return ErrNoChallenge
	}
	if ch.from != u {
		return ErrNotChallenger
	}

	delete(t.pendingChallenges, ch.from.ID)
	delete(t.pendingChallenges, ch.to.ID)
	t.generator.SetUserBusy(ch.from, false)
	t.generator.SetUserBusy(ch.to, false)
	t.notifier.SendToUser(t.RoomID, ch.from.ID, MsgChallengeCleared, challengePayload{Opponent: ch.to.Name})
	t.notifier.SendToUser(t.RoomID, ch.to.ID, MsgChallengeCleared, challengePayload{Opponent: ch.from.Name})
	t.bracketDirty = true
	t.matchesDirty = true
	t.update()
	return nil
}

// AcceptChallenge resumes the handshake from the challenged side. The battle
// prep for the acceptor runs asynchronously; the handshake finalizes in
// finishAccept.
func (t *Tournament) AcceptChallenge(u *users.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateForming:
		return ErrNotStarted
	}
	ch, ok := t.pendingChallenges[u.ID]
	if !ok {
		return ErrNoChallenge
	}
	if ch.to != u {
		return ErrNotChallenged
	}

	go func() {
		_, err := t.battles.Prep(context.Background(), u, t.Format)
		t.finishAccept(u, ch, err)
	}()
	return nil
}

// finishAccept finalizes the handshake after the acceptor's prep. The
// challenge must still be the same one that was accepted: a disqualification
// voids it and a duplicate accept consumes it, and either way this resumption
// is a no-op. Prep failure leaves the challenge pending so the player can fix
// their setup and accept again.
func (t *Tournament) finishAccept(u *users.User, ch *challenge, prepErr error) {
	t.mu.Lock()

	if t.state != models.StateStarted || prepErr != nil {
		t.mu.Unlock()
		return
	}
	if t.pendingChallenges[u.ID] != ch || !ch.from.Connected || !ch.to.Connected ||
		t.registry.GetExact(ch.from.ID) != ch.from || t.registry.GetExact(ch.to.ID) != ch.to {
		t.mu.Unlock()
		return
	}

	// Claim the challenge before suspending again; the room creation below
	// may block and nothing else is allowed to finalize this pair meanwhile.
	delete(t.pendingChallenges, ch.from.ID)
	delete(t.pendingChallenges, ch.to.ID)
	t.mu.Unlock()

	room, err := t.battles.Start(context.Background(), ch.from, ch.to, t.Format, t.rated)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != models.StateStarted {
		if room != nil {
			room.Detach()
		}
		return
	}
	if err != nil {
		// Session creation declined; the reservation is released and the
		// pair shows up as available again.
		t.generator.SetUserBusy(ch.from, false)
		t.generator.SetUserBusy(ch.to, false)
		t.matchesDirty = true
		t.update()
		return
	}
	psFrom, psTo := t.players[ch.from.ID], t.players[ch.to.ID]
	if psFrom == nil || psTo == nil || psFrom.user != ch.from || psTo.user != ch.to ||
		psFrom.disqualified || psTo.disqualified {
		room.Detach()
		t.generator.SetUserBusy(ch.from, false)
		t.generator.SetUserBusy(ch.to, false)
		t.matchesDirty = true
		t.update()
		return
	}

	m := &match{from: ch.from, to: ch.to, room: room}
	t.inProgress[ch.from.ID] = m
	t.inProgress[ch.to.ID] = m
	room.SetResultHandler(func(winner *users.User, score []int) {
		t.onBattleEnd(m, winner, score)
	})

	start := t.now()
	psFrom.lastAction = start
	psTo.lastAction = start

	t.notifier.Broadcast(t.RoomID, MsgBattleStarted, battleStartedPayload{
		P1:   ch.from.Name,
		P2:   ch.to.Name,
		Room: room.ID,
	})
	t.bracketDirty = true
	if t.autoDQTimeout > 0 {
		t.runAutoDisqualifyLocked()
	}
	t.update()
}

// onBattleEnd records a finished battle back into the bracket. A draw on a
// bracket type without draw support is published as a failed update: the edge
// stays open, both players are freed and the pair may be challenged again.
func (t *Tournament) onBattleEnd(m *match, winner *users.User, score []int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != models.StateStarted {
		return
	}
	if t.inProgress[m.from.ID] != m {
		return
	}
	delete(t.inProgress, m.from.ID)
	delete(t.inProgress, m.to.ID)
	t.generator.SetUserBusy(m.from, false)
	t.generator.SetUserBusy(m.to, false)

	outcome := m.room.Outcome(m.from, winner)
	result := string(outcome)
	if outcome == models.OutcomeDraw && !t.generator.DrawsSupported() {
		result = "fail"
	} else if err := t.generator.SetMatchResult(m.from, m.to, outcome, score); err != nil {
		t.logger.Error("bracket rejected tournament-derived result",
			"room", t.RoomID, "from", m.from.ID, "to", m.to.ID, "outcome", outcome, "error", err)
		t.notifier.Broadcast(t.RoomID, MsgBackendError, errorPayload{Message: ErrBackendMismatch.Error()})
		result = "fail"
	}

	t.notifier.Broadcast(t.RoomID, MsgBattleEnded, battleEndedPayload{
		From:   m.from.Name,
		To:     m.to.Name,
		Result: result,
		Score:  score,
		Room:   m.room.ID,
	})
	t.bracketDirty = true
	t.matchesDirty = true

	if t.generator.Ended() {
		t.finishLocked()
		return
	}
	if t.autoDQTimeout > 0 {
		t.runAutoDisqualifyLocked()
	}
	t.update()
}
