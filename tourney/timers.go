package tourney

import (
	"time"

	"github.com/Dosada05/arena-tournaments/models"
)

// SetAutoStartTimeout arms the automatic start. Zero disables it. Firing
// attempts the start transition; a failure for lack of players is absorbed
// and the tournament simply keeps forming.
func (t *Tournament) SetAutoStartTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateStarted:
		return ErrAlreadyStarted
	}

	if t.autoStartTimer != nil {
		t.autoStartTimer.Stop()
		t.autoStartTimer = nil
	}
	if timeout == 0 {
		t.autoStartDeadline = time.Time{}
		t.notifier.Broadcast(t.RoomID, MsgAutoStartSet, timerPayload{Enabled: false})
		t.notifier.Broadcast(t.RoomID, MsgUpdateEnd, nil)
		return nil
	}
	if timeout < t.opts.AutoStartMinimum {
		return ErrInvalidAutoStartTimeout
	}

	t.autoStartDeadline = t.now().Add(timeout)
	t.autoStartTimer = t.afterFunc(timeout, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.autoStartTimer = nil
		if t.state != models.StateForming {
			return
		}
		if err := t.startLocked(); err != nil {
			t.logger.Info("auto start did not fire a start", "room", t.RoomID, "error", err)
		}
	})
	t.notifier.Broadcast(t.RoomID, MsgAutoStartSet, timerPayload{Enabled: true, Seconds: timeout.Seconds()})
	t.notifier.Broadcast(t.RoomID, MsgUpdateEnd, nil)
	return nil
}

// SetAutoDisqualifyTimeout configures the idle deadline. Zero disables the
// sweep. The timeout must leave room for one warning before the deadline.
func (t *Tournament) SetAutoDisqualifyTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == models.StateEnded {
		return ErrAlreadyEnded
	}

	if timeout == 0 {
		t.autoDQTimeout = 0
		t.sweepEpoch++
		if t.autoDQTimer != nil {
			t.autoDQTimer.Stop()
			t.autoDQTimer = nil
		}
		t.notifier.Broadcast(t.RoomID, MsgAutoDQSet, timerPayload{Enabled: false})
		t.notifier.Broadcast(t.RoomID, MsgUpdateEnd, nil)
		return nil
	}
	if timeout < t.opts.AutoDQWarningWindow {
		return ErrInvalidAutoDisqualifyTimeout
	}

	t.autoDQTimeout = timeout
	t.notifier.Broadcast(t.RoomID, MsgAutoDQSet, timerPayload{Enabled: true, Seconds: timeout.Seconds()})
	t.notifier.Broadcast(t.RoomID, MsgUpdateEnd, nil)
	if t.state == models.StateStarted {
		t.runAutoDisqualifyLocked()
		t.update()
	}
	return nil
}

// RunAutoDisqualify triggers one sweep immediately.
func (t *Tournament) RunAutoDisqualify() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StateEnded:
		return ErrAlreadyEnded
	case models.StateForming:
		return ErrNotStarted
	}
	if t.autoDQTimeout == 0 {
		return ErrAutoDisqualifyDisabled
	}
	t.runAutoDisqualifyLocked()
	t.update()
	return nil
}

// runAutoDisqualifyLocked walks every player on the clock. A player with an
// open match or an unanswered incoming challenge is on the clock; a
// challenger waiting for their opponent is not. The sweep reschedules itself
// until the tournament ends or the timeout is turned off; each run bumps the
// epoch so a superseded timer fire becomes a no-op.
func (t *Tournament) runAutoDisqualifyLocked() {
	t.sweepEpoch++
	epoch := t.sweepEpoch
	if t.autoDQTimer != nil {
		t.autoDQTimer.Stop()
		t.autoDQTimer = nil
	}

	now := t.now()
	for _, ps := range t.sortedPlayers() {
		if ps.disqualified {
			continue
		}
		ch, challenged := t.pendingChallenges[ps.user.ID]
		if challenged && ch.from == ps.user {
			continue
		}
		if !challenged && !t.hadAvailable[ps.user.ID] {
			continue
		}

		elapsed := now.Sub(ps.lastAction)
		switch {
		case elapsed > t.autoDQTimeout && ps.warned:
			reason := "failed to act in time"
			if err := t.disqualifyLocked(ps.user, &reason); err != nil {
				t.logger.Error("idle disqualification rejected", "room", t.RoomID, "user", ps.user.ID, "error", err)
			}
			if t.generator.Ended() {
				t.finishLocked()
				return
			}
		case elapsed > t.autoDQTimeout-t.opts.AutoDQWarningWindow:
			if ps.warned {
				continue
			}
			ps.warned = true
			remaining := t.autoDQTimeout - elapsed
			if remaining < t.opts.AutoDQWarningWindow {
				// Keep the promise of a full warning window, moving the
				// recorded last action forward so the next run agrees.
				remaining = t.opts.AutoDQWarningWindow
				ps.lastAction = now.Add(t.opts.AutoDQWarningWindow - t.autoDQTimeout)
			}
			t.notifier.SendToUser(t.RoomID, ps.user.ID, MsgAutoDQWarning, warningPayload{
				SecondsRemaining: remaining.Seconds(),
			})
		default:
			ps.warned = false
		}
	}

	if t.state != models.StateStarted || t.autoDQTimeout == 0 {
		return
	}
	t.autoDQTimer = t.afterFunc(t.autoDQTimeout, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		// The epoch detects a sweep scheduled after this timer already
		// fired; the superseded run must not execute.
		if t.sweepEpoch != epoch || t.state != models.StateStarted || t.autoDQTimeout == 0 {
			return
		}
		t.runAutoDisqualifyLocked()
		t.update()
	})
}
