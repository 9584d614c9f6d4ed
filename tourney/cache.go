package tourney

import (
	"github.com/Dosada05/arena-tournaments/brackets"
	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/users"
)

type availableSet struct {
	canChallenge map[string][]string
	challengedBy map[string][]string
}

// update publishes pending state. Bracket snapshots are rate limited: inside
// the minimum interval a single deferred refresh is armed and further
// invalidations are absorbed into it. Available-match pushes have no interval;
// they go straight to each player. Callers hold the lock.
func (t *Tournament) update() {
	if t.bracketDirty {
		if since := t.now().Sub(t.lastBracketUpdate); since < t.opts.BracketUpdateInterval {
			if t.bracketTimer == nil {
				t.bracketTimer = t.afterFunc(t.opts.BracketUpdateInterval-since, func() {
					t.mu.Lock()
					defer t.mu.Unlock()
					t.bracketTimer = nil
					if t.state == models.StateEnded {
						return
					}
					t.update()
				})
			}
		} else {
			t.bracketCache = t.renderBracketLocked()
			t.bracketDirty = false
			t.lastBracketUpdate = t.now()
			t.notifier.Broadcast(t.RoomID, MsgBracketUpdated, t.bracketCache)
		}
	}

	if t.state == models.StateStarted && t.matchesDirty {
		t.availableCache = t.computeAvailableLocked()
		t.matchesDirty = false
		for id := range t.players {
			if t.players[id].disqualified {
				continue
			}
			t.notifier.SendToUser(t.RoomID, id, MsgMatchesUpdated, t.matchesPayloadFor(id))
		}
	}

	t.notifier.Broadcast(t.RoomID, MsgUpdateEnd, nil)
}

// Resync replays the current state to one reattaching connection. It refuses
// to run while a cache is dirty with no refresh pending; that ordering can
// only come from an engine bug and must not leak stale data.
func (t *Tournament) Resync(u *users.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if (t.bracketTimer == nil && t.bracketDirty) ||
		(t.state == models.StateStarted && t.matchesDirty) {
		t.logger.Error("resync requested with dirty caches", "room", t.RoomID, "user", u.ID)
		t.notifier.Broadcast(t.RoomID, MsgBackendError, errorPayload{Message: ErrStaleResync.Error()})
		return ErrStaleResync
	}

	_, member := t.players[u.ID]
	t.notifier.SendToUser(t.RoomID, u.ID, MsgTournamentCreated, createdPayload{
		Format:    t.Format,
		Generator: t.generator.Name(),
		PlayerCap: t.playerCap,
		Rated:     t.rated,
	})
	if t.bracketCache == nil {
		t.bracketCache = t.renderBracketLocked()
	}
	t.notifier.SendToUser(t.RoomID, u.ID, MsgBracketUpdated, t.bracketCache)
	if t.state == models.StateStarted && member {
		t.notifier.SendToUser(t.RoomID, u.ID, MsgMatchesUpdated, t.matchesPayloadFor(u.ID))
	}
	t.notifier.SendToUser(t.RoomID, u.ID, MsgUpdateEnd, nil)
	return nil
}

// renderBracketLocked snapshots the bracket and stamps live handshake and
// battle state onto the undecided edges.
func (t *Tournament) renderBracketLocked() *brackets.BracketData {
	data := t.generator.BracketData()

	if data.RootNode != nil {
		t.stampNode(data.RootNode)
	}
	if data.TableHeaders != nil {
		for i, row := range data.TableContents {
			for j, cell := range row {
				if cell == nil || cell.State != brackets.EdgeAvailable {
					continue
				}
				state, room := t.edgeState(data.TableHeaders.RowIDs[i], data.TableHeaders.ColIDs[j])
				if state != "" {
					cell.State = state
					cell.Room = room
				}
			}
		}
	}
	return data
}

func (t *Tournament) stampNode(n *brackets.BracketNode) {
	if len(n.Children) == 2 {
		if n.State == brackets.EdgeAvailable {
			a, b := n.Children[0].UserID, n.Children[1].UserID
			if state, room := t.edgeState(a, b); state != "" {
				n.State = state
				n.Room = room
			}
		}
		t.stampNode(n.Children[0])
		t.stampNode(n.Children[1])
	}
}

func (t *Tournament) edgeState(aID, bID string) (string, string) {
	if ch, ok := t.pendingChallenges[aID]; ok {
		if (ch.from.ID == aID && ch.to.ID == bID) || (ch.from.ID == bID && ch.to.ID == aID) {
			return brackets.EdgeChallenging, ""
		}
	}
	if m, ok := t.inProgress[aID]; ok {
		if (m.from.ID == aID && m.to.ID == bID) || (m.from.ID == bID && m.to.ID == aID) {
			return brackets.EdgeInProgress, m.room.ID
		}
	}
	return "", ""
}

// computeAvailableLocked rederives the per-player challenge sets from the
// bracket. A player that just gained their first open match gets a fresh
// last-action stamp so the idle clock starts from now.
func (t *Tournament) computeAvailableLocked() *availableSet {
	pairs := t.generator.AvailableMatches()
	set := &availableSet{
		canChallenge: make(map[string][]string),
		challengedBy: make(map[string][]string),
	}

	nowHas := make(map[string]bool, len(pairs)*2)
	now := t.now()
	for _, pair := range pairs {
		from, to := pair[0], pair[1]
		set.canChallenge[from.ID] = append(set.canChallenge[from.ID], to.Name)
		set.challengedBy[to.ID] = append(set.challengedBy[to.ID], from.Name)
		for _, u := range pair {
			if !nowHas[u.ID] {
				nowHas[u.ID] = true
				if !t.hadAvailable[u.ID] {
					if ps, ok := t.players[u.ID]; ok {
						ps.lastAction = now
					}
				}
			}
		}
	}
	t.hadAvailable = nowHas
	return set
}

func (t *Tournament) matchesPayloadFor(id string) matchesPayload {
	payload := matchesPayload{
		Challenges:   []string{},
		ChallengeBys: []string{},
	}
	if t.availableCache != nil {
		if list := t.availableCache.canChallenge[id]; list != nil {
			payload.Challenges = list
		}
		if list := t.availableCache.challengedBy[id]; list != nil {
			payload.ChallengeBys = list
		}
	}
	if ch, ok := t.pendingChallenges[id]; ok {
		if ch.from.ID == id {
			payload.Challenging = ch.to.Name
		} else {
			payload.ChallengedBy = ch.from.Name
		}
	}
	return payload
}
