package brackets

import (
	"math/rand"
	"sort"

	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/users"
)

type elimEntrant struct {
	user         *users.User
	disqualified bool
	busy         bool
}

type elimNode struct {
	children [2]*elimNode
	parent   *elimNode
	depth    int // 0 at the final

	user  *users.User // seeded leaf or advanced winner
	bye   bool        // leaf padding slot
	loser *users.User

	finished bool
	walkover bool
	result   models.Outcome // relative to the children[0] occupant
	score    []int
}

// SingleElimination lays the members out over a seeded binary tree sized to
// the next power of two. Byes and disqualifications advance the opposing
// side as walkovers. Draws are not supported.
type SingleElimination struct {
	entrants  []*elimEntrant
	frozen    bool
	generated bool
	root      *elimNode
	// round depth at which each eliminated player lost, for final ranking
	eliminatedAt map[string]int
}

func NewSingleElimination() *SingleElimination {
	return &SingleElimination{eliminatedAt: make(map[string]int)}
}

func (g *SingleElimination) Name() string { return "Single Elimination" }

func (g *SingleElimination) DrawsSupported() bool { return false }

func (g *SingleElimination) slot(u *users.User) int {
	for i, e := range g.entrants {
		if e.user == u {
			return i
		}
	}
	return -1
}

func (g *SingleElimination) AddUser(u *users.User) error {
	if g.frozen {
		return ErrBracketFrozen
	}
	if g.slot(u) >= 0 {
		return ErrUserAlreadyAdded
	}
	g.entrants = append(g.entrants, &elimEntrant{user: u})
	return nil
}

func (g *SingleElimination) RemoveUser(u *users.User) error {
	if g.frozen {
		return ErrBracketFrozen
	}
	i := g.slot(u)
	if i < 0 {
		return ErrUserNotAdded
	}
	g.entrants = append(g.entrants[:i], g.entrants[i+1:]...)
	return nil
}

// ReplaceUser swaps the identity before the layout exists. Once the tree is
// generated the position is frozen and the swap is rejected.
func (g *SingleElimination) ReplaceUser(old, replacement *users.User) error {
	if g.generated {
		return ErrBracketFrozen
	}
	if g.slot(replacement) >= 0 {
		return ErrUserAlreadyAdded
	}
	i := g.slot(old)
	if i < 0 {
		return ErrUserNotAdded
	}
	g.entrants[i].user = replacement
	return nil
}

func (g *SingleElimination) Users(includeDisqualified bool) []*users.User {
	out := make([]*users.User, 0, len(g.entrants))
	for _, e := range g.entrants {
		if e.disqualified && !includeDisqualified {
			continue
		}
		out = append(out, e.user)
	}
	return out
}

// GenerateBracket lays the tree out over shuffled seeds. Padding slots become
// byes and resolve immediately.
func (g *SingleElimination) GenerateBracket() {
	if g.generated || len(g.entrants) == 0 {
		return
	}

	seeds := make([]*users.User, len(g.entrants))
	for i, e := range g.entrants {
		seeds[i] = e.user
	}
	rand.Shuffle(len(seeds), func(i, j int) { seeds[i], seeds[j] = seeds[j], seeds[i] })

	size := 1
	for size < len(seeds) {
		size *= 2
	}

	level := make([]*elimNode, size)
	for i := 0; i < size; i++ {
		n := &elimNode{}
		if i < len(seeds) {
			n.user = seeds[i]
		} else {
			n.bye = true
		}
		level[i] = n
	}

	for len(level) > 1 {
		next := make([]*elimNode, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			parent := &elimNode{children: [2]*elimNode{level[i], level[i+1]}}
			level[i].parent = parent
			level[i+1].parent = parent
			next = append(next, parent)
		}
		level = next
	}
	g.root = level[0]
	setDepth(g.root, 0)
	g.resolveWalkovers(g.root)
	g.generated = true
}

func setDepth(n *elimNode, d int) {
	if n == nil {
		return
	}
	n.depth = d
	setDepth(n.children[0], d+1)
	setDepth(n.children[1], d+1)
}

func (g *SingleElimination) FreezeBracket() {
	g.frozen = true
}

// resolveWalkovers settles every node that no longer needs a played match:
// bye slots and disqualified occupants concede to the other side.
func (g *SingleElimination) resolveWalkovers(n *elimNode) {
	if n == nil || n.children[0] == nil {
		return
	}
	g.resolveWalkovers(n.children[0])
	g.resolveWalkovers(n.children[1])
	g.maybeAutoResolve(n)
}

func (g *SingleElimination) maybeAutoResolve(n *elimNode) {
	if n == nil || n.finished || n.children[0] == nil {
		return
	}
	c0, c1 := n.children[0], n.children[1]

	settled := func(c *elimNode) bool { return c.user != nil || c.bye || c.finished }
	if !settled(c0) || !settled(c1) {
		return
	}

	switch {
	case c0.user != nil && c1.user == nil:
		g.advance(n, c0.user, nil, true)
	case c1.user != nil && c0.user == nil:
		g.advance(n, c1.user, nil, true)
	case c0.user == nil && c1.user == nil:
		// Two byes met; the slot stays empty and the parent resolves the
		// same way one level up.
		n.finished = true
		n.walkover = true
		g.maybeAutoResolve(n.parent)
	case g.isDisqualified(c0.user) && !g.isDisqualified(c1.user):
		g.advance(n, c1.user, c0.user, true)
	case g.isDisqualified(c1.user) && !g.isDisqualified(c0.user):
		g.advance(n, c0.user, c1.user, true)
	case g.isDisqualified(c0.user) && g.isDisqualified(c1.user):
		g.advance(n, c0.user, c1.user, true)
	}
}

func (g *SingleElimination) isDisqualified(u *users.User) bool {
	i := g.slot(u)
	return i >= 0 && g.entrants[i].disqualified
}

func (g *SingleElimination) advance(n *elimNode, winner, loser *users.User, walkover bool) {
	n.user = winner
	n.loser = loser
	n.finished = true
	n.walkover = walkover
	if loser != nil {
		g.eliminatedAt[loser.ID] = n.depth
	}
	if walkover && winner != nil {
		if n.children[0].user == winner {
			n.result = models.OutcomeWin
		} else {
			n.result = models.OutcomeLoss
		}
	}
	g.maybeAutoResolve(n.parent)
}

func (g *SingleElimination) AvailableMatches() [][2]*users.User {
	var matches [][2]*users.User
	if !g.generated {
		return matches
	}
	g.walk(func(n *elimNode) {
		if n.finished || n.children[0] == nil {
			return
		}
		a, b := n.children[0].user, n.children[1].user
		if a == nil || b == nil {
			return
		}
		ia, ib := g.slot(a), g.slot(b)
		if ia < 0 || ib < 0 {
			return
		}
		ea, eb := g.entrants[ia], g.entrants[ib]
		if ea.disqualified || eb.disqualified || ea.busy || eb.busy {
			return
		}
		matches = append(matches, [2]*users.User{a, b})
	})
	return matches
}

func (g *SingleElimination) walk(fn func(*elimNode)) {
	var rec func(*elimNode)
	rec = func(n *elimNode) {
		if n == nil {
			return
		}
		fn(n)
		rec(n.children[0])
		rec(n.children[1])
	}
	rec(g.root)
}

func (g *SingleElimination) DisqualifyUser(u *users.User) error {
	i := g.slot(u)
	if i < 0 {
		return ErrUserNotAdded
	}
	if g.entrants[i].disqualified {
		return ErrUserAlreadyDisqualified
	}
	g.entrants[i].disqualified = true

	if g.generated {
		// Any pending match involving the player concedes immediately; a
		// player still waiting for an opponent concedes once that opponent
		// arrives (maybeAutoResolve runs after every advancement).
		g.walk(func(n *elimNode) {
			if n.finished || n.children[0] == nil {
				return
			}
			if n.children[0].user == u || n.children[1].user == u {
				g.maybeAutoResolve(n)
			}
		})
	}
	return nil
}

func (g *SingleElimination) SetUserBusy(u *users.User, busy bool) {
	if i := g.slot(u); i >= 0 {
		g.entrants[i].busy = busy
	}
}

func (g *SingleElimination) UserBusy(u *users.User) bool {
	i := g.slot(u)
	return i >= 0 && g.entrants[i].busy
}

func (g *SingleElimination) SetMatchResult(from, to *users.User, outcome models.Outcome, score []int) error {
	if !g.generated {
		return ErrBracketNotFrozen
	}
	if outcome == models.OutcomeDraw || !outcome.Valid() {
		return ErrUnsupportedOutcome
	}

	var target *elimNode
	g.walk(func(n *elimNode) {
		if target != nil || n.finished || n.children[0] == nil {
			return
		}
		a, b := n.children[0].user, n.children[1].user
		if (a == from && b == to) || (a == to && b == from) {
			target = n
		}
	})
	if target == nil {
		return ErrInvalidMatch
	}

	winner, loser := from, to
	if outcome == models.OutcomeLoss {
		winner, loser = to, from
	}
	g.advance(target, winner, loser, false)
	if target.children[0].user == from {
		target.result = outcome
		target.score = score
	} else {
		target.result = flipOutcome(outcome)
		target.score = flipScore(score)
	}
	target.walkover = false
	return nil
}

func (g *SingleElimination) Ended() bool {
	return g.generated && g.root.user != nil
}

func (g *SingleElimination) Results() [][]*users.User {
	if !g.Ended() {
		return nil
	}
	groups := [][]*users.User{{g.root.user}}

	byDepth := make(map[int][]*users.User)
	maxDepth := 0
	for id, depth := range g.eliminatedAt {
		for _, e := range g.entrants {
			if e.user.ID == id {
				byDepth[depth] = append(byDepth[depth], e.user)
			}
		}
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	for d := 0; d <= maxDepth; d++ {
		if len(byDepth[d]) > 0 {
			groups = append(groups, byDepth[d])
		}
	}
	return groups
}

func (g *SingleElimination) BracketData() *BracketData {
	if !g.generated {
		names := make([]string, 0, len(g.entrants))
		for _, e := range g.entrants {
			names = append(names, e.user.Name)
		}
		sort.Strings(names)
		return &BracketData{Type: "tree", Users: names}
	}
	return &BracketData{Type: "tree", RootNode: g.exportNode(g.root)}
}

func (g *SingleElimination) exportNode(n *elimNode) *BracketNode {
	if n == nil {
		return nil
	}
	out := &BracketNode{}
	if n.user != nil {
		out.Team = n.user.Name
		out.UserID = n.user.ID
	}
	if n.children[0] != nil {
		out.Children = []*BracketNode{
			g.exportNode(n.children[0]),
			g.exportNode(n.children[1]),
		}
		switch {
		case n.finished:
			out.State = EdgeFinished
			out.Result = n.result
			out.Score = n.score
		case n.children[0].user != nil && n.children[1].user != nil:
			out.State = EdgeAvailable
		}
	}
	return out
}
