package brackets

import (
	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/users"
)

const (
	rrWinPoints  = 2
	rrDrawPoints = 1
)

type rrResult struct {
	outcome models.Outcome // from the row (lower slot) perspective
	score   []int
	forfeit bool
}

type rrEntrant struct {
	user         *users.User
	disqualified bool
	busy         bool
	points       int
}

// RoundRobin pairs every member against every other member once. Draws are
// supported and score half a win.
type RoundRobin struct {
	entrants []*rrEntrant
	frozen   bool
	results  map[[2]int]*rrResult // keyed by (row, col) slots with row < col
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{results: make(map[[2]int]*rrResult)}
}

func (g *RoundRobin) Name() string { return "Round Robin" }

func (g *RoundRobin) DrawsSupported() bool { return true }

func (g *RoundRobin) slot(u *users.User) int {
	for i, e := range g.entrants {
		if e.user == u {
			return i
		}
	}
	return -1
}

func (g *RoundRobin) AddUser(u *users.User) error {
	if g.frozen {
		return ErrBracketFrozen
	}
	if g.slot(u) >= 0 {
		return ErrUserAlreadyAdded
	}
	g.entrants = append(g.entrants, &rrEntrant{user: u})
	return nil
}

func (g *RoundRobin) RemoveUser(u *users.User) error {
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

// ReplaceUser swaps the identity in place. The slot, points and played games
// are preserved, so it works on a frozen bracket too.
func (g *RoundRobin) ReplaceUser(old, replacement *users.User) error {
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

func (g *RoundRobin) Users(includeDisqualified bool) []*users.User {
	out := make([]*users.User, 0, len(g.entrants))
	for _, e := range g.entrants {
		if e.disqualified && !includeDisqualified {
			continue
		}
		out = append(out, e.user)
	}
	return out
}

func (g *RoundRobin) FreezeBracket() { g.frozen = true }

func (g *RoundRobin) AvailableMatches() [][2]*users.User {
	var matches [][2]*users.User
	if !g.frozen {
		return matches
	}
	for i := range g.entrants {
		for j := i + 1; j < len(g.entrants); j++ {
			a, b := g.entrants[i], g.entrants[j]
			if a.disqualified || b.disqualified || a.busy || b.busy {
				continue
			}
			if _, played := g.results[[2]int{i, j}]; played {
				continue
			}
			matches = append(matches, [2]*users.User{a.user, b.user})
		}
	}
	return matches
}

func (g *RoundRobin) DisqualifyUser(u *users.User) error {
	i := g.slot(u)
	if i < 0 {
		return ErrUserNotAdded
	}
	if g.entrants[i].disqualified {
		return ErrUserAlreadyDisqualified
	}
	g.entrants[i].disqualified = true

	// Unplayed games are forfeited to the surviving opponent.
	for j, other := range g.entrants {
		if j == i || other.disqualified {
			continue
		}
		key := pairKey(i, j)
		if _, played := g.results[key]; played {
			continue
		}
		// Stored from the row perspective: the disqualified side loses.
		outcome := models.OutcomeLoss
		if key[0] != i {
			outcome = models.OutcomeWin
		}
		g.results[key] = &rrResult{outcome: outcome, forfeit: true}
		other.points += rrWinPoints
	}
	return nil
}

func (g *RoundRobin) SetUserBusy(u *users.User, busy bool) {
	if i := g.slot(u); i >= 0 {
		g.entrants[i].busy = busy
	}
}

func (g *RoundRobin) UserBusy(u *users.User) bool {
	i := g.slot(u)
	return i >= 0 && g.entrants[i].busy
}

func (g *RoundRobin) SetMatchResult(from, to *users.User, outcome models.Outcome, score []int) error {
	if !g.frozen {
		return ErrBracketNotFrozen
	}
	if !outcome.Valid() {
		return ErrUnsupportedOutcome
	}
	i, j := g.slot(from), g.slot(to)
	if i < 0 || j < 0 || i == j {
		return ErrInvalidMatch
	}
	key := pairKey(i, j)
	if _, played := g.results[key]; played {
		return ErrMatchAlreadyPlayed
	}

	rowOutcome, rowScore := outcome, score
	if key[0] != i {
		rowOutcome, rowScore = flipOutcome(outcome), flipScore(score)
	}
	g.results[key] = &rrResult{outcome: rowOutcome, score: rowScore}

	switch outcome {
	case models.OutcomeWin:
		g.entrants[i].points += rrWinPoints
	case models.OutcomeLoss:
		g.entrants[j].points += rrWinPoints
	case models.OutcomeDraw:
		g.entrants[i].points += rrDrawPoints
		g.entrants[j].points += rrDrawPoints
	}
	return nil
}

func (g *RoundRobin) Ended() bool {
	if !g.frozen {
		return false
	}
	for i := range g.entrants {
		for j := i + 1; j < len(g.entrants); j++ {
			if g.entrants[i].disqualified && g.entrants[j].disqualified {
				continue
			}
			if _, played := g.results[[2]int{i, j}]; !played {
				return false
			}
		}
	}
	return true
}

func (g *RoundRobin) Results() [][]*users.User {
	byPoints := make(map[int][]*users.User)
	var order []int
	for _, e := range g.entrants {
		if _, seen := byPoints[e.points]; !seen {
			order = append(order, e.points)
		}
		byPoints[e.points] = append(byPoints[e.points], e.user)
	}
	// Highest score first; stable within a group.
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if order[j] > order[i] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	groups := make([][]*users.User, 0, len(order))
	for _, pts := range order {
		groups = append(groups, byPoints[pts])
	}
	return groups
}

func (g *RoundRobin) BracketData() *BracketData {
	n := len(g.entrants)
	headers := &TableHeaders{
		Cols:   make([]string, n),
		Rows:   make([]string, n),
		ColIDs: make([]string, n),
		RowIDs: make([]string, n),
	}
	contents := make([][]*TableCell, n)
	scores := make([]int, n)

	for i, e := range g.entrants {
		headers.Rows[i] = e.user.Name
		headers.Cols[i] = e.user.Name
		headers.RowIDs[i] = e.user.ID
		headers.ColIDs[i] = e.user.ID
		scores[i] = e.points
		contents[i] = make([]*TableCell, n)
	}

	for i := range g.entrants {
		for j := range g.entrants {
			if i == j {
				continue
			}
			key := pairKey(i, j)
			if res, played := g.results[key]; played {
				cell := &TableCell{State: EdgeFinished, Result: res.outcome, Score: res.score}
				if key[0] != i {
					cell.Result = flipOutcome(res.outcome)
					cell.Score = flipScore(res.score)
				}
				contents[i][j] = cell
				continue
			}
			state := EdgeAvailable
			if g.entrants[i].disqualified || g.entrants[j].disqualified {
				state = EdgeUnavailable
			}
			contents[i][j] = &TableCell{State: state}
		}
	}

	return &BracketData{
		Type:          "table",
		TableHeaders:  headers,
		TableContents: contents,
		Scores:        scores,
	}
}

func pairKey(i, j int) [2]int {
	if i < j {
		return [2]int{i, j}
	}
	return [2]int{j, i}
}

func flipOutcome(o models.Outcome) models.Outcome {
	switch o {
	case models.OutcomeWin:
		return models.OutcomeLoss
	case models.OutcomeLoss:
		return models.OutcomeWin
	default:
		return o
	}
}

func flipScore(score []int) []int {
	if len(score) != 2 {
		return score
	}
	return []int{score[1], score[0]}
}
