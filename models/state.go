package models

// TournamentState is the lifecycle state of a tournament. Transitions only
// ever move forward: Forming -> Started -> Ended.
type TournamentState string

const (
	StateForming TournamentState = "forming"
	StateStarted TournamentState = "started"
	StateEnded   TournamentState = "ended"
)

// Outcome of a finished match, from the perspective of the first player of
// the pair.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Valid reports whether o is one of the three known outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeWin || o == OutcomeLoss || o == OutcomeDraw
}
