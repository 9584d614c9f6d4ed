package tourney

import "github.com/Dosada05/arena-tournaments/brackets"

// Outbound message types. Every mutation batch is terminated by MsgUpdateEnd
// so clients can buffer partial state and apply it atomically.
const (
	MsgTournamentCreated  = "TOURNAMENT_CREATED"
	MsgPlayerJoined       = "PLAYER_JOINED"
	MsgPlayerLeft         = "PLAYER_LEFT"
	MsgPlayerReplaced     = "PLAYER_REPLACED"
	MsgTournamentFull     = "TOURNAMENT_FULL"
	MsgTournamentStarted  = "TOURNAMENT_STARTED"
	MsgBracketUpdated     = "BRACKET_UPDATED"
	MsgMatchesUpdated     = "MATCHES_UPDATED"
	MsgChallengePending   = "CHALLENGE_PENDING"
	MsgChallengeReceived  = "CHALLENGE_RECEIVED"
	MsgChallengeCleared   = "CHALLENGE_CLEARED"
	MsgBattleStarted      = "BATTLE_STARTED"
	MsgBattleEnded        = "BATTLE_ENDED"
	MsgPlayerDisqualified = "PLAYER_DISQUALIFIED"
	MsgAutoStartSet       = "AUTOSTART_SET"
	MsgAutoDQSet          = "AUTODQ_SET"
	MsgAutoDQWarning      = "AUTODQ_WARNING"
	MsgTournamentEnded    = "TOURNAMENT_ENDED"
	MsgForceEnded         = "TOURNAMENT_FORCE_ENDED"
	MsgSettingsChanged    = "SETTINGS_CHANGED"
	MsgBackendError       = "BACKEND_ERROR"
	MsgUpdateEnd          = "UPDATE_END"
)

type createdPayload struct {
	Format    string `json:"format"`
	Generator string `json:"generator"`
	PlayerCap int    `json:"player_cap"`
	Rated     bool   `json:"rated"`
}

type playerPayload struct {
	Name string `json:"name"`
}

type replacedPayload struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type startedPayload struct {
	Generator string   `json:"generator"`
	Players   []string `json:"players"`
}

type challengePayload struct {
	Opponent string `json:"opponent"`
}

type battleStartedPayload struct {
	P1   string `json:"p1"`
	P2   string `json:"p2"`
	Room string `json:"room"`
}

type battleEndedPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Result string `json:"result"`
	Score  []int  `json:"score,omitempty"`
	Room   string `json:"room"`
}

type disqualifiedPayload struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

type timerPayload struct {
	Enabled bool    `json:"enabled"`
	Seconds float64 `json:"seconds,omitempty"`
}

type warningPayload struct {
	SecondsRemaining float64 `json:"seconds_remaining"`
}

type endedPayload struct {
	Format    string                `json:"format"`
	Generator string                `json:"generator"`
	Results   [][]string            `json:"results"`
	Bracket   *brackets.BracketData `json:"bracket"`
}

type settingsPayload struct {
	Scouting bool `json:"scouting"`
	ModJoin  bool `json:"mod_join"`
}

type matchesPayload struct {
	Challenges   []string `json:"challenges"`
	ChallengeBys []string `json:"challenge_bys"`
	Challenging  string   `json:"challenging,omitempty"`
	ChallengedBy string   `json:"challenged_by,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}
