package tourney

import "errors"

// Caller-correctable errors. They are reported back to the caller and leave
// the tournament untouched.
var (
	ErrUserNotNamed        = errors.New("user must choose a name first")
	ErrTournamentFull      = errors.New("the tournament is already at its player cap")
	ErrAltUserAlreadyAdded = errors.New("another account from the same connection is already in the tournament")
	ErrAlreadyStarted      = errors.New("the tournament has already started")
	ErrNotStarted          = errors.New("the tournament has not started yet")
	ErrAlreadyEnded        = errors.New("the tournament has already ended")
	ErrNotEnoughUsers      = errors.New("not enough users to start the tournament")
	ErrAlreadyDisqualified = errors.New("user is already disqualified")
	ErrNoChallenge         = errors.New("no pending challenge involves this user")
	ErrNotChallenger       = errors.New("only the challenging side may cancel a challenge")
	ErrNotChallenged       = errors.New("only the challenged side may accept a challenge")

	ErrInvalidAutoStartTimeout      = errors.New("auto start timeout is below the minimum")
	ErrInvalidAutoDisqualifyTimeout = errors.New("auto disqualify timeout is below the warning window")
	ErrAutoDisqualifyDisabled       = errors.New("auto disqualification is not enabled")
)

// Consistency violations. They indicate a bug in the engine or the bracket
// implementation, are reported to operators and reject the operation.
var (
	ErrBackendMismatch = errors.New("bracket and handshake state disagree")
	ErrStaleResync     = errors.New("resync requested while caches are dirty with no refresh pending")
)

// Manager errors.
var (
	ErrTournamentExists = errors.New("a tournament is already running in this room")
	ErrNoTournament     = errors.New("no tournament is running in this room")
)
