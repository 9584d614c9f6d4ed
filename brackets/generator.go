package brackets

import (
	"errors"

	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/users"
)

var (
	ErrUserAlreadyAdded        = errors.New("user is already in the tournament")
	ErrUserNotAdded            = errors.New("user is not in the tournament")
	ErrBracketFrozen           = errors.New("the bracket is frozen")
	ErrBracketNotFrozen        = errors.New("the bracket has not been frozen yet")
	ErrUserAlreadyDisqualified = errors.New("user is already disqualified")
	ErrInvalidMatch            = errors.New("match is not part of the bracket")
	ErrMatchAlreadyPlayed      = errors.New("match result already recorded")
	ErrUnsupportedOutcome      = errors.New("outcome not supported by this bracket type")
)

// Generator is the pluggable bracket algorithm. The orchestrator depends only
// on this contract: membership, availability, busy bookkeeping, result
// commits and final ranking all go through it. Implementations are not safe
// for concurrent use; the owning tournament serializes access.
type Generator interface {
	Name() string

	AddUser(u *users.User) error
	RemoveUser(u *users.User) error
	ReplaceUser(old, replacement *users.User) error
	Users(includeDisqualified bool) []*users.User

	// FreezeBracket locks membership; join/leave are rejected afterwards.
	FreezeBracket()

	// AvailableMatches returns every (from, to) pair the bracket currently
	// permits. Busy or disqualified players never appear.
	AvailableMatches() [][2]*users.User

	// BracketData renders an immutable snapshot of the topology.
	BracketData() *BracketData

	DisqualifyUser(u *users.User) error
	SetUserBusy(u *users.User, busy bool)
	UserBusy(u *users.User) bool

	// SetMatchResult commits an outcome for the (from, to) pair. The outcome
	// is from the perspective of from.
	SetMatchResult(from, to *users.User, outcome models.Outcome, score []int) error

	Ended() bool

	// Results returns ranked groups of players, best first. Players inside a
	// group are tied.
	Results() [][]*users.User

	DrawsSupported() bool
}

// Pregenerator is the optional layout step some bracket types need between
// the membership freeze and play. The orchestrator feature-tests for it.
type Pregenerator interface {
	GenerateBracket()
}

// Edge states stamped onto snapshot nodes and cells.
const (
	EdgeAvailable   = "available"
	EdgeChallenging = "challenging"
	EdgeInProgress  = "inprogress"
	EdgeFinished    = "finished"
	EdgeUnavailable = "unavailable"
)

// BracketData is a renderable snapshot of the bracket. Tree-shaped for
// elimination, table-shaped for round robin. UserID fields are kept out of
// the wire format; the orchestrator uses them to stamp live challenge/match
// state onto edges before broadcasting.
type BracketData struct {
	Type string `json:"type"` // "tree" or "table"

	// Tree form.
	RootNode *BracketNode `json:"rootNode,omitempty"`
	// Flat member list used for a tree bracket that has not been laid out.
	Users []string `json:"users,omitempty"`

	// Table form.
	TableHeaders  *TableHeaders  `json:"tableHeaders,omitempty"`
	TableContents [][]*TableCell `json:"tableContents,omitempty"`
	Scores        []int          `json:"scores,omitempty"`
}

type BracketNode struct {
	Team     string         `json:"team,omitempty"`
	UserID   string         `json:"-"`
	State    string         `json:"state,omitempty"`
	Result   models.Outcome `json:"result,omitempty"`
	Score    []int          `json:"score,omitempty"`
	Room     string         `json:"room,omitempty"`
	Children []*BracketNode `json:"children,omitempty"`
}

type TableHeaders struct {
	Cols   []string `json:"cols"`
	Rows   []string `json:"rows"`
	ColIDs []string `json:"-"`
	RowIDs []string `json:"-"`
}

type TableCell struct {
	State  string         `json:"state"`
	Result models.Outcome `json:"result,omitempty"`
	Score  []int          `json:"score,omitempty"`
	Room   string         `json:"room,omitempty"`
}

// New constructs a generator by its public type name.
func New(name string) (Generator, error) {
	switch name {
	case "roundrobin":
		return NewRoundRobin(), nil
	case "elimination":
		return NewSingleElimination(), nil
	default:
		return nil, errors.New(name + " is not a valid tournament type")
	}
}
