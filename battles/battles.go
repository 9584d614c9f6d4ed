package battles

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/users"
)

var (
	ErrFormatRequired = errors.New("a battle format is required")
	ErrNotConnected   = errors.New("user is not connected")
	ErrRoomFinished   = errors.New("battle already finished")
	ErrNotParticipant = errors.New("user is not in this battle")
)

// Config is the validated per-player battle setup produced by Prep. It is
// opaque to the tournament engine; the engine only cares that Prep succeeded.
type Config struct {
	UserID  string    `json:"user_id"`
	Format  string    `json:"format"`
	ReadyAt time.Time `json:"ready_at"`
}

// Service validates and launches battles. Prep and Start may block, so the
// tournament engine calls them off its own lock and re-validates afterwards.
type Service interface {
	// Prep validates the player's setup for the format.
	Prep(ctx context.Context, u *users.User, format string) (*Config, error)

	// Start opens a battle room between two prepared players.
	Start(ctx context.Context, from, to *users.User, format string, rated bool) (*Room, error)

	// Get resolves a live room by ID.
	Get(id string) (*Room, bool)

	// Remove drops a finished room.
	Remove(id string)
}

// Room is a live battle. The result handler set by the owning tournament
// fires exactly once, unless the room was detached first.
type Room struct {
	ID     string      `json:"id"`
	P1     *users.User `json:"p1"`
	P2     *users.User `json:"p2"`
	Format string      `json:"format"`
	Rated  bool        `json:"rated"`

	mu       sync.Mutex
	onEnd    func(winner *users.User, score []int)
	detached bool
	finished bool
}

// SetResultHandler installs the callback fired when the battle ends.
func (r *Room) SetResultHandler(fn func(winner *users.User, score []int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEnd = fn
}

// Detach severs the room from its tournament. A detached room can still
// finish or be forfeited, but it no longer reports anywhere.
func (r *Room) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
	r.onEnd = nil
}

// Finish records the winner and fires the result handler. A nil winner is a
// draw.
func (r *Room) Finish(winner *users.User, score []int) error {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return ErrRoomFinished
	}
	if winner != nil && winner != r.P1 && winner != r.P2 {
		r.mu.Unlock()
		return ErrNotParticipant
	}
	r.finished = true
	fn := r.onEnd
	r.onEnd = nil
	r.mu.Unlock()

	if fn != nil {
		fn(winner, score)
	}
	return nil
}

// Forfeit ends the battle with the given player losing.
func (r *Room) Forfeit(loser *users.User) error {
	switch loser {
	case r.P1:
		return r.Finish(r.P2, nil)
	case r.P2:
		return r.Finish(r.P1, nil)
	default:
		return ErrNotParticipant
	}
}

// Finished reports whether a result has been recorded.
func (r *Room) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Outcome translates a winner pointer into the outcome from p's perspective.
func (r *Room) Outcome(p *users.User, winner *users.User) models.Outcome {
	switch winner {
	case nil:
		return models.OutcomeDraw
	case p:
		return models.OutcomeWin
	default:
		return models.OutcomeLoss
	}
}

// Sim is the in-process battle backend. Rooms live in memory until Remove.
type Sim struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewSim() *Sim {
	return &Sim{rooms: make(map[string]*Room)}
}

func (s *Sim) Prep(ctx context.Context, u *users.User, format string) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if format == "" {
		return nil, ErrFormatRequired
	}
	if !u.Connected {
		return nil, ErrNotConnected
	}
	return &Config{UserID: u.ID, Format: format, ReadyAt: time.Now()}, nil
}

func (s *Sim) Start(ctx context.Context, from, to *users.User, format string, rated bool) (*Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	room := &Room{
		ID:     "battle-" + uuid.NewString(),
		P1:     from,
		P2:     to,
		Format: format,
		Rated:  rated,
	}
	s.mu.Lock()
	s.rooms[room.ID] = room
	s.mu.Unlock()
	return room, nil
}

func (s *Sim) Get(id string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	return room, ok
}

func (s *Sim) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}
