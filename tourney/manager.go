package tourney

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/Dosada05/arena-tournaments/battles"
	"github.com/Dosada05/arena-tournaments/brackets"
	"github.com/Dosada05/arena-tournaments/users"
)

// ResultSink archives finished tournaments. Deployments without persistence
// run with a nil sink.
type ResultSink interface {
	RecordTournament(ctx context.Context, res *Result) error
}

// Manager owns the per-room tournaments.
type Manager struct {
	mu          sync.RWMutex
	tournaments map[string]*Tournament

	notifier Notifier
	battles  battles.Service
	registry *users.Registry
	sink     ResultSink
	logger   *slog.Logger
	opts     Options
}

func NewManager(notifier Notifier, battleSvc battles.Service, registry *users.Registry, sink ResultSink, logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BracketUpdateInterval <= 0 {
		opts = DefaultOptions()
	}
	return &Manager{
		tournaments: make(map[string]*Tournament),
		notifier:    notifier,
		battles:     battleSvc,
		registry:    registry,
		sink:        sink,
		logger:      logger,
		opts:        opts,
	}
}

// Create opens a tournament in the room. One tournament per room.
func (m *Manager) Create(roomID string, settings Settings, generatorName string) (*Tournament, error) {
	gen, err := brackets.New(generatorName)
	if err != nil {
		return nil, err
	}
	settings.Generator = gen

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tournaments[roomID]; exists {
		return nil, ErrTournamentExists
	}

	t := New(roomID, settings, Deps{
		Notifier: m.notifier,
		Battles:  m.battles,
		Registry: m.registry,
		Logger:   m.logger.With("room", roomID),
		OnEnd:    func(res *Result) { m.handleEnd(roomID, res) },
	}, m.opts)
	m.tournaments[roomID] = t
	m.logger.Info("tournament created", "room", roomID, "generator", gen.Name(), "format", settings.Format)
	return t, nil
}

// Get resolves the room's running tournament.
func (m *Manager) Get(roomID string) (*Tournament, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tournaments[roomID]
	if !ok {
		return nil, ErrNoTournament
	}
	return t, nil
}

// Delete force-ends and removes the room's tournament.
func (m *Manager) Delete(roomID string) error {
	m.mu.RLock()
	t, ok := m.tournaments[roomID]
	m.mu.RUnlock()
	if !ok {
		return ErrNoTournament
	}
	// ForceEnd triggers the OnEnd hook, which unregisters the room.
	t.ForceEnd()
	return nil
}

// Rooms lists the rooms with a running tournament.
func (m *Manager) Rooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]string, 0, len(m.tournaments))
	for roomID := range m.tournaments {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

func (m *Manager) handleEnd(roomID string, res *Result) {
	m.mu.Lock()
	delete(m.tournaments, roomID)
	m.mu.Unlock()

	if m.sink != nil {
		if err := m.sink.RecordTournament(context.Background(), res); err != nil {
			m.logger.Error("archiving tournament result failed", "room", roomID, "error", err)
		}
	}
	m.logger.Info("tournament ended", "room", roomID, "forced", res.Forced, "players", res.PlayerCount)
}
