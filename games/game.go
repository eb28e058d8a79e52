// Package games tracks matchmade sessions from launch through end and drives
// the remote configuration of their assigned servers.
package games

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrGameNotFound     = errors.New("no such game")
	ErrNoServerAssigned = errors.New("this game has no server assigned")
)

type State string

const (
	StateLaunching   State = "launching"
	StateStarted     State = "started"
	StateEnded       State = "ended"
	StateInterrupted State = "interrupted"
)

type SlotStatus string

const (
	SlotStatusActive               SlotStatus = "active"
	SlotStatusWaitingForSubstitute SlotStatus = "waiting for substitute"
	SlotStatusReplaced             SlotStatus = "replaced"
)

// Slot is one seat in a game roster.
type Slot struct {
	PlayerID  string     `json:"playerId"`
	Team      string     `json:"team"`
	GameClass string     `json:"gameClass"`
	Status    SlotStatus `json:"status"`
}

// Game is one matchmade session.
type Game struct {
	ID         string
	Number     int
	Map        string
	State      State
	Slots      []Slot
	LaunchedAt time.Time
	// GameServer is the id of the assigned server, empty until assignment.
	GameServer string
	LogSecret  string
	// ConnectInfoVersion increases on every reconfiguration so previously
	// handed out connect strings are understood to be stale.
	ConnectInfoVersion int
	ConnectString      string
	StvConnectString   string
	Error              string
}

// InProgress reports whether the game still holds on to its resources.
func (g *Game) InProgress() bool {
	return g.State == StateLaunching || g.State == StateStarted
}

// ActiveSlots returns the roster without replaced seats.
func (g *Game) ActiveSlots() []Slot {
	var slots []Slot
	for _, slot := range g.Slots {
		if slot.Status != SlotStatusReplaced {
			slots = append(slots, slot)
		}
	}
	return slots
}

// SlotOf finds the player's seat in the roster.
func (g *Game) SlotOf(playerID string) (Slot, bool) {
	for _, slot := range g.Slots {
		if slot.PlayerID == playerID {
			return slot, true
		}
	}
	return Slot{}, false
}

// Store persists games.
type Store interface {
	GetByID(ctx context.Context, gameID string) (*Game, error)
	Create(ctx context.Context, game *Game) error
	Update(ctx context.Context, gameID string, mutate func(*Game)) (*Game, error)
}

// MemoryStore is an in-memory Store. Game numbers are sequential per process.
type MemoryStore struct {
	mu         sync.RWMutex
	games      map[string]*Game
	nextNumber int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[string]*Game), nextNumber: 1}
}

func (s *MemoryStore) GetByID(ctx context.Context, gameID string) (*Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	clone := cloneGame(game)
	return clone, nil
}

func (s *MemoryStore) Create(ctx context.Context, game *Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if game.Number == 0 {
		game.Number = s.nextNumber
		s.nextNumber++
	}
	if game.LaunchedAt.IsZero() {
		game.LaunchedAt = time.Now()
	}
	s.games[game.ID] = cloneGame(game)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, gameID string, mutate func(*Game)) (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	mutate(game)
	return cloneGame(game), nil
}

func cloneGame(game *Game) *Game {
	clone := *game
	clone.Slots = make([]Slot, len(game.Slots))
	copy(clone.Slots, game.Slots)
	return &clone
}
