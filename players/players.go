// Package players exposes the player directory and the ban registry. The
// matchmaking core only reads eligibility data through the Directory and
// BanRegistry interfaces; the in-memory Store backs them for a single-process
// deployment and for tests.
package players

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrPlayerNotFound = errors.New("no such player")

// Player is a queue participant as seen by the matchmaking core.
type Player struct {
	ID               string
	Name             string
	HasAcceptedRules bool
	// ActiveGame is the id of the game the player currently takes part in,
	// empty when the player is free.
	ActiveGame string
}

// Ban is an active or expired exclusion of a player from the queue.
type Ban struct {
	PlayerID string
	Reason   string
	Start    time.Time
	End      time.Time
	AdminID  string
	Revoked  bool
}

// Expired reports whether the ban no longer applies.
func (b Ban) Expired(now time.Time) bool {
	return b.Revoked || !b.End.After(now)
}

// Directory resolves player profiles by id.
type Directory interface {
	GetByID(ctx context.Context, playerID string) (Player, error)
}

// BanRegistry lists a player's active, unexpired bans.
type BanRegistry interface {
	GetActivePlayerBans(ctx context.Context, playerID string) ([]Ban, error)
}

// Store is an in-memory Directory and BanRegistry.
type Store struct {
	mu      sync.RWMutex
	players map[string]Player
	bans    map[string][]Ban
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		players: make(map[string]Player),
		bans:    make(map[string][]Ban),
		now:     time.Now,
	}
}

func (s *Store) GetByID(ctx context.Context, playerID string) (Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[playerID]
	if !ok {
		return Player{}, ErrPlayerNotFound
	}
	return player, nil
}

func (s *Store) GetActivePlayerBans(ctx context.Context, playerID string) ([]Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var active []Ban
	for _, ban := range s.bans[playerID] {
		if !ban.Expired(now) {
			active = append(active, ban)
		}
	}
	return active, nil
}

// Upsert stores or replaces a player profile.
func (s *Store) Upsert(player Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[player.ID] = player
}

// AddBan records a ban. Publishing the ban-added event is the caller's
// responsibility.
func (s *Store) AddBan(ban Ban) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans[ban.PlayerID] = append(s.bans[ban.PlayerID], ban)
}

// SetActiveGame links or clears (gameID == "") the player's current game.
func (s *Store) SetActiveGame(playerID, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	player.ActiveGame = gameID
	s.players[playerID] = player
	return nil
}
