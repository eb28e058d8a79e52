package servers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pickup-matchmaker/events"
	"pickup-matchmaker/metrics"
	"pickup-matchmaker/rcon"
)

// Provider supplies game servers of one kind. Providers with a higher
// priority are consulted first when a free server is needed; providers with
// equal priority keep their registration order.
type Provider interface {
	Name() string
	Priority() int
	FindFirstFreeGameServer(ctx context.Context) (*GameServer, error)
	OpenRcon(ctx context.Context, server *GameServer) (rcon.Console, error)
	Logsecret(ctx context.Context, server *GameServer) (string, error)
	Start(ctx context.Context, server *GameServer) error
}

// GameInfo is the slice of a game the server layer needs to decide whether
// its server is still in use.
type GameInfo struct {
	ID       string
	Number   int
	ServerID string
	// InProgress is true while the game is launching or running.
	InProgress bool
}

// GameStore is implemented by the games layer.
type GameStore interface {
	GameInfo(ctx context.Context, gameID string) (GameInfo, error)
	SetGameServer(ctx context.Context, gameID, serverID string) error
}

// Service assigns free game servers to games and releases them once the
// game is over.
type Service struct {
	catalog Catalog
	games   GameStore
	bus     *events.Bus

	// assignMu makes server assignment mutually exclusive so two games can
	// never claim the same server.
	assignMu sync.Mutex

	mu        sync.RWMutex
	providers []Provider

	unsubscribe func()
}

func NewService(catalog Catalog, games GameStore, bus *events.Bus) *Service {
	s := &Service{
		catalog: catalog,
		games:   games,
		bus:     bus,
	}
	s.unsubscribe = bus.GameChanges.Subscribe(s.onGameChanges)
	return s
}

func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Service) RegisterProvider(provider Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append(s.providers, provider)
	sort.SliceStable(s.providers, func(i, j int) bool {
		return s.providers[i].Priority() > s.providers[j].Priority()
	})
	log.Info().Str("provider", provider.Name()).Int("priority", provider.Priority()).Msg("game server provider registered")
}

func (s *Service) providerList() []Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	providers := make([]Provider, len(s.providers))
	copy(providers, s.providers)
	return providers
}

func (s *Service) providerFor(server *GameServer) (Provider, error) {
	for _, p := range s.providerList() {
		if p.Name() == server.Provider {
			return p, nil
		}
	}
	return nil, ErrUnknownProvider
}

// FindFreeGameServer asks each provider, in priority order, for a free
// server. A failing provider is skipped, not fatal.
func (s *Service) FindFreeGameServer(ctx context.Context) (*GameServer, error) {
	for _, p := range s.providerList() {
		server, err := p.FindFirstFreeGameServer(ctx)
		if err != nil {
			log.Debug().Err(err).Str("provider", p.Name()).Msg("provider has no free server")
			continue
		}
		return server, nil
	}
	return nil, ErrNoFreeServer
}

// AssignGameServer claims a free server for the given game, linking both
// sides. When the game-side write fails, the claim is rolled back.
func (s *Service) AssignGameServer(ctx context.Context, gameID string) (*GameServer, error) {
	s.assignMu.Lock()
	defer s.assignMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.AssignmentDuration.Observe(time.Since(start).Seconds())
	}()

	info, err := s.games.GameInfo(ctx, gameID)
	if err != nil {
		metrics.ServerAssignments.WithLabelValues("failure").Inc()
		return nil, err
	}

	server, err := s.FindFreeGameServer(ctx)
	if err != nil {
		metrics.ServerAssignments.WithLabelValues("failure").Inc()
		return nil, err
	}

	updated, err := s.updateServer(ctx, server.ID, func(gs *GameServer) {
		gs.GameID = gameID
	})
	if err != nil {
		metrics.ServerAssignments.WithLabelValues("failure").Inc()
		return nil, err
	}

	if err := s.games.SetGameServer(ctx, gameID, server.ID); err != nil {
		if _, rbErr := s.updateServer(ctx, server.ID, func(gs *GameServer) {
			gs.GameID = ""
		}); rbErr != nil {
			log.Error().Err(rbErr).Str("server", server.ID).Msg("failed to roll back server claim")
		}
		metrics.ServerAssignments.WithLabelValues("failure").Inc()
		return nil, err
	}

	metrics.ServerAssignments.WithLabelValues("success").Inc()
	log.Info().Str("server", updated.Name).Int("gameNumber", info.Number).Msg("game server assigned")
	return updated, nil
}

// MaybeReleaseGameServer frees the server assigned to the given game, but
// only if the server still points back at that exact game.
func (s *Service) MaybeReleaseGameServer(ctx context.Context, gameID string) error {
	info, err := s.games.GameInfo(ctx, gameID)
	if err != nil {
		return err
	}
	if info.ServerID == "" {
		return nil
	}

	server, err := s.catalog.GetByID(ctx, info.ServerID)
	if err != nil {
		if errors.Is(err, ErrServerNotFound) {
			return nil
		}
		return err
	}
	if server.GameID != gameID {
		return nil
	}
	return s.release(ctx, server)
}

// CheckForServersToRelease frees every server whose game is no longer in
// progress. A game lookup failure skips that one server only.
func (s *Service) CheckForServersToRelease(ctx context.Context) {
	servers, err := s.catalog.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("release sweep: cannot list servers")
		return
	}
	for _, server := range servers {
		if server.GameID == "" {
			continue
		}
		info, err := s.games.GameInfo(ctx, server.GameID)
		if err != nil {
			log.Error().Err(err).Str("server", server.Name).Str("gameId", server.GameID).Msg("release sweep: game lookup failed")
			continue
		}
		if info.InProgress {
			continue
		}
		if err := s.release(ctx, server); err != nil {
			log.Error().Err(err).Str("server", server.Name).Msg("release sweep: release failed")
		}
	}
}

// StartSweep runs CheckForServersToRelease on the given interval until the
// context is cancelled.
func (s *Service) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CheckForServersToRelease(ctx)
			}
		}
	}()
}

// GetServer resolves a server record from the catalog.
func (s *Service) GetServer(ctx context.Context, serverID string) (*GameServer, error) {
	return s.catalog.GetByID(ctx, serverID)
}

// OpenRcon opens a remote console session on the server via its provider.
func (s *Service) OpenRcon(ctx context.Context, server *GameServer) (rcon.Console, error) {
	p, err := s.providerFor(server)
	if err != nil {
		return nil, err
	}
	return p.OpenRcon(ctx, server)
}

// Logsecret returns the sv_logsecret value configured for the server.
func (s *Service) Logsecret(ctx context.Context, server *GameServer) (string, error) {
	p, err := s.providerFor(server)
	if err != nil {
		return "", err
	}
	return p.Logsecret(ctx, server)
}

// StartServer makes sure the backing server is up and ready to take RCON
// commands. Static servers are always up; dynamic providers may boot one.
func (s *Service) StartServer(ctx context.Context, server *GameServer) error {
	p, err := s.providerFor(server)
	if err != nil {
		return err
	}
	return p.Start(ctx, server)
}

func (s *Service) release(ctx context.Context, server *GameServer) error {
	_, err := s.updateServer(ctx, server.ID, func(gs *GameServer) {
		gs.GameID = ""
	})
	if err != nil {
		return err
	}
	log.Info().Str("server", server.Name).Msg("game server released")
	return nil
}

func (s *Service) updateServer(ctx context.Context, serverID string, mutate func(*GameServer)) (*GameServer, error) {
	updated, err := s.catalog.Update(ctx, serverID, mutate)
	if err != nil {
		return nil, err
	}
	s.bus.GameServerUpdated.Publish(events.GameServerUpdated{ServerID: serverID})
	return updated, nil
}

func (s *Service) onGameChanges(e events.GameChanges) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := s.games.GameInfo(ctx, e.GameID)
	if err != nil {
		log.Error().Err(err).Str("gameId", e.GameID).Msg("game lookup failed")
		return
	}
	if info.InProgress {
		return
	}
	if err := s.MaybeReleaseGameServer(ctx, e.GameID); err != nil {
		log.Error().Err(err).Str("gameId", e.GameID).Msg("failed to release game server")
	}
}
