package servers

import (
	"context"
	"math/rand"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pickup-matchmaker/config"
	"pickup-matchmaker/rcon"
)

const StaticProviderName = "static"

// StaticProvider serves game servers registered up front in the
// configuration. They are assumed to be always running.
type StaticProvider struct {
	catalog Catalog
	dial    func(address, port, password string) (rcon.Console, error)

	mu         sync.Mutex
	logsecrets map[string]string
}

func NewStaticProvider(ctx context.Context, catalog Catalog, seeds []config.StaticServerConfig) (*StaticProvider, error) {
	p := &StaticProvider{
		catalog:    catalog,
		logsecrets: make(map[string]string),
		dial: func(address, port, password string) (rcon.Console, error) {
			return rcon.Dial(address, port, password)
		},
	}
	for _, seed := range seeds {
		name := seed.Name
		if name == "" {
			name = net.JoinHostPort(seed.Address, seed.Port)
		}
		server := &GameServer{
			ID:           uuid.NewString(),
			Name:         name,
			Address:      seed.Address,
			Port:         seed.Port,
			Provider:     StaticProviderName,
			RconPassword: seed.RconPassword,
		}
		if err := catalog.Add(ctx, server); err != nil {
			return nil, err
		}
		log.Info().Str("server", server.Name).Msg("static game server registered")
	}
	return p, nil
}

func (p *StaticProvider) Name() string { return StaticProviderName }

func (p *StaticProvider) Priority() int { return 0 }

func (p *StaticProvider) FindFirstFreeGameServer(ctx context.Context) (*GameServer, error) {
	servers, err := p.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, server := range servers {
		if server.Provider == StaticProviderName && server.GameID == "" {
			return server, nil
		}
	}
	return nil, ErrNoFreeServer
}

func (p *StaticProvider) OpenRcon(ctx context.Context, server *GameServer) (rcon.Console, error) {
	return p.dial(server.Address, server.Port, server.RconPassword)
}

// Logsecret hands out a per-server secret, generated once and reused so the
// log relay can keep attributing lines after a reconfigure.
func (p *StaticProvider) Logsecret(ctx context.Context, server *GameServer) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	secret, ok := p.logsecrets[server.ID]
	if !ok {
		secret = strconv.FormatInt(rand.Int63n(999999999), 10)
		p.logsecrets[server.ID] = secret
	}
	return secret, nil
}

// Start is a no-op; static servers are expected to be running already.
func (p *StaticProvider) Start(ctx context.Context, server *GameServer) error {
	return nil
}
