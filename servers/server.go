// Package servers owns the catalog of backing game servers and the
// provider-polymorphic search for a free one. Assignment of a server to a
// game is mutually exclusive; release is idempotent and backed by a periodic
// sweep.
package servers

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrServerNotFound  = errors.New("no such game server")
	ErrNoFreeServer    = errors.New("no free game server available")
	ErrUnknownProvider = errors.New("unknown game server provider")
)

// GameServer is one backing server. At most one non-ended game is assigned
// to a server at a time.
type GameServer struct {
	ID        string
	CreatedAt time.Time
	Name      string
	Address   string
	Port      string
	// GameID links the game currently running on this server; empty when the
	// server is free.
	GameID string
	// Provider discriminates which plugin supplies this server's
	// capabilities (remote console, log secret, start).
	Provider string
	// RconPassword is set for statically registered servers.
	RconPassword string
}

// Catalog stores game server records.
type Catalog interface {
	Add(ctx context.Context, server *GameServer) error
	GetByID(ctx context.Context, serverID string) (*GameServer, error)
	List(ctx context.Context) ([]*GameServer, error)
	Update(ctx context.Context, serverID string, mutate func(*GameServer)) (*GameServer, error)
}

// MemoryCatalog is an in-memory Catalog.
type MemoryCatalog struct {
	mu      sync.RWMutex
	servers map[string]*GameServer
	order   []string
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{servers: make(map[string]*GameServer)}
}

// Add registers a server record.
func (c *MemoryCatalog) Add(ctx context.Context, server *GameServer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now()
	}
	if _, ok := c.servers[server.ID]; !ok {
		c.order = append(c.order, server.ID)
	}
	clone := *server
	c.servers[server.ID] = &clone
	return nil
}

func (c *MemoryCatalog) GetByID(ctx context.Context, serverID string) (*GameServer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	server, ok := c.servers[serverID]
	if !ok {
		return nil, ErrServerNotFound
	}
	clone := *server
	return &clone, nil
}

func (c *MemoryCatalog) List(ctx context.Context) ([]*GameServer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	servers := make([]*GameServer, 0, len(c.order))
	for _, id := range c.order {
		clone := *c.servers[id]
		servers = append(servers, &clone)
	}
	return servers, nil
}

func (c *MemoryCatalog) Update(ctx context.Context, serverID string, mutate func(*GameServer)) (*GameServer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	server, ok := c.servers[serverID]
	if !ok {
		return nil, ErrServerNotFound
	}
	mutate(server)
	clone := *server
	return &clone, nil
}
