package queue

import (
	"sync"

	"github.com/rs/zerolog/log"

	"pickup-matchmaker/events"
)

// winnerCooldown is the number of rotations a map sits out after being
// picked.
const winnerCooldown = 2

// MapPoolEntry is one candidate map. A positive cooldown excludes the map
// from voting until other maps have won enough rounds.
type MapPoolEntry struct {
	Name       string `json:"name"`
	ExecConfig string `json:"execConfig,omitempty"`
	Cooldown   int    `json:"cooldown"`
}

var defaultMapPool = []MapPoolEntry{
	{Name: "cp_badlands", ExecConfig: "etf2l_6v6_5cp"},
	{Name: "cp_process_final", ExecConfig: "etf2l_6v6_5cp"},
	{Name: "cp_snakewater_final1", ExecConfig: "etf2l_6v6_5cp"},
	{Name: "cp_gullywash_final1", ExecConfig: "etf2l_6v6_5cp"},
	{Name: "koth_product_final", ExecConfig: "etf2l_6v6_koth"},
}

// MapPool holds the candidate maps and their cooldown counters.
type MapPool struct {
	bus *events.Bus

	mu   sync.Mutex
	maps []MapPoolEntry
}

// NewMapPool creates a pool from the given entries, falling back to the
// default pool when none are provided.
func NewMapPool(bus *events.Bus, entries []MapPoolEntry) *MapPool {
	p := &MapPool{bus: bus}
	if len(entries) == 0 {
		entries = make([]MapPoolEntry, len(defaultMapPool))
		copy(entries, defaultMapPool)
	}
	p.mu.Lock()
	p.maps = entries
	p.publishLocked()
	p.mu.Unlock()
	return p
}

// GetMaps returns a copy of all pool entries, cooldown included.
func (p *MapPool) GetMaps() []MapPoolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	maps := make([]MapPoolEntry, len(p.maps))
	copy(maps, p.maps)
	return maps
}

// FindMap looks up a pool entry by name.
func (p *MapPool) FindMap(name string) (MapPoolEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range p.maps {
		if entry.Name == name {
			return entry, true
		}
	}
	return MapPoolEntry{}, false
}

// AddMap adds a map to the pool.
func (p *MapPool) AddMap(entry MapPoolEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maps = append(p.maps, entry)
	p.publishLocked()
}

// RemoveMap removes a map from the pool by name.
func (p *MapPool) RemoveMap(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, entry := range p.maps {
		if entry.Name == name {
			p.maps = append(p.maps[:i], p.maps[i+1:]...)
			break
		}
	}
	p.publishLocked()
}

// SetMaps replaces the whole pool.
func (p *MapPool) SetMaps(entries []MapPoolEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maps = make([]MapPoolEntry, len(entries))
	copy(p.maps, entries)
	p.publishLocked()
}

// markPlayed applies the cooldown bookkeeping after a vote is resolved: the
// winner goes on a fixed cooldown, every other map's cooldown decreases by
// one, never below zero.
func (p *MapPool) markPlayed(winner string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.maps {
		if p.maps[i].Name == winner {
			p.maps[i].Cooldown = winnerCooldown
		} else if p.maps[i].Cooldown > 0 {
			p.maps[i].Cooldown--
		}
	}
}

func (p *MapPool) publishLocked() {
	names := make([]string, len(p.maps))
	for i, entry := range p.maps {
		names[i] = entry.Name
	}
	log.Debug().Strs("maps", names).Msg("map pool change")
	p.bus.MapPoolChange.Publish(events.MapPoolChange{Maps: names})
}
