package games

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pickup-matchmaker/events"
	"pickup-matchmaker/queue"
	"pickup-matchmaker/servers"
)

const launchTimeout = time.Minute

// QueueSource is the slice of the queue the launcher needs.
type QueueSource interface {
	Slots() []queue.Slot
	Reset()
}

// MapPicker resolves the map vote.
type MapPicker interface {
	GetWinner() (string, error)
}

// ServerAllocator claims a server for a freshly launched game.
type ServerAllocator interface {
	AssignGameServer(ctx context.Context, gameID string) (*servers.GameServer, error)
	Logsecret(ctx context.Context, server *servers.GameServer) (string, error)
}

// Launcher turns a fully-ready queue into a game: builds the roster, picks
// the map, claims a server and runs the configuration pipeline.
type Launcher struct {
	queue        QueueSource
	vote         MapPicker
	store        Store
	players      PlayerRegistry
	servers      ServerAllocator
	configurator *Configurator
	bus          *events.Bus

	unsubscribe func()
}

func NewLauncher(q QueueSource, vote MapPicker, store Store, registry PlayerRegistry, allocator ServerAllocator, configurator *Configurator, bus *events.Bus) *Launcher {
	l := &Launcher{
		queue:        q,
		vote:         vote,
		store:        store,
		players:      registry,
		servers:      allocator,
		configurator: configurator,
		bus:          bus,
	}
	l.unsubscribe = bus.QueueStateChange.Subscribe(func(e events.QueueStateChange) {
		if e.State == string(queue.StateLaunching) {
			l.launchGame()
		}
	})
	return l
}

func (l *Launcher) Close() {
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
}

func (l *Launcher) launchGame() {
	ctx, cancel := context.WithTimeout(context.Background(), launchTimeout)
	defer cancel()

	roster := rosterFromQueue(l.queue.Slots())
	if len(roster) == 0 {
		return
	}

	mapName, err := l.vote.GetWinner()
	if err != nil {
		log.Error().Err(err).Msg("cannot launch the game: no map")
		return
	}

	game := &Game{
		ID:    uuid.NewString(),
		Map:   mapName,
		State: StateLaunching,
		Slots: roster,
	}
	if err := l.store.Create(ctx, game); err != nil {
		log.Error().Err(err).Msg("failed to create the game")
		return
	}
	for _, slot := range roster {
		if err := l.players.SetActiveGame(slot.PlayerID, game.ID); err != nil {
			log.Error().Err(err).Str("playerId", slot.PlayerID).Msg("failed to bind the player to the game")
		}
	}

	log.Info().Int("gameNumber", game.Number).Str("map", mapName).Int("players", len(roster)).Msg("game launched")
	l.bus.GameCreated.Publish(events.GameCreated{GameID: game.ID})
	l.queue.Reset()

	server, err := l.servers.AssignGameServer(ctx, game.ID)
	if err != nil {
		log.Error().Err(err).Int("gameNumber", game.Number).Msg("no server for the game")
		l.abortLaunch(ctx, game, "no free game server available")
		return
	}

	if secret, err := l.servers.Logsecret(ctx, server); err != nil {
		log.Warn().Err(err).Str("server", server.Name).Msg("no logsecret for the server")
	} else if _, err := l.store.Update(ctx, game.ID, func(g *Game) {
		g.LogSecret = secret
	}); err != nil {
		log.Error().Err(err).Msg("failed to store the logsecret")
	}

	if _, err := l.configurator.ConfigureServer(ctx, game.ID); err != nil {
		// the game stays in the launching state; a reconfigure retries
		log.Error().Err(err).Int("gameNumber", game.Number).Msg("failed to configure the game server")
	}
}

func (l *Launcher) abortLaunch(ctx context.Context, game *Game, reason string) {
	if _, err := l.store.Update(ctx, game.ID, func(g *Game) {
		g.State = StateInterrupted
		g.Error = reason
	}); err != nil {
		log.Error().Err(err).Msg("failed to interrupt the game")
		return
	}
	for _, slot := range game.Slots {
		if err := l.players.SetActiveGame(slot.PlayerID, ""); err != nil {
			log.Error().Err(err).Str("playerId", slot.PlayerID).Msg("failed to free the player")
		}
	}
	l.bus.GameChanges.Publish(events.GameChanges{GameID: game.ID})
}

var gameTeams = []string{"blu", "red"}

// rosterFromQueue turns occupied queue slots into game seats, alternating
// teams within each class so both teams get the same class composition.
func rosterFromQueue(slots []queue.Slot) []Slot {
	perClass := make(map[string]int)
	var roster []Slot
	for _, slot := range slots {
		if slot.PlayerID == "" {
			continue
		}
		i := perClass[slot.GameClass]
		perClass[slot.GameClass]++
		roster = append(roster, Slot{
			PlayerID:  slot.PlayerID,
			Team:      gameTeams[i%len(gameTeams)],
			GameClass: slot.GameClass,
			Status:    SlotStatusActive,
		})
	}
	return roster
}
