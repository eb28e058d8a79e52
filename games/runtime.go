package games

import (
	"context"

	"github.com/rs/zerolog/log"

	"pickup-matchmaker/events"
	"pickup-matchmaker/players"
	"pickup-matchmaker/rcon"
)

// PlayerRegistry resolves players and maintains their active-game link.
type PlayerRegistry interface {
	players.Directory
	SetActiveGame(playerID, gameID string) error
}

// Runtime is the admin surface of a live game: reconfigure the server, force
// the game to end, talk to the server chat, replace a player.
type Runtime struct {
	store        Store
	players      PlayerRegistry
	control      ServerControl
	configurator *Configurator
	bus          *events.Bus
}

func NewRuntime(store Store, registry PlayerRegistry, control ServerControl, configurator *Configurator, bus *events.Bus) *Runtime {
	return &Runtime{
		store:        store,
		players:      registry,
		control:      control,
		configurator: configurator,
		bus:          bus,
	}
}

// Reconfigure re-runs the configuration pipeline against the game's server.
// The connect info version is bumped up front so stale connect strings are
// invalidated even if the remote console is unreachable; a pipeline failure
// is logged, not fatal.
func (r *Runtime) Reconfigure(ctx context.Context, gameID string) (*Game, error) {
	game, err := r.store.GetByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.GameServer == "" {
		return nil, ErrNoServerAssigned
	}

	log.Info().Int("gameNumber", game.Number).Msg("reconfiguring game server")

	if _, err := r.store.Update(ctx, gameID, func(g *Game) {
		g.ConnectInfoVersion++
	}); err != nil {
		return nil, err
	}
	r.bus.GameChanges.Publish(events.GameChanges{GameID: gameID})

	if _, err := r.configurator.ConfigureServer(ctx, gameID); err != nil {
		log.Warn().Err(err).Int("gameNumber", game.Number).Msg("reconfiguration failed")
	}
	return r.store.GetByID(ctx, gameID)
}

// ForceEnd interrupts the game on an admin's request, frees the players and
// cleans up the server. Server release rides the game-changes event.
func (r *Runtime) ForceEnd(ctx context.Context, gameID, adminID string) (*Game, error) {
	updated, err := r.store.Update(ctx, gameID, func(g *Game) {
		g.State = StateInterrupted
		g.Error = "ended by admin"
		for i := range g.Slots {
			if g.Slots[i].Status == SlotStatusWaitingForSubstitute {
				g.Slots[i].Status = SlotStatusActive
			}
		}
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int("gameNumber", updated.Number).Str("adminId", adminID).Msg("game force-ended")

	for _, slot := range updated.Slots {
		if err := r.players.SetActiveGame(slot.PlayerID, ""); err != nil {
			log.Error().Err(err).Str("playerId", slot.PlayerID).Msg("failed to free the player")
		}
	}

	if updated.GameServer != "" {
		if err := r.configurator.CleanupServer(ctx, updated.GameServer); err != nil {
			log.Warn().Err(err).Str("serverId", updated.GameServer).Msg("server cleanup failed")
		}
	}

	r.bus.GameChanges.Publish(events.GameChanges{GameID: gameID, AdminID: adminID})
	return updated, nil
}

// ReplacePlayer registers the replacement on the game server and swaps the
// roster seats. A console failure is logged; the roster swap stands either
// way, the next reconfiguration will retry the registration.
func (r *Runtime) ReplacePlayer(ctx context.Context, gameID, replaceeID string, replacement Slot) error {
	game, err := r.store.GetByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game.GameServer == "" {
		return ErrNoServerAssigned
	}

	replacement.Status = SlotStatusActive
	if _, err := r.store.Update(ctx, gameID, func(g *Game) {
		for i := range g.Slots {
			if g.Slots[i].PlayerID == replaceeID && g.Slots[i].Status != SlotStatusReplaced {
				g.Slots[i].Status = SlotStatusReplaced
			}
		}
		g.Slots = append(g.Slots, replacement)
	}); err != nil {
		return err
	}
	if err := r.players.SetActiveGame(replaceeID, ""); err != nil {
		log.Error().Err(err).Str("playerId", replaceeID).Msg("failed to free the replaced player")
	}
	if err := r.players.SetActiveGame(replacement.PlayerID, gameID); err != nil {
		log.Error().Err(err).Str("playerId", replacement.PlayerID).Msg("failed to bind the replacement")
	}

	player, err := r.players.GetByID(ctx, replacement.PlayerID)
	if err != nil {
		return err
	}

	server, err := r.control.GetServer(ctx, game.GameServer)
	if err != nil {
		return err
	}
	console, err := r.control.OpenRcon(ctx, server)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := console.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close the console session")
		}
	}()

	if _, err := console.Send(rcon.AddGamePlayer(player.ID, deburr(player.Name), replacement.Team, replacement.GameClass)); err != nil {
		log.Error().Err(err).Str("playerId", player.ID).Msg("failed to register the replacement on the server")
	}

	r.bus.GameChanges.Publish(events.GameChanges{GameID: gameID})
	return nil
}

// SayChat prints a message in the server chat.
func (r *Runtime) SayChat(ctx context.Context, serverID, message string) error {
	server, err := r.control.GetServer(ctx, serverID)
	if err != nil {
		return err
	}
	console, err := r.control.OpenRcon(ctx, server)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := console.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close the console session")
		}
	}()

	if _, err := console.Send(rcon.Say(message)); err != nil {
		log.Error().Err(err).Str("serverId", serverID).Msg("failed to say in the server chat")
	}
	return nil
}
