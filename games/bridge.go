package games

import (
	"context"

	"pickup-matchmaker/servers"
)

// ServerStoreAdapter exposes the game store to the server pool in the shape
// it expects.
type ServerStoreAdapter struct {
	store Store
}

func NewServerStoreAdapter(store Store) *ServerStoreAdapter {
	return &ServerStoreAdapter{store: store}
}

func (a *ServerStoreAdapter) GameInfo(ctx context.Context, gameID string) (servers.GameInfo, error) {
	game, err := a.store.GetByID(ctx, gameID)
	if err != nil {
		return servers.GameInfo{}, err
	}
	return servers.GameInfo{
		ID:         game.ID,
		Number:     game.Number,
		ServerID:   game.GameServer,
		InProgress: game.InProgress(),
	}, nil
}

func (a *ServerStoreAdapter) SetGameServer(ctx context.Context, gameID, serverID string) error {
	_, err := a.store.Update(ctx, gameID, func(game *Game) {
		game.GameServer = serverID
	})
	return err
}
