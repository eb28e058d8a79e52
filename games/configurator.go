package games

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pickup-matchmaker/config"
	"pickup-matchmaker/events"
	"pickup-matchmaker/players"
	"pickup-matchmaker/queue"
	"pickup-matchmaker/rcon"
	"pickup-matchmaker/servers"
)

const defaultTvPort = "27020"

// GameConfigs supplies the compiled config lines applied to every game and
// the optional whitelist id.
type GameConfigs interface {
	CompileConfig(ctx context.Context) ([]string, error)
	WhitelistID(ctx context.Context) (string, error)
}

// StaticGameConfigs serves fixed config lines and whitelist id.
type StaticGameConfigs struct {
	Lines     []string
	Whitelist string
}

func (c *StaticGameConfigs) CompileConfig(ctx context.Context) ([]string, error) {
	return c.Lines, nil
}

func (c *StaticGameConfigs) WhitelistID(ctx context.Context) (string, error) {
	return c.Whitelist, nil
}

// MapSource resolves the per-map exec config.
type MapSource interface {
	FindMap(name string) (queue.MapPoolEntry, bool)
}

// ServerControl is the slice of the server pool the pipeline needs.
type ServerControl interface {
	GetServer(ctx context.Context, serverID string) (*servers.GameServer, error)
	StartServer(ctx context.Context, server *servers.GameServer) error
	OpenRcon(ctx context.Context, server *servers.GameServer) (rcon.Console, error)
}

// ConnectInfo is handed to players after a (re)configuration.
type ConnectInfo struct {
	GameID           string
	Version          int
	ConnectString    string
	StvConnectString string
}

// Configurator drives the ordered remote command sequence that prepares an
// assigned server for a game. The console session is scoped to a single
// invocation and closed on every exit path.
type Configurator struct {
	cfg     *config.Config
	store   Store
	players players.Directory
	control ServerControl
	maps    MapSource
	configs GameConfigs
	bus     *events.Bus
}

func NewConfigurator(cfg *config.Config, store Store, directory players.Directory, control ServerControl, maps MapSource, configs GameConfigs, bus *events.Bus) *Configurator {
	return &Configurator{
		cfg:     cfg,
		store:   store,
		players: directory,
		control: control,
		maps:    maps,
		configs: configs,
		bus:     bus,
	}
}

// ConfigureServer prepares the game's assigned server: log relay, map, config
// lines, password, roster, whitelist, title, STV. On success the game's
// connect info version is bumped and fresh connect strings are stored.
func (c *Configurator) ConfigureServer(ctx context.Context, gameID string) (*ConnectInfo, error) {
	game, err := c.store.GetByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.GameServer == "" {
		return nil, ErrNoServerAssigned
	}

	server, err := c.control.GetServer(ctx, game.GameServer)
	if err != nil {
		return nil, err
	}

	var execConfig string
	if entry, ok := c.maps.FindMap(game.Map); ok {
		execConfig = entry.ExecConfig
	}

	lines, err := c.configs.CompileConfig(ctx)
	if err != nil {
		return nil, err
	}
	whitelistID, err := c.configs.WhitelistID(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.control.StartServer(ctx, server); err != nil {
		return nil, err
	}

	log.Info().Str("server", server.Name).Int("gameNumber", game.Number).Msg("configuring game server")

	console, err := c.control.OpenRcon(ctx, server)
	if err != nil {
		return nil, err
	}

	password := uuid.NewString()
	tvPort, tvPassword, err := c.runConfigureSequence(ctx, console, game, lines, execConfig, whitelistID, password)
	if err != nil {
		return nil, err
	}
	if tvPort == "" {
		tvPort = defaultTvPort
	}

	connect := connectString(server.Address, server.Port, password)
	stvConnect := connectString(server.Address, tvPort, tvPassword)

	updated, err := c.store.Update(ctx, gameID, func(g *Game) {
		g.ConnectString = connect
		g.StvConnectString = stvConnect
		g.ConnectInfoVersion++
	})
	if err != nil {
		return nil, err
	}
	c.bus.GameChanges.Publish(events.GameChanges{GameID: gameID})

	return &ConnectInfo{
		GameID:           gameID,
		Version:          updated.ConnectInfoVersion,
		ConnectString:    connect,
		StvConnectString: stvConnect,
	}, nil
}

// runConfigureSequence sends the ordered command list over the console. The
// console is closed exactly once, success or failure; the first failing
// command aborts the rest of the sequence.
func (c *Configurator) runConfigureSequence(ctx context.Context, console rcon.Console, game *Game, lines []string, execConfig, whitelistID, password string) (tvPort, tvPassword string, err error) {
	defer func() {
		if closeErr := console.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close the console session")
		}
	}()

	send := func(command string) error {
		if _, sendErr := console.Send(command); sendErr != nil {
			return fmt.Errorf("%s: %w", firstWord(command), sendErr)
		}
		return nil
	}

	commands := []string{
		rcon.LogAddressAdd(c.cfg.LogRelay()),
		rcon.KickAll(),
		rcon.ChangeLevel(game.Map),
	}
	commands = append(commands, lines...)
	if execConfig != "" {
		commands = append(commands, rcon.ExecConfig(execConfig))
	}
	commands = append(commands, rcon.SetPassword(password))
	for _, command := range commands {
		if err = send(command); err != nil {
			return
		}
	}

	for _, slot := range game.ActiveSlots() {
		player, lookupErr := c.players.GetByID(ctx, slot.PlayerID)
		if lookupErr != nil {
			err = lookupErr
			return
		}
		if err = send(rcon.AddGamePlayer(player.ID, deburr(player.Name), slot.Team, slot.GameClass)); err != nil {
			return
		}
	}

	if err = send(rcon.EnablePlayerWhitelist()); err != nil {
		return
	}
	if whitelistID != "" {
		if err = send(rcon.TftrueWhitelistID(whitelistID)); err != nil {
			return
		}
	}
	if err = send(rcon.LogsTfTitle(fmt.Sprintf("%s #%d", c.cfg.WebsiteName, game.Number))); err != nil {
		return
	}

	response, sendErr := console.Send(rcon.TvPort())
	if sendErr != nil {
		err = fmt.Errorf("tv_port: %w", sendErr)
		return
	}
	tvPort = extractCvarValue(response, "tv_port")

	response, sendErr = console.Send(rcon.TvPassword())
	if sendErr != nil {
		err = fmt.Errorf("tv_password: %w", sendErr)
		return
	}
	tvPassword = extractCvarValue(response, "tv_password")
	return
}

// CleanupServer deregisters the log listener and clears the roster after a
// game is over. Commands run in order and stop at the first failure; the
// console is closed either way.
func (c *Configurator) CleanupServer(ctx context.Context, serverID string) error {
	server, err := c.control.GetServer(ctx, serverID)
	if err != nil {
		return err
	}

	log.Info().Str("server", server.Name).Msg("cleaning up game server")

	console, err := c.control.OpenRcon(ctx, server)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := console.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close the console session")
		}
	}()

	for _, command := range []string{
		rcon.LogAddressDel(c.cfg.LogRelay()),
		rcon.DelAllGamePlayers(),
		rcon.DisablePlayerWhitelist(),
	} {
		if _, err := console.Send(command); err != nil {
			return fmt.Errorf("%s: %w", firstWord(command), err)
		}
	}
	return nil
}

func connectString(address, port, password string) string {
	s := fmt.Sprintf("connect %s:%s", address, port)
	if password != "" {
		s += fmt.Sprintf("; password %s", password)
	}
	return s
}

// extractCvarValue pulls the value out of a `"name" = "value" ...` cvar
// query response.
func extractCvarValue(response, name string) string {
	re := regexp.MustCompile(fmt.Sprintf(`"%s"\s*=\s*"([^"]*)"`, regexp.QuoteMeta(name)))
	match := re.FindStringSubmatch(response)
	if match == nil {
		return ""
	}
	return match[1]
}

func firstWord(command string) string {
	if i := strings.IndexByte(command, ' '); i > 0 {
		return command[:i]
	}
	return command
}
