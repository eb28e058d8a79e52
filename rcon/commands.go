package rcon

import "fmt"

// Builders for the console commands the configuration pipeline sends. The
// game server is not 8-bit-clean on all of these, so player names must be
// deburred before they reach AddGamePlayer.

func LogAddressAdd(logAddress string) string {
	return fmt.Sprintf("logaddress_add %s", logAddress)
}

func LogAddressDel(logAddress string) string {
	return fmt.Sprintf("logaddress_del %s", logAddress)
}

func KickAll() string {
	return "kickall"
}

func ChangeLevel(mapName string) string {
	return fmt.Sprintf("changelevel %s", mapName)
}

func ExecConfig(configName string) string {
	return fmt.Sprintf("exec %s", configName)
}

func SetPassword(password string) string {
	return fmt.Sprintf("sv_password %s", password)
}

func AddGamePlayer(steamID, name, team, gameClass string) string {
	return fmt.Sprintf("sm_game_player_add %s -name \"%s\" -team %s -class %s", steamID, name, team, gameClass)
}

func DelAllGamePlayers() string {
	return "sm_game_player_delall"
}

func EnablePlayerWhitelist() string {
	return "sm_game_player_whitelist 1"
}

func DisablePlayerWhitelist() string {
	return "sm_game_player_whitelist 0"
}

func TftrueWhitelistID(whitelistID string) string {
	return fmt.Sprintf("tftrue_whitelist_id %s", whitelistID)
}

func LogsTfTitle(title string) string {
	return fmt.Sprintf("logstf_title %s", title)
}

func TvPort() string {
	return "tv_port"
}

func TvPassword() string {
	return "tv_password"
}

func Say(message string) string {
	return fmt.Sprintf("say %s", message)
}
