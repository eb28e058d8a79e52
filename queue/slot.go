// Package queue implements the matchmaking queue: the slot table, the
// waiting/ready/launching state machine, the map pool and the map vote.
package queue

// State is the authoritative queue state. Transitions are driven by slot
// changes and re-evaluated after every mutation batch.
type State string

const (
	StateWaiting   State = "waiting"
	StateReady     State = "ready"
	StateLaunching State = "launching"
)

// Slot is one seat in the session template. A slot is occupied by at most one
// player at a time; slot ids are stable until a full queue reset regenerates
// the table.
type Slot struct {
	ID                 int      `json:"id"`
	GameClass          string   `json:"gameClass"`
	CanMakeFriendsWith []string `json:"canMakeFriendsWith,omitempty"`
	PlayerID           string   `json:"playerId,omitempty"`
	Ready              bool     `json:"ready"`
}

func (s Slot) occupied() bool {
	return s.PlayerID != ""
}
