// Package events is the process-wide publish/subscribe hub. One Bus is
// created at startup and lives for the process lifetime; every component may
// publish to or subscribe on any of its topics.
package events

// LeaveReason tells why a player left the queue.
type LeaveReason string

const (
	LeaveReasonManual LeaveReason = "manual"
	LeaveReasonKicked LeaveReason = "kicked"
)

type PlayerJoinsQueue struct {
	PlayerID string
}

type PlayerLeavesQueue struct {
	PlayerID string
	Reason   LeaveReason
}

// QueueSlotsChange carries the ids of the slots touched by a single queue
// mutation. Subscribers that need full slot data re-read it from the queue.
type QueueSlotsChange struct {
	SlotIDs []int
}

type QueueStateChange struct {
	State string
}

type MapVoteResult struct {
	Map       string `json:"map"`
	VoteCount int    `json:"voteCount"`
}

type MapVotesChange struct {
	Results []MapVoteResult
}

type MapPoolChange struct {
	Maps []string
}

type GameCreated struct {
	GameID string
}

type GameChanges struct {
	GameID  string
	AdminID string
}

type GameServerUpdated struct {
	ServerID string
}

type PlayerBanAdded struct {
	PlayerID string
}

type PlayerDisconnects struct {
	PlayerID string
}

// Bus holds all topics that occur in the application.
type Bus struct {
	PlayerJoinsQueue  Topic[PlayerJoinsQueue]
	PlayerLeavesQueue Topic[PlayerLeavesQueue]
	QueueSlotsChange  Topic[QueueSlotsChange]
	QueueStateChange  Topic[QueueStateChange]
	MapVotesChange    Topic[MapVotesChange]
	MapPoolChange     Topic[MapPoolChange]
	GameCreated       Topic[GameCreated]
	GameChanges       Topic[GameChanges]
	GameServerUpdated Topic[GameServerUpdated]
	PlayerBanAdded    Topic[PlayerBanAdded]
	PlayerDisconnects Topic[PlayerDisconnects]
}

func NewBus() *Bus {
	return &Bus{}
}
