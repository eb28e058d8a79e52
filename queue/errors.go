package queue

import "errors"

var (
	ErrCannotJoinAtThisState  = errors.New("cannot join the queue at this state")
	ErrCannotLeaveAtThisState = errors.New("cannot leave the queue at this state")
	ErrWrongState             = errors.New("wrong queue state")
	ErrNoSuchSlot             = errors.New("no such slot")
	ErrSlotOccupied           = errors.New("slot occupied")
	ErrPlayerNotInQueue       = errors.New("player not in the queue")
	ErrPlayerNotAcceptedRules = errors.New("player has not accepted rules")
	ErrPlayerIsBanned         = errors.New("player is banned")
	ErrPlayerInvolvedInGame   = errors.New("player involved in a game")
	ErrMapNotInThePool        = errors.New("map is not in the pool")
)
