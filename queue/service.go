package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pickup-matchmaker/config"
	"pickup-matchmaker/events"
	"pickup-matchmaker/metrics"
	"pickup-matchmaker/players"
)

// Service owns the slot table and the queue state machine. All slot
// mutations run under a single lock; state transitions are re-evaluated
// asynchronously after every slot-change batch, via the service's own
// subscription to the slot-change topic.
type Service struct {
	cfg     config.QueueConfig
	players players.Directory
	bans    players.BanRegistry
	bus     *events.Bus

	mu    sync.Mutex
	slots []Slot
	state State
	timer *time.Timer

	unsubscribe []func()
}

func NewService(cfg config.QueueConfig, directory players.Directory, bans players.BanRegistry, bus *events.Bus) *Service {
	s := &Service{
		cfg:     cfg,
		players: directory,
		bans:    bans,
		bus:     bus,
		state:   StateWaiting,
	}
	s.slots = s.buildSlots()

	s.unsubscribe = append(s.unsubscribe,
		bus.QueueSlotsChange.Subscribe(func(events.QueueSlotsChange) {
			s.maybeUpdateState()
		}),
		bus.QueueStateChange.Subscribe(func(e events.QueueStateChange) {
			s.handleStateChange(State(e.State))
		}),
		bus.PlayerDisconnects.Subscribe(func(e events.PlayerDisconnects) {
			s.Kick(e.PlayerID)
		}),
		bus.PlayerBanAdded.Subscribe(func(e events.PlayerBanAdded) {
			s.Kick(e.PlayerID)
		}),
	)
	return s
}

// Close cancels the service's subscriptions and any pending ready-up timer.
func (s *Service) Close() {
	for _, cancel := range s.unsubscribe {
		cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

// State returns the current queue state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Slots returns a copy of the slot table.
func (s *Service) Slots() []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := make([]Slot, len(s.slots))
	copy(slots, s.slots)
	return slots
}

func (s *Service) RequiredPlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

func (s *Service) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerCountLocked()
}

func (s *Service) ReadyPlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyPlayerCountLocked()
}

// IsInQueue reports whether the player currently holds a slot.
func (s *Service) IsInQueue(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findSlotByPlayerLocked(playerID) != nil
}

// Join puts the player into the given slot. The whole validate-then-mutate
// sequence runs under the queue lock so that two concurrent joins can never
// land on the same slot. If the player already holds another slot, that slot
// is vacated first; a pure slot move does not re-publish the joined event.
func (s *Service) Join(ctx context.Context, slotID int, playerID string) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateLaunching {
		return nil, fmt.Errorf("%w (%s)", ErrCannotJoinAtThisState, s.state)
	}

	player, err := s.players.GetByID(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if !player.HasAcceptedRules {
		return nil, fmt.Errorf("%w (%s)", ErrPlayerNotAcceptedRules, playerID)
	}

	bans, err := s.bans.GetActivePlayerBans(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if len(bans) > 0 {
		return nil, fmt.Errorf("%w (%s)", ErrPlayerIsBanned, playerID)
	}

	if player.ActiveGame != "" {
		return nil, fmt.Errorf("%w (%s)", ErrPlayerInvolvedInGame, playerID)
	}

	targetSlot := s.findSlotLocked(slotID)
	if targetSlot == nil {
		return nil, fmt.Errorf("%w (%d)", ErrNoSuchSlot, slotID)
	}
	if targetSlot.occupied() {
		return nil, fmt.Errorf("%w (%d)", ErrSlotOccupied, slotID)
	}

	// vacate any slot the player held before; this is a slot move, not a
	// stacked occupancy
	var oldSlots []Slot
	for i := range s.slots {
		if s.slots[i].PlayerID == playerID {
			s.clearSlotLocked(&s.slots[i])
			oldSlots = append(oldSlots, s.slots[i])
		}
	}

	targetSlot.PlayerID = playerID
	if s.state == StateReady || s.playerCountLocked() == len(s.slots) {
		targetSlot.Ready = true
	}

	log.Debug().
		Str("player", player.Name).
		Int("slotId", targetSlot.ID).
		Str("gameClass", targetSlot.GameClass).
		Msg("player joined the queue")

	if len(oldSlots) == 0 {
		s.bus.PlayerJoinsQueue.Publish(events.PlayerJoinsQueue{PlayerID: playerID})
	}

	slots := append([]Slot{*targetSlot}, oldSlots...)
	s.publishSlotsChangeLocked(slots)
	return slots, nil
}

// Leave removes the player from the queue on their own request. A ready
// player may not abandon their slot while the session is finalizing.
func (s *Service) Leave(playerID string) (Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.findSlotByPlayerLocked(playerID)
	if slot == nil {
		return Slot{}, fmt.Errorf("%w (%s)", ErrPlayerNotInQueue, playerID)
	}
	if slot.Ready && s.state != StateWaiting {
		return Slot{}, fmt.Errorf("%w (%s)", ErrCannotLeaveAtThisState, s.state)
	}

	s.clearSlotLocked(slot)
	log.Debug().Int("slotId", slot.ID).Str("gameClass", slot.GameClass).Msg("slot free")
	s.bus.PlayerLeavesQueue.Publish(events.PlayerLeavesQueue{PlayerID: playerID, Reason: events.LeaveReasonManual})
	s.publishSlotsChangeLocked([]Slot{*slot})
	return *slot, nil
}

// Kick removes the given players from the queue. It is a no-op while the
// queue is launching.
func (s *Service) Kick(playerIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kickLocked(playerIDs...)
}

// ReadyUp marks the player's slot ready. Only legal while the queue is in the
// ready state.
func (s *Service) ReadyUp(playerID string) (Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return Slot{}, fmt.Errorf("%w (%s)", ErrWrongState, s.state)
	}

	slot := s.findSlotByPlayerLocked(playerID)
	if slot == nil {
		return Slot{}, fmt.Errorf("%w (%s)", ErrPlayerNotInQueue, playerID)
	}

	slot.Ready = true
	log.Debug().
		Int("slotId", slot.ID).
		Int("ready", s.readyPlayerCountLocked()).
		Int("required", len(s.slots)).
		Msg("slot ready")
	s.publishSlotsChangeLocked([]Slot{*slot})
	return *slot, nil
}

// Reset rebuilds the slot table from configuration.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Debug().Msg("queue reset")
	s.slots = s.buildSlots()
	s.publishSlotsChangeLocked(s.slots)
}

// Snapshot captures the slot table and state for persistence.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := make([]Slot, len(s.slots))
	copy(slots, s.slots)
	return Snapshot{Slots: slots, State: s.state}
}

// Restore replaces the slot table and state with a previously captured
// snapshot. A snapshot whose shape no longer matches the configuration is
// ignored.
func (s *Service) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(snap.Slots) != len(s.slots) {
		log.Warn().
			Int("snapshotSlots", len(snap.Slots)).
			Int("configuredSlots", len(s.slots)).
			Msg("queue snapshot does not match configuration; discarding")
		return
	}
	s.slots = snap.Slots
	s.state = snap.State
}

// Snapshot is the persisted form of the queue.
type Snapshot struct {
	Slots []Slot `json:"slots"`
	State State  `json:"state"`
}

func (s *Service) kickLocked(playerIDs ...string) {
	if s.state == StateLaunching {
		return
	}

	var updated []Slot
	for _, playerID := range playerIDs {
		slot := s.findSlotByPlayerLocked(playerID)
		if slot == nil {
			continue
		}
		s.clearSlotLocked(slot)
		s.bus.PlayerLeavesQueue.Publish(events.PlayerLeavesQueue{PlayerID: playerID, Reason: events.LeaveReasonKicked})
		log.Debug().Int("slotId", slot.ID).Str("gameClass", slot.GameClass).Msg("slot free (player was kicked)")
		updated = append(updated, *slot)
	}

	// nothing to announce when none of the players held a slot
	if len(updated) > 0 {
		s.publishSlotsChangeLocked(updated)
	}
}

// maybeUpdateState runs on the slot-change subscription goroutine, never
// inline with a mutation, so a transition that depends on a whole batch of
// slot changes sees all of them.
func (s *Service) maybeUpdateState() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateWaiting:
		if s.playerCountLocked() == len(s.slots) {
			s.setStateLocked(StateReady)
		}

	case StateReady:
		if s.playerCountLocked() == 0 {
			s.setStateLocked(StateWaiting)
		} else if s.readyPlayerCountLocked() == len(s.slots) {
			s.setStateLocked(StateLaunching)
		}

	case StateLaunching:
		s.setStateLocked(StateWaiting)
	}
}

func (s *Service) handleStateChange(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state {
	case StateReady:
		s.stopTimerLocked()
		s.timer = time.AfterFunc(s.cfg.ReadyUpTimeout, s.onReadyUpTimeout)

	case StateLaunching, StateWaiting:
		s.stopTimerLocked()
	}
}

func (s *Service) onReadyUpTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// the timer may fire just as the state moves on
	if s.state != StateReady {
		return
	}

	if s.readyPlayerCountLocked() < len(s.slots) {
		log.Debug().Msg("kicking players that are not ready")
		var unready []string
		for _, slot := range s.slots {
			if slot.occupied() && !slot.Ready {
				unready = append(unready, slot.PlayerID)
			}
		}
		s.kickLocked(unready...)
	}

	nextTimeout := s.cfg.ReadyStateTimeout - s.cfg.ReadyUpTimeout
	if nextTimeout > 0 {
		s.stopTimerLocked()
		s.timer = time.AfterFunc(nextTimeout, s.onReadyStateTimeout)
	} else {
		s.unreadyLocked()
	}
}

func (s *Service) onReadyStateTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return
	}
	s.unreadyLocked()
}

func (s *Service) unreadyLocked() {
	var updated []Slot
	for i := range s.slots {
		if s.slots[i].occupied() {
			s.slots[i].Ready = false
			updated = append(updated, s.slots[i])
		}
	}
	s.publishSlotsChangeLocked(updated)
	s.setStateLocked(StateWaiting)
}

func (s *Service) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	metrics.QueueStateTransitions.WithLabelValues(string(state)).Inc()
	log.Info().Str("state", string(state)).Msg("queue state change")
	s.bus.QueueStateChange.Publish(events.QueueStateChange{State: string(state)})
}

func (s *Service) publishSlotsChangeLocked(slots []Slot) {
	ids := make([]int, len(slots))
	for i, slot := range slots {
		ids[i] = slot.ID
	}
	metrics.QueuePlayers.Set(float64(s.playerCountLocked()))
	s.bus.QueueSlotsChange.Publish(events.QueueSlotsChange{SlotIDs: ids})
}

func (s *Service) buildSlots() []Slot {
	var slots []Slot
	id := 0
	for _, class := range s.cfg.Classes {
		for i := 0; i < class.Count*s.cfg.TeamCount; i++ {
			slots = append(slots, Slot{ID: id, GameClass: class.Name})
			id++
		}
	}
	return slots
}

func (s *Service) findSlotLocked(slotID int) *Slot {
	for i := range s.slots {
		if s.slots[i].ID == slotID {
			return &s.slots[i]
		}
	}
	return nil
}

func (s *Service) clearSlotLocked(slot *Slot) {
	slot.PlayerID = ""
	slot.Ready = false
}

func (s *Service) findSlotByPlayerLocked(playerID string) *Slot {
	for i := range s.slots {
		if s.slots[i].PlayerID == playerID {
			return &s.slots[i]
		}
	}
	return nil
}

func (s *Service) playerCountLocked() int {
	count := 0
	for _, slot := range s.slots {
		if slot.occupied() {
			count++
		}
	}
	return count
}

func (s *Service) readyPlayerCountLocked() int {
	count := 0
	for _, slot := range s.slots {
		if slot.Ready {
			count++
		}
	}
	return count
}

func (s *Service) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
