package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickup-matchmaker/config"
	"pickup-matchmaker/events"
	"pickup-matchmaker/players"
)

func twoSlotConfig() config.QueueConfig {
	return config.QueueConfig{
		Classes:           []config.ClassConfig{{Name: "scout", Count: 1}, {Name: "soldier", Count: 1}},
		TeamCount:         1,
		ReadyUpTimeout:    10 * time.Second,
		ReadyStateTimeout: 15 * time.Second,
	}
}

// fastTimersConfig is for tests that exercise the ready-up timers.
func fastTimersConfig() config.QueueConfig {
	cfg := twoSlotConfig()
	cfg.ReadyUpTimeout = 100 * time.Millisecond
	cfg.ReadyStateTimeout = 200 * time.Millisecond
	return cfg
}

func newTestService(t *testing.T, cfg config.QueueConfig, playerIDs ...string) (*Service, *players.Store, *events.Bus) {
	t.Helper()
	store := players.NewStore()
	for _, id := range playerIDs {
		store.Upsert(players.Player{ID: id, Name: "player " + id, HasAcceptedRules: true})
	}
	bus := events.NewBus()
	svc := NewService(cfg, store, store, bus)
	t.Cleanup(svc.Close)
	return svc, store, bus
}

func waitForState(t *testing.T, svc *Service, state State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return svc.State() == state
	}, 2*time.Second, time.Millisecond, "queue never reached state %s", state)
}

func TestService_SlotTableFromConfig(t *testing.T) {
	svc, _, _ := newTestService(t, config.QueueConfig{
		Classes:   []config.ClassConfig{{Name: "scout", Count: 2}, {Name: "medic", Count: 1}},
		TeamCount: 2,
	})

	slots := svc.Slots()
	require.Len(t, slots, 6)
	for i, slot := range slots {
		assert.Equal(t, i, slot.ID)
		assert.Empty(t, slot.PlayerID)
		assert.False(t, slot.Ready)
	}
	assert.Equal(t, "scout", slots[0].GameClass)
	assert.Equal(t, "medic", slots[5].GameClass)
}

func TestService_Join(t *testing.T) {
	ctx := context.Background()

	t.Run("takes the slot", func(t *testing.T) {
		svc, _, _ := newTestService(t, twoSlotConfig(), "p1")
		slots, err := svc.Join(ctx, 0, "p1")
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, "p1", slots[0].PlayerID)
		assert.Equal(t, 1, svc.PlayerCount())
	})

	t.Run("publishes the joined event only once per player", func(t *testing.T) {
		svc, _, bus := newTestService(t, twoSlotConfig(), "p1")

		joins := make(chan events.PlayerJoinsQueue, 4)
		defer bus.PlayerJoinsQueue.Subscribe(func(e events.PlayerJoinsQueue) {
			joins <- e
		})()

		_, err := svc.Join(ctx, 0, "p1")
		require.NoError(t, err)

		// slot move: no second joined event
		slots, err := svc.Join(ctx, 1, "p1")
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.Equal(t, "p1", slots[0].PlayerID)
		assert.Empty(t, slots[1].PlayerID)

		select {
		case e := <-joins:
			assert.Equal(t, "p1", e.PlayerID)
		case <-time.After(time.Second):
			t.Fatal("joined event never published")
		}
		select {
		case <-joins:
			t.Fatal("slot move must not re-publish the joined event")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("validation failures", func(t *testing.T) {
		tests := []struct {
			name    string
			setup   func(t *testing.T, svc *Service, store *players.Store)
			slotID  int
			player  string
			wantErr error
		}{
			{
				name:    "unknown player",
				setup:   func(*testing.T, *Service, *players.Store) {},
				slotID:  0,
				player:  "ghost",
				wantErr: players.ErrPlayerNotFound,
			},
			{
				name: "rules not accepted",
				setup: func(_ *testing.T, _ *Service, store *players.Store) {
					store.Upsert(players.Player{ID: "fresh", Name: "fresh"})
				},
				slotID:  0,
				player:  "fresh",
				wantErr: ErrPlayerNotAcceptedRules,
			},
			{
				name: "banned player",
				setup: func(_ *testing.T, _ *Service, store *players.Store) {
					store.AddBan(players.Ban{PlayerID: "p1", Reason: "cheating", End: time.Now().Add(time.Hour)})
				},
				slotID:  0,
				player:  "p1",
				wantErr: ErrPlayerIsBanned,
			},
			{
				name: "player already in a game",
				setup: func(t *testing.T, _ *Service, store *players.Store) {
					require.NoError(t, store.SetActiveGame("p1", "game-1"))
				},
				slotID:  0,
				player:  "p1",
				wantErr: ErrPlayerInvolvedInGame,
			},
			{
				name:    "no such slot",
				setup:   func(*testing.T, *Service, *players.Store) {},
				slotID:  42,
				player:  "p1",
				wantErr: ErrNoSuchSlot,
			},
			{
				name: "slot occupied",
				setup: func(t *testing.T, svc *Service, store *players.Store) {
					store.Upsert(players.Player{ID: "p2", Name: "p2", HasAcceptedRules: true})
					_, err := svc.Join(context.Background(), 0, "p2")
					require.NoError(t, err)
				},
				slotID:  0,
				player:  "p1",
				wantErr: ErrSlotOccupied,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc, store, _ := newTestService(t, twoSlotConfig(), "p1")
				tt.setup(t, svc, store)
				_, err := svc.Join(ctx, tt.slotID, tt.player)
				require.ErrorIs(t, err, tt.wantErr)
			})
		}
	})

	t.Run("expired ban does not block joining", func(t *testing.T) {
		svc, store, _ := newTestService(t, twoSlotConfig(), "p1")
		store.AddBan(players.Ban{PlayerID: "p1", Reason: "old", End: time.Now().Add(-time.Hour)})
		_, err := svc.Join(ctx, 0, "p1")
		require.NoError(t, err)
	})
}

// 2-slot queue; two joins drive the state to ready, two ready-ups to
// launching.
func TestService_FullRosterLaunches(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, twoSlotConfig(), "p1", "p2")

	_, err := svc.Join(ctx, 0, "p1")
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, svc.State())

	_, err = svc.Join(ctx, 1, "p2")
	require.NoError(t, err)
	waitForState(t, svc, StateReady)

	// p2 joined last and completed the roster, so their slot is already
	// flagged ready
	for _, slot := range svc.Slots() {
		if slot.PlayerID == "p2" {
			assert.True(t, slot.Ready)
		}
	}

	_, err = svc.ReadyUp("p2")
	require.NoError(t, err)
	_, err = svc.ReadyUp("p1")
	require.NoError(t, err)
	waitForState(t, svc, StateLaunching)

	assert.Equal(t, svc.RequiredPlayerCount(), svc.ReadyPlayerCount())
}

// A ready player may not abandon their slot while the queue is finalizing;
// once the ready-state timeout reverts the queue to waiting, leaving works.
func TestService_LeaveWhileReady(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, fastTimersConfig(), "p1", "p2")

	_, err := svc.Join(ctx, 0, "p1")
	require.NoError(t, err)
	_, err = svc.Join(ctx, 1, "p2")
	require.NoError(t, err)
	waitForState(t, svc, StateReady)

	_, err = svc.ReadyUp("p1")
	require.NoError(t, err)

	_, err = svc.Leave("p1")
	require.ErrorIs(t, err, ErrCannotLeaveAtThisState)

	// p2 never readies up: the ready-up timeout kicks them, the ready-state
	// timeout unreadies the rest and reverts to waiting
	waitForState(t, svc, StateWaiting)

	slot, err := svc.Leave("p1")
	require.NoError(t, err)
	assert.Equal(t, 0, slot.ID)
	assert.False(t, svc.IsInQueue("p1"))
}

func TestService_ReadyUpTimeoutKicksUnready(t *testing.T) {
	ctx := context.Background()
	svc, _, bus := newTestService(t, fastTimersConfig(), "p1", "p2")

	left := make(chan events.PlayerLeavesQueue, 4)
	defer bus.PlayerLeavesQueue.Subscribe(func(e events.PlayerLeavesQueue) {
		left <- e
	})()

	_, err := svc.Join(ctx, 0, "p1")
	require.NoError(t, err)
	_, err = svc.Join(ctx, 1, "p2")
	require.NoError(t, err)
	waitForState(t, svc, StateReady)

	_, err = svc.ReadyUp("p1")
	require.NoError(t, err)

	select {
	case e := <-left:
		assert.Equal(t, "p2", e.PlayerID)
		assert.Equal(t, events.LeaveReasonKicked, e.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("unready player was never kicked")
	}

	waitForState(t, svc, StateWaiting)
	assert.True(t, svc.IsInQueue("p1"))
	assert.False(t, svc.IsInQueue("p2"))
}

// A vacated slot drops both the occupant and the ready flag, whether it was
// freed by a slot move or by a kick.
func TestService_VacatedSlotsAreCleared(t *testing.T) {
	ctx := context.Background()

	t.Run("slot move", func(t *testing.T) {
		svc, _, _ := newTestService(t, twoSlotConfig(), "p1")
		_, err := svc.Join(ctx, 0, "p1")
		require.NoError(t, err)
		_, err = svc.Join(ctx, 1, "p1")
		require.NoError(t, err)

		slots := svc.Slots()
		assert.Empty(t, slots[0].PlayerID)
		assert.False(t, slots[0].Ready)
		assert.Equal(t, "p1", slots[1].PlayerID)
	})

	t.Run("kick of a ready player", func(t *testing.T) {
		svc, _, _ := newTestService(t, twoSlotConfig(), "p1", "p2")
		_, err := svc.Join(ctx, 0, "p1")
		require.NoError(t, err)
		_, err = svc.Join(ctx, 1, "p2")
		require.NoError(t, err)
		waitForState(t, svc, StateReady)
		_, err = svc.ReadyUp("p1")
		require.NoError(t, err)

		svc.Kick("p1")
		slots := svc.Slots()
		assert.Empty(t, slots[0].PlayerID)
		assert.False(t, slots[0].Ready)
	})
}

// Disconnect and ban events arrive for players who never queued; those must
// not ripple into slot-change notifications.
func TestService_KickUnknownPlayerPublishesNothing(t *testing.T) {
	svc, _, bus := newTestService(t, twoSlotConfig(), "p1")

	changes := make(chan events.QueueSlotsChange, 4)
	defer bus.QueueSlotsChange.Subscribe(func(e events.QueueSlotsChange) {
		changes <- e
	})()

	svc.Kick("ghost")

	select {
	case <-changes:
		t.Fatal("kicking a non-queued player must not publish a slots change")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_Leave(t *testing.T) {
	ctx := context.Background()

	t.Run("not in queue", func(t *testing.T) {
		svc, _, _ := newTestService(t, twoSlotConfig(), "p1")
		_, err := svc.Leave("p1")
		require.ErrorIs(t, err, ErrPlayerNotInQueue)
	})

	t.Run("frees the slot", func(t *testing.T) {
		svc, _, bus := newTestService(t, twoSlotConfig(), "p1")

		left := make(chan events.PlayerLeavesQueue, 1)
		defer bus.PlayerLeavesQueue.Subscribe(func(e events.PlayerLeavesQueue) {
			left <- e
		})()

		_, err := svc.Join(ctx, 0, "p1")
		require.NoError(t, err)
		_, err = svc.Leave("p1")
		require.NoError(t, err)

		select {
		case e := <-left:
			assert.Equal(t, events.LeaveReasonManual, e.Reason)
		case <-time.After(time.Second):
			t.Fatal("left event never published")
		}
		assert.Equal(t, 0, svc.PlayerCount())
	})
}

func TestService_ReadyUpOutsideReadyState(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, twoSlotConfig(), "p1")
	_, err := svc.Join(ctx, 0, "p1")
	require.NoError(t, err)

	_, err = svc.ReadyUp("p1")
	require.ErrorIs(t, err, ErrWrongState)
}

func TestService_KickReactsToBusEvents(t *testing.T) {
	ctx := context.Background()
	svc, _, bus := newTestService(t, twoSlotConfig(), "p1", "p2")

	_, err := svc.Join(ctx, 0, "p1")
	require.NoError(t, err)
	_, err = svc.Join(ctx, 1, "p2")
	require.NoError(t, err)

	bus.PlayerDisconnects.Publish(events.PlayerDisconnects{PlayerID: "p1"})
	require.Eventually(t, func() bool {
		return !svc.IsInQueue("p1")
	}, 2*time.Second, time.Millisecond)

	bus.PlayerBanAdded.Publish(events.PlayerBanAdded{PlayerID: "p2"})
	require.Eventually(t, func() bool {
		return !svc.IsInQueue("p2")
	}, 2*time.Second, time.Millisecond)
}

func TestService_ResetIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t, twoSlotConfig(), "p1")

	_, err := svc.Join(context.Background(), 0, "p1")
	require.NoError(t, err)

	svc.Reset()
	first := svc.Slots()
	svc.Reset()
	second := svc.Slots()

	require.Equal(t, first, second)
	for _, slot := range first {
		assert.Empty(t, slot.PlayerID)
		assert.False(t, slot.Ready)
	}
}

// Occupancy invariants: the player count never exceeds the slot count and no
// player ever holds two slots.
func TestService_OccupancyInvariants(t *testing.T) {
	ctx := context.Background()
	ids := []string{"p1", "p2", "p3"}
	svc, _, _ := newTestService(t, twoSlotConfig(), ids...)

	ops := []func(){
		func() { _, _ = svc.Join(ctx, 0, "p1") },
		func() { _, _ = svc.Join(ctx, 1, "p1") },
		func() { _, _ = svc.Join(ctx, 0, "p2") },
		func() { _, _ = svc.Join(ctx, 0, "p3") },
		func() { _, _ = svc.Leave("p2") },
		func() { svc.Kick("p1", "p3") },
		func() { _, _ = svc.Join(ctx, 1, "p3") },
	}
	for _, op := range ops {
		op()

		slots := svc.Slots()
		seen := map[string]bool{}
		occupied := 0
		for _, slot := range slots {
			if slot.PlayerID == "" {
				continue
			}
			occupied++
			if seen[slot.PlayerID] {
				t.Fatalf("player %s occupies two slots", slot.PlayerID)
			}
			seen[slot.PlayerID] = true
		}
		assert.LessOrEqual(t, occupied, len(slots))
	}
}

func TestService_SnapshotRestore(t *testing.T) {
	svc, _, _ := newTestService(t, twoSlotConfig(), "p1")
	_, err := svc.Join(context.Background(), 0, "p1")
	require.NoError(t, err)

	snap := svc.Snapshot()

	restored, _, _ := newTestService(t, twoSlotConfig(), "p1")
	restored.Restore(snap)
	assert.True(t, restored.IsInQueue("p1"))
	assert.Equal(t, snap.State, restored.State())

	// mismatched shape is discarded
	other, _, _ := newTestService(t, config.QueueConfig{
		Classes:   []config.ClassConfig{{Name: "scout", Count: 3}},
		TeamCount: 2,
	})
	other.Restore(snap)
	assert.False(t, other.IsInQueue("p1"))
}
