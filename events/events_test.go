package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic_DeliveryOrder(t *testing.T) {
	var topic Topic[int]

	var mu sync.Mutex
	var got []int
	unsubscribe := topic.Subscribe(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	defer unsubscribe()

	for i := 0; i < 100; i++ {
		topic.Publish(i)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("out-of-order delivery at %d: got %d", i, v)
		}
	}
}

func TestTopic_MultipleSubscribers(t *testing.T) {
	var topic Topic[string]

	var mu sync.Mutex
	counts := map[string]int{}
	for _, name := range []string{"a", "b", "c"} {
		name := name
		defer topic.Subscribe(func(string) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		})()
	}

	topic.Publish("payload")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["a"] == 1 && counts["b"] == 1 && counts["c"] == 1
	}, time.Second, time.Millisecond)
}

func TestTopic_Unsubscribe(t *testing.T) {
	var topic Topic[int]

	var mu sync.Mutex
	var got int
	unsubscribe := topic.Subscribe(func(int) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	topic.Publish(1)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == 1
	}, time.Second, time.Millisecond)

	unsubscribe()
	topic.Publish(2)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, got)
}

func TestTopic_SubscriberMayPublish(t *testing.T) {
	bus := NewBus()

	done := make(chan struct{})
	defer bus.QueueSlotsChange.Subscribe(func(QueueSlotsChange) {
		bus.QueueStateChange.Publish(QueueStateChange{State: "ready"})
	})()
	defer bus.QueueStateChange.Subscribe(func(QueueStateChange) {
		close(done)
	})()

	bus.QueueSlotsChange.Publish(QueueSlotsChange{SlotIDs: []int{0}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cascaded publish never delivered")
	}
}
