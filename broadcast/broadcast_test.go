package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetguard/governor/core"
)

func TestSubscribeReceivesBroadcast(t *testing.T) {
	h := New()
	sub := h.Subscribe("run-1")
	defer sub.Close()

	h.Broadcast("run-1", core.BroadcastMessage{Kind: core.BroadcastTelemetry, Data: map[string]interface{}{"x": 1.0}})

	select {
	case msg := <-sub.C:
		assert.Equal(t, core.BroadcastTelemetry, msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestBroadcastOnlyReachesItsRun(t *testing.T) {
	h := New()
	subA := h.Subscribe("run-a")
	subB := h.Subscribe("run-b")
	defer subA.Close()
	defer subB.Close()

	h.Broadcast("run-a", core.BroadcastMessage{Kind: core.BroadcastAlert})

	select {
	case <-subA.C:
	case <-time.After(time.Second):
		t.Fatal("run-a subscriber should have received the message")
	}

	select {
	case <-subB.C:
		t.Fatal("run-b subscriber should not have received the message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastDropsOnFullChannel(t *testing.T) {
	h := New()
	sub := h.Subscribe("run-1")
	defer sub.Close()

	for i := 0; i < subscriberBufferSize+10; i++ {
		h.Broadcast("run-1", core.BroadcastMessage{Kind: core.BroadcastStatus})
	}
	// Should not block or panic; channel caps at subscriberBufferSize.
	assert.LessOrEqual(t, len(sub.C), subscriberBufferSize)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := New()
	sub := h.Subscribe("run-1")
	h.Unsubscribe("run-1", sub.Handle)

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, h.SubscriberCount("run-1"))
}

func TestCloseRunClosesAllSubscribers(t *testing.T) {
	h := New()
	sub1 := h.Subscribe("run-1")
	sub2 := h.Subscribe("run-1")

	h.CloseRun("run-1")

	_, ok1 := <-sub1.C
	_, ok2 := <-sub2.C
	assert.False(t, ok1)
	assert.False(t, ok2)
	require.Equal(t, 0, h.SubscriberCount("run-1"))
}
