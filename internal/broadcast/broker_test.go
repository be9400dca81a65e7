package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/tasting/internal/coordinator"
)

func newTestBroker(t *testing.T) (*Broker, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	return NewBroker(slog.New(slog.DiscardHandler), m), m
}

func decode(t *testing.T, data []byte) coordinator.Event {
	t.Helper()
	var ev coordinator.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestBrokerDeliversInOrderPerSession(t *testing.T) {
	b, _ := newTestBroker(t)
	a := b.Subscribe("s1", "c1")
	other := b.Subscribe("s2", "c2")

	for i := range 3 {
		b.Publish("s1", coordinator.Event{Name: coordinator.EventSessionAdvanced, SessionID: "s1", Epoch: int64(i + 1)})
	}

	for i := range 3 {
		ev := decode(t, <-a.C)
		assert.Equal(t, int64(i+1), ev.Epoch)
		assert.Equal(t, coordinator.EventSessionAdvanced, ev.Name)
	}
	assert.Empty(t, other.C)
}

func TestBrokerDisconnectsSlowSubscriber(t *testing.T) {
	b, m := newTestBroker(t)
	slow := b.Subscribe("s1", "slow")
	fast := b.Subscribe("s1", "fast")

	for i := range DefaultBuffer + 1 {
		b.Publish("s1", coordinator.Event{Name: coordinator.EventScoreLocked, Epoch: int64(i)})
		<-fast.C
	}

	n := 0
	for range slow.C {
		n++
	}
	assert.Equal(t, DefaultBuffer, n, "slow subscriber keeps what it buffered, then its channel closes")
	assert.Equal(t, 1, b.Subscribers("s1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slowSubscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.subscribers))
}

func TestBrokerResubscribeReplacesConnection(t *testing.T) {
	b, m := newTestBroker(t)
	first := b.Subscribe("s1", "c1")
	second := b.Subscribe("s1", "c1")

	_, ok := <-first.C
	assert.False(t, ok)
	assert.Equal(t, 1, b.Subscribers("s1"))

	b.Unsubscribe("s1", "c1")
	b.Unsubscribe("s1", "c1")
	_, ok = <-second.C
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers("s1"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.subscribers))
}

func TestBrokerClose(t *testing.T) {
	b, _ := newTestBroker(t)
	var subs []*Subscription
	for i := range 3 {
		subs = append(subs, b.Subscribe(fmt.Sprintf("s%d", i%2), fmt.Sprintf("c%d", i)))
	}
	b.Close()
	for _, s := range subs {
		_, ok := <-s.C
		assert.False(t, ok)
	}
	b.Publish("s0", coordinator.Event{Name: coordinator.EventSessionEnded})
}

func TestBrokerWithoutMetrics(t *testing.T) {
	b := NewBroker(slog.New(slog.DiscardHandler), nil)
	sub := b.Subscribe("s1", "c1")
	b.Publish("s1", coordinator.Event{Name: coordinator.EventSessionStarted})
	assert.Equal(t, coordinator.EventSessionStarted, decode(t, <-sub.C).Name)
	b.Unsubscribe("s1", "c1")
}

func TestBrokerDropSession(t *testing.T) {
	b, m := newTestBroker(t)
	a := b.Subscribe("s1", "c1")
	c := b.Subscribe("s1", "c2")
	other := b.Subscribe("s2", "c3")

	assert.Equal(t, 2, b.DropSession("s1"))
	for _, sub := range []*Subscription{a, c} {
		_, ok := <-sub.C
		assert.False(t, ok)
	}
	assert.Equal(t, 1, b.Subscribers("s2"))
	assert.Equal(t, 0, b.DropSession("s1"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.resyncs))

	b.Resync("s2")
	_, ok := <-other.C
	assert.False(t, ok)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.subscribers))
}

func TestBrokerDropAll(t *testing.T) {
	b, m := newTestBroker(t)
	for i := range 4 {
		b.Subscribe(fmt.Sprintf("s%d", i%2), fmt.Sprintf("c%d", i))
	}
	assert.Equal(t, 4, b.DropAll())
	assert.Equal(t, 0, b.Subscribers("s0"))
	assert.Equal(t, 0, b.Subscribers("s1"))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.resyncs))
	assert.Equal(t, 0, b.DropAll())
}
