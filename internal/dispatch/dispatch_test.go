package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hessdev-de/energy2mqtt/internal/discovery"
	"github.com/Hessdev-de/energy2mqtt/internal/record"
)

type fakePublisher struct {
	mu    sync.Mutex
	calls []struct {
		topic  string
		retain bool
	}
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct {
		topic  string
		retain bool
	}{topic, retain})
	return nil
}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.topic)
	}
	return out
}

func runBridge(t *testing.T, pub Publisher) (*Bridge, func()) {
	t.Helper()
	b := NewBridge("energy2mqtt", pub)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	return b, cancel
}

func TestMeteringPublishesRawAndPerMeterTopics(t *testing.T) {
	pub := &fakePublisher{}
	b, cancel := runBridge(t, pub)
	defer cancel()

	rec := record.New("id1", "meter1", record.ProtocolModbusTCP, 100)
	rec.MeteredValues.Set("voltage", 230.0)
	b.Metering(rec)

	require.Eventually(t, func() bool { return len(pub.topics()) == 2 }, time.Second, time.Millisecond)
	topics := pub.topics()
	assert.Contains(t, topics, "energy2mqtt/raw")
	assert.Contains(t, topics, "energy2mqtt/devs/modbus-tcp/meter1")
}

func TestAutoDiscoveryPublishesRetainedConfigTopic(t *testing.T) {
	pub := &fakePublisher{}
	b, cancel := runBridge(t, pub)
	defer cancel()

	d := &discovery.Record{Name: "meter1", Protocol: "modbus-tcp"}
	b.AutoDiscovery(d)

	require.Eventually(t, func() bool { return len(pub.topics()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "homeassistant/device/e2m_modbus-tcp-meter1/config", pub.topics()[0])
	assert.True(t, pub.calls[0].retain)
}

func TestSubscribeDeliversInRegistrationOrder(t *testing.T) {
	pub := &fakePublisher{}
	b, cancel := runBridge(t, pub)
	defer cancel()

	var order []int
	var mu sync.Mutex
	ch1 := make(chan []byte, 1)
	ch2 := make(chan []byte, 1)
	b.Subscribe("topic1", ch1)
	b.Subscribe("topic1", ch2)

	require.Eventually(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return len(b.registry["energy2mqtt/topic1"]) == 2
	}, time.Second, time.Millisecond)

	b.mu.RLock()
	registered := b.registry["energy2mqtt/topic1"]
	b.mu.RUnlock()
	assert.True(t, registered[0] == (chan<- []byte)(ch1) && registered[1] == (chan<- []byte)(ch2))

	b.Deliver("energy2mqtt/topic1", []byte("payload"))

	select {
	case <-ch1:
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	case <-time.After(time.Second):
		t.Fatal("ch1 did not receive delivery")
	}
	select {
	case <-ch2:
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	case <-time.After(time.Second):
		t.Fatal("ch2 did not receive delivery")
	}
	assert.Equal(t, []int{1, 2}, order)
}

func TestDiscoveryRecordJSONRoundTrips(t *testing.T) {
	d := discovery.Record{Name: "meter1", Protocol: "modbus-tcp", Components: []discovery.Component{{Key: "v", Platform: "Sensor"}}}
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "meter1")
}
