// Package dispatch is the egress bridge of spec.md §4.10: a single
// producer "transmission channel" accepting Metering/AutoDiscovery/
// Subscribe/Publish messages and a topic registry for inbound bus messages.
// The configuration-change broadcaster lives in internal/config.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Hessdev-de/energy2mqtt/internal/discovery"
	"github.com/Hessdev-de/energy2mqtt/internal/record"
	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

// Publisher is the message-bus client collaborator (spec.md §1): the
// bridge depends only on this interface, never on a concrete MQTT client.
// internal/bus provides the paho.mqtt.golang-backed implementation.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

type kind int

const (
	kindMetering kind = iota
	kindAutoDiscovery
	kindSubscribe
	kindPublish
)

type message struct {
	kind      kind
	record    *record.Record
	discovery *discovery.Record
	topic     string
	delivery  chan<- []byte
	payload   []byte
	qos       byte
	retain    bool
}

// Bridge owns the topic registry and the transmission channel. It is the
// sole writer of the registry; all mutation happens through messages on
// the channel, so no external locking on the registry is required
// (spec.md §5).
type Bridge struct {
	namespace    string
	publisher    Publisher
	transmission chan message

	mu       sync.RWMutex
	registry map[string][]chan<- []byte
}

// NewBridge constructs a Bridge publishing through publisher, with every
// topic it owns prefixed by namespace. The transmission channel has
// queue depth 10 (spec.md §5): back-pressure blocks the slowest producer,
// never the egress publisher. publisher may be nil if the bus client
// cannot be constructed until after the bridge exists (the bridge itself
// is the bus client's inbound Deliverer); call SetPublisher once it is
// available, before Run starts draining the transmission channel.
func NewBridge(namespace string, publisher Publisher) *Bridge {
	return &Bridge{
		namespace:    namespace,
		publisher:    publisher,
		transmission: make(chan message, 10),
		registry:     make(map[string][]chan<- []byte),
	}
}

// SetPublisher assigns the bus client the bridge publishes through. Must
// be called before Run, and not concurrently with it.
func (b *Bridge) SetPublisher(publisher Publisher) {
	b.publisher = publisher
}

// Run drains the transmission channel until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.transmission:
			b.handle(msg)
		}
	}
}

func (b *Bridge) handle(msg message) {
	switch msg.kind {
	case kindMetering:
		b.publishRecord(msg.record)
	case kindAutoDiscovery:
		b.publishDiscovery(msg.discovery)
	case kindSubscribe:
		b.subscribe(msg.topic, msg.delivery)
	case kindPublish:
		full := b.namespace + "/" + msg.topic
		if err := b.publisher.Publish(full, msg.payload, msg.qos, msg.retain); err != nil {
			log.Warnf("dispatch: publish %s failed: %v", full, err)
		}
	}
}

// Metering enqueues a decoded record for publication to the raw and
// per-meter topics.
func (b *Bridge) Metering(rec *record.Record) {
	b.transmission <- message{kind: kindMetering, record: rec}
}

// PublishRecord satisfies modbus.Publisher, so a Bridge can be handed
// directly to a Modbus Poller as its publisher.
func (b *Bridge) PublishRecord(rec *record.Record) {
	b.Metering(rec)
}

// AutoDiscovery enqueues a discovery record for publication to its
// retained Home-Assistant-style config topic.
func (b *Bridge) AutoDiscovery(d *discovery.Record) {
	b.transmission <- message{kind: kindAutoDiscovery, discovery: d}
}

// Subscribe registers delivery to receive every inbound bus payload for
// topic (namespace-prefixed when Run handles the request).
func (b *Bridge) Subscribe(topic string, delivery chan<- []byte) {
	b.transmission <- message{kind: kindSubscribe, topic: topic, delivery: delivery}
}

// Publish enqueues a raw publish to the bus, bypassing the record/
// discovery framing — used for metrics and heartbeat topics.
func (b *Bridge) Publish(topic string, payload []byte, qos byte, retain bool) {
	b.transmission <- message{kind: kindPublish, topic: topic, payload: payload, qos: qos, retain: retain}
}

func (b *Bridge) subscribe(topic string, delivery chan<- []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	full := b.namespace + "/" + topic
	b.registry[full] = append(b.registry[full], delivery)
}

// Deliver is called by internal/bus for every inbound message on a topic
// it has an MQTT subscription for; it forwards payload to every delivery
// channel registered for topic, in registration order.
func (b *Bridge) Deliver(topic string, payload []byte) {
	b.mu.RLock()
	chans := append([]chan<- []byte(nil), b.registry[topic]...)
	b.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- payload:
		default:
			log.Warnf("dispatch: delivery channel for %s is full, dropping message", topic)
		}
	}
}

func (b *Bridge) publishRecord(rec *record.Record) {
	if rec == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		log.Warnf("dispatch: marshal record for %s: %v", rec.MeterName, err)
		return
	}
	if err := b.publisher.Publish(b.namespace+"/raw", raw, 0, false); err != nil {
		log.Warnf("dispatch: publish raw: %v", err)
	}

	perMeter, err := json.Marshal(rec.MeteredValues)
	if err != nil {
		log.Warnf("dispatch: marshal metered values for %s: %v", rec.MeterName, err)
		return
	}
	topic := fmt.Sprintf("%s/devs/%s/%s", b.namespace, rec.Protocol.String(), rec.MeterName)
	if err := b.publisher.Publish(topic, perMeter, 0, true); err != nil {
		log.Warnf("dispatch: publish %s: %v", topic, err)
	}
}

func (b *Bridge) publishDiscovery(d *discovery.Record) {
	if d == nil {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		log.Warnf("dispatch: marshal discovery for %s: %v", d.Name, err)
		return
	}
	if err := b.publisher.Publish(d.Topic(), raw, 0, true); err != nil {
		log.Warnf("dispatch: publish discovery %s: %v", d.Topic(), err)
	}
}
