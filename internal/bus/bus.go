// Package bus implements dispatch.Publisher over
// github.com/eclipse/paho.mqtt.golang, and routes the inbound topics
// spec.md §6 names (oms_input, sml_input, iec62056_input, mgt/command)
// into the dispatch bridge's delivery-channel registry.
package bus

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Hessdev-de/energy2mqtt/internal/config"
	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

// Deliverer is the subset of *dispatch.Bridge the bus needs to forward
// inbound messages into the registry.
type Deliverer interface {
	Deliver(topic string, payload []byte)
}

// Client wraps a paho.mqtt.golang client as the concrete, swappable
// message-bus collaborator named in spec.md §1.
type Client struct {
	inner     mqtt.Client
	namespace string
}

// Connect dials broker with the given MQTT config and namespace, and
// subscribes to every inbound topic the core consumes, forwarding each to
// deliverer.
func Connect(cfg config.MQTTConfig, namespace string, deliverer Deliverer) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	inner := mqtt.NewClient(opts)
	if token := inner.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("bus: connecting to %s: %w", cfg.Broker, token.Error())
	}

	c := &Client{inner: inner, namespace: namespace}

	inbound := []string{
		namespace + "/oms_input",
		namespace + "/sml_input",
		namespace + "/iec62056_input",
		namespace + "/mgt/command",
	}
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		deliverer.Deliver(msg.Topic(), msg.Payload())
	}
	for _, topic := range inbound {
		if token := inner.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			log.Warnf("bus: subscribing to %s: %v", topic, token.Error())
		}
	}

	return c, nil
}

// Publish implements dispatch.Publisher.
func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool) error {
	token := c.inner.Publish(topic, qos, retain, payload)
	token.Wait()
	return token.Error()
}

func (c *Client) Disconnect() {
	c.inner.Disconnect(250)
}
