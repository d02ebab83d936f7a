package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// outboxSize is how many messages are kept while the broker is unreachable.
const outboxSize = 100

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics
	// OnConnectionChange is called on every connect and connection loss.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    *logger.Logger
	notify func(bool)

	mu        sync.Mutex
	outbox    *outbox
	connected bool
	everUp    bool
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout the publisher is still
// returned; paho keeps retrying in the background and messages are
// buffered meanwhile.
func NewRealPublisher(o Options, log *logger.Logger) (*RealPublisher, error) {
	p := &RealPublisher{
		topics: o.Topics,
		log:    log,
		notify: o.OnConnectionChange,
		outbox: newOutbox(outboxSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(o.Topics.System, string(WillPayload()), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warnw("mqtt_connect_pending", "broker", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everUp
	p.everUp = true
	p.mu.Unlock()

	replayed := p.replay(func(m message) {
		// Fire and forget: paho queues these while the handler runs.
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	})

	p.log.Infow("mqtt_connected", "replay", replayed)
	if p.notify != nil {
		p.notify(true)
	}
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventReconnected})
		c.Publish(p.topics.System, 1, false, payload)
	}
}

// replay sends queued messages oldest first. The publisher stays marked
// disconnected until the outbox is empty, so a publish racing with the
// replay is queued behind older messages instead of overtaking them.
func (p *RealPublisher) replay(send func(message)) int {
	n := 0
	for {
		p.mu.Lock()
		pending := p.outbox.take()
		if len(pending) == 0 {
			p.connected = true
			p.mu.Unlock()
			return n
		}
		p.mu.Unlock()

		for _, m := range pending {
			send(m)
		}
		n += len(pending)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.log.Warnw("mqtt_connection_lost", "err", err)
	if p.notify != nil {
		p.notify(false)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.connected {
		if p.outbox.add(message{topic: topic, payload: payload, qos: qos, retained: retained}) {
			p.log.Debugw("mqtt_outbox_full", "queued", p.outbox.len(), "dropped", p.outbox.dropped)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Publish sends a gate event (QoS 0, not retained).
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(p.topics.Events, 0, false, payload)
}

// PublishSystem sends a system lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

// Dial returns a RealPublisher when o.Broker is set and a NopPublisher
// otherwise. An empty ClientID gets a random one.
func Dial(o Options, log *logger.Logger) (Telemetry, error) {
	if o.Broker == "" {
		log.Infow("mqtt_disabled")
		return NopPublisher{}, nil
	}
	if o.ClientID == "" {
		o.ClientID = "gate-" + uuid.NewString()
	}
	return NewRealPublisher(o, log)
}
