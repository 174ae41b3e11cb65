package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// offlineQueueSize bounds the messages kept while the broker is unreachable.
const offlineQueueSize = 100

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are queued and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client

	mu      sync.Mutex
	offline *ringBuffer

	attempts atomic.Int32
}

// NewRealPublisher creates a publisher for the given broker. It waits up to
// connectTimeout for the first connection but keeps retrying in the
// background after that, so a missing broker never blocks startup.
func NewRealPublisher(broker, clientID string, connectTimeout time.Duration) (*RealPublisher, error) {
	p := &RealPublisher{offline: newRingBuffer(offlineQueueSize)}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventOffline})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetMaxReconnectInterval(30*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		}).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			n := p.attempts.Add(1)
			log.Printf("mqtt: reconnecting (attempt %d)", n)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.attempts.Store(0)
	p.mu.Lock()
	queued := p.offline.drainAll()
	p.mu.Unlock()

	log.Printf("mqtt: connected, replaying %d queued messages", len(queued))
	for _, m := range queued {
		// Don't wait here: this runs on the paho callback goroutine.
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// PublishSession sends a session event and updates the retained state topic.
func (p *RealPublisher) PublishSession(event SessionEvent) error {
	payload, err := FormatSessionPayload(event)
	if err != nil {
		return fmt.Errorf("format session payload: %w", err)
	}
	if err := p.publish(TopicState, 1, true, payload); err != nil {
		return err
	}
	return p.publish(TopicEvents, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.offline.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// ReconnectAttempts is the number of reconnect attempts since the last
// successful connection.
func (p *RealPublisher) ReconnectAttempts() int {
	return int(p.attempts.Load())
}

// Queued returns the number of messages waiting for a connection.
func (p *RealPublisher) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offline.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
