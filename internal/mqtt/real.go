package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/button-node/internal/logic"
)

// inFlight is how many deliveries are remembered for completion polling.
const inFlight = 16

// RealTransmitter sends node packets through an actual MQTT broker.
// Each Send publishes on a background goroutine: after the initial delay the
// packet goes out once plus Retry times, RetrySpacingMs apart. The token
// completes when every send was accepted by the client.
type RealTransmitter struct {
	client         paho.Client
	net            Network
	source         uint8
	publishTimeout time.Duration

	mu       sync.Mutex
	rng      logic.Random
	next     logic.CompletionToken
	inflight *deliveryRing
	wg       sync.WaitGroup
}

// NewRealTransmitter creates a transmitter connected to the given broker.
// source is the logical id of this node, used for system topics.
func NewRealTransmitter(broker string, net Network, source uint8, rng logic.Random) (*RealTransmitter, error) {
	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("button-node-%02x-%s", source, uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(SystemTopic(net, source), will, 1, true)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealTransmitter{
		client:         client,
		net:            net,
		source:         source,
		publishTimeout: 50 * time.Millisecond,
		rng:            rng,
		inflight:       newDeliveryRing(inFlight),
	}, nil
}

// Send queues pkt and returns its completion token.
func (t *RealTransmitter) Send(pkt logic.Packet) (logic.CompletionToken, error) {
	if !t.client.IsConnectionOpen() {
		return 0, ErrNotConnected
	}

	payload := make([]byte, len(pkt.Payload))
	copy(payload, pkt.Payload)
	topic := PacketTopic(t.net, pkt.Source, pkt.Dest)

	t.mu.Lock()
	d := &delivery{token: t.next}
	t.next++
	t.inflight.push(d)
	delay := time.Duration(logic.SendDelay(pkt.Delay, t.rng)) * time.Millisecond
	t.mu.Unlock()

	spacing := time.Duration(pkt.Delay.RetrySpacingMs) * time.Millisecond
	t.wg.Add(1)
	go t.deliver(d, topic, payload, int(pkt.Retry)+1, delay, spacing)

	return d.token, nil
}

func (t *RealTransmitter) deliver(d *delivery, topic string, payload []byte, sends int, delay, spacing time.Duration) {
	defer t.wg.Done()

	if delay > 0 {
		time.Sleep(delay)
	}

	failed := 0
	for i := 0; i < sends; i++ {
		if i > 0 && spacing > 0 {
			time.Sleep(spacing)
		}
		// QoS 0 (at-most-once), not retained, like a radio frame
		token := t.client.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(t.publishTimeout) {
			log.Printf("mqtt: token %d send %d/%d: publish timeout", d.token, i+1, sends)
			failed++
			continue
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: token %d send %d/%d: %v", d.token, i+1, sends, err)
			failed++
		}
	}

	if failed == 0 {
		d.done.Store(true)
	}
}

// IsComplete reports whether every send of tok was accepted.
// Unknown and forgotten tokens are never complete.
func (t *RealTransmitter) IsComplete(tok logic.CompletionToken) bool {
	t.mu.Lock()
	d := t.inflight.find(tok)
	t.mu.Unlock()
	return d != nil && d.done.Load()
}

// PublishSystem sends a node lifecycle event to the MQTT broker.
func (t *RealTransmitter) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	token := t.client.Publish(SystemTopic(t.net, t.source), 1, event.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}

	return nil
}

// IsConnected reports whether the broker link is up.
func (t *RealTransmitter) IsConnected() bool {
	return t.client.IsConnectionOpen()
}

// Close waits for pending deliveries and disconnects from the broker.
func (t *RealTransmitter) Close() error {
	t.wg.Wait()
	t.client.Disconnect(250)
	return nil
}
