// Package broker runs an embedded MQTT broker that plays the parent/gateway
// side of the network: it accepts node connections and decodes the packets
// they broadcast.
package broker

import (
	"bytes"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/sweeney/button-node/internal/logic"
	"github.com/sweeney/button-node/internal/mqtt"
)

// maxHeard bounds the packet history kept for inspection.
const maxHeard = 64

// Heard is one node packet seen by the gateway.
type Heard struct {
	Received    time.Time
	Address     mqtt.Address
	Message     string
	TimestampMs uint32
}

// Broker is an in-process MQTT broker with a packet decoding hook.
type Broker struct {
	server *mochi.Server
	addr   string
	hook   *packetHook
}

// New creates a broker listening on addr (e.g. ":1883"). Call Serve to start it.
func New(addr string) (*Broker, error) {
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(log.Writer(), &slog.HandlerOptions{Level: slog.LevelWarn})),
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("add auth hook: %w", err)
	}

	hook := &packetHook{now: time.Now}
	if err := server.AddHook(hook, nil); err != nil {
		return nil, fmt.Errorf("add packet hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "gateway",
		Address: addr,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	return &Broker{server: server, addr: addr, hook: hook}, nil
}

// Serve starts accepting connections. It does not block.
func (b *Broker) Serve() error {
	return b.server.Serve()
}

// Close stops the broker and disconnects all clients.
func (b *Broker) Close() error {
	return b.server.Close()
}

// Addr returns the listen address.
func (b *Broker) Addr() string {
	return b.addr
}

// Heard returns the packets decoded so far, oldest first.
func (b *Broker) Heard() []Heard {
	return b.hook.snapshot()
}

// packetHook decodes node packets as they are published.
type packetHook struct {
	mochi.HookBase
	now func() time.Time

	mu    sync.Mutex
	heard []Heard
}

func (h *packetHook) ID() string {
	return "button-node-packets"
}

func (h *packetHook) Provides(b byte) bool {
	return bytes.Contains([]byte{mochi.OnPublished}, []byte{b})
}

// OnPublished runs after the broker accepted a publish.
func (h *packetHook) OnPublished(cl *mochi.Client, pk packets.Packet) {
	addr, err := mqtt.ParsePacketTopic(pk.TopicName)
	if err != nil {
		// system events and foreign traffic
		return
	}
	msg, ts, err := logic.DecodePayload(pk.Payload)
	if err != nil {
		log.Printf("gateway: bad packet on %s: %v", pk.TopicName, err)
		return
	}

	log.Printf("gateway: heard %q ts=%d from %02x to %02x", msg, ts, addr.Source, uint32(addr.Dest))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.heard = append(h.heard, Heard{
		Received:    h.now(),
		Address:     addr,
		Message:     msg,
		TimestampMs: ts,
	})
	if len(h.heard) > maxHeard {
		h.heard = h.heard[len(h.heard)-maxHeard:]
	}
}

func (h *packetHook) snapshot() []Heard {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Heard, len(h.heard))
	copy(out, h.heard)
	return out
}
