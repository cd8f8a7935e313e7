// Package mqtt carries node packets over an MQTT broker, which stands in for
// the radio network, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/button-node/internal/logic"
)

// TopicPrefix is the root of every topic the node publishes to.
const TopicPrefix = "twelite"

// ErrNotConnected is returned by Send while the broker link is down.
var ErrNotConnected = errors.New("mqtt: not connected")

// Network identifies the group a node belongs to.
type Network struct {
	AppID   uint32
	Channel uint8
}

// PacketTopic returns the topic for a packet from src to dst:
// twelite/<appid>/<channel>/<src>/<dst>, ids in lowercase hex.
func PacketTopic(net Network, src uint8, dst logic.Destination) string {
	return fmt.Sprintf("%s/%08x/%d/%02x/%02x", TopicPrefix, net.AppID, net.Channel, src, uint32(dst))
}

// SystemTopic returns the topic for lifecycle events of node src.
func SystemTopic(net Network, src uint8) string {
	return fmt.Sprintf("%s/%08x/%d/%02x/system", TopicPrefix, net.AppID, net.Channel, src)
}

// Address is the addressing decoded from a packet topic.
type Address struct {
	Network Network
	Source  uint8
	Dest    logic.Destination
}

// ParsePacketTopic is the inverse of PacketTopic.
func ParsePacketTopic(topic string) (Address, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != TopicPrefix {
		return Address{}, fmt.Errorf("not a packet topic: %q", topic)
	}
	appID, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return Address{}, fmt.Errorf("app id: %w", err)
	}
	ch, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return Address{}, fmt.Errorf("channel: %w", err)
	}
	src, err := strconv.ParseUint(parts[3], 16, 8)
	if err != nil {
		return Address{}, fmt.Errorf("source: %w", err)
	}
	dst, err := strconv.ParseUint(parts[4], 16, 32)
	if err != nil {
		return Address{}, fmt.Errorf("destination: %w", err)
	}
	return Address{
		Network: Network{AppID: uint32(appID), Channel: uint8(ch)},
		Source:  uint8(src),
		Dest:    logic.Destination(dst),
	}, nil
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemPublisher publishes node lifecycle events.
type SystemPublisher interface {
	PublishSystem(event SystemEvent) error
}

// SystemEvent represents a node lifecycle event (e.g., startup, reset, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "RESET", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM", or the fatal error for RESET
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RESET) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
