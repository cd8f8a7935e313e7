package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	State         string     `json:"state"`
	Cycle         int        `json:"cycle"`
	Pressed       bool       `json:"pressed"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastToken     uint32     `json:"last_token"`
	LastSleepMs   uint32     `json:"last_sleep_ms"`
	Asleep        bool       `json:"asleep"`
	WakeAt        string     `json:"wake_at,omitempty"`
	Boots         int        `json:"boots"`
	Resets        int        `json:"resets"`
	LastReset     string     `json:"last_reset,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	AppID            string `json:"app_id"`
	Channel          uint8  `json:"channel"`
	LogicalID        string `json:"logical_id"`
	ButtonPin        uint8  `json:"button_pin"`
	SleepMs          uint32 `json:"sleep_ms"`
	SleepToleranceMs uint32 `json:"sleep_tolerance_ms"`
	TickMs           int64  `json:"tick_ms"`
	Broker           string `json:"broker"`
	HTTPPort         string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.Cycle.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:         state,
		Cycle:         snap.Cycle.Cycle,
		Pressed:       snap.Cycle.Pressed,
		LastMessage:   snap.Cycle.LastMessage,
		LastToken:     uint32(snap.Cycle.LastToken),
		LastSleepMs:   snap.Cycle.LastSleepMs,
		Asleep:        snap.Asleep,
		Boots:         snap.Boots,
		Resets:        snap.Resets,
		LastReset:     snap.LastReset,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			AppID:            fmt.Sprintf("%08x", snap.Config.AppID),
			Channel:          snap.Config.Channel,
			LogicalID:        fmt.Sprintf("%02x", snap.Config.LogicalID),
			ButtonPin:        snap.Config.ButtonPin,
			SleepMs:          snap.Config.SleepMs,
			SleepToleranceMs: snap.Config.SleepToleranceMs,
			TickMs:           snap.Config.TickMs,
			Broker:           snap.Config.Broker,
			HTTPPort:         snap.Config.HTTPPort,
		},
	}
	if snap.Asleep {
		inner.WakeAt = snap.WakeAt.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
