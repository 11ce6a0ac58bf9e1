package models

import (
	"fmt"

	"github.com/goccy/go-json"
)

// MessageType discriminates push envelopes on the stream channel.
type MessageType string

const (
	MessageInit      MessageType = "init"
	MessageIoTEvent  MessageType = "iot_event"
	MessageNewDevice MessageType = "new_device"
)

// StreamMessage is one envelope received on the push channel. The payload
// shape depends on the type: init carries the full collection inline,
// iot_event carries an event payload plus an optional updated device, and
// new_device carries a device payload.
type StreamMessage struct {
	Type         MessageType     `json:"type"`
	Devices      []Device        `json:"devices,omitempty"`
	RecentEvents []Event         `json:"recent_events,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Device       *Device         `json:"device,omitempty"`
}

// EventPayload decodes the payload of an iot_event envelope.
func (m *StreamMessage) EventPayload() (*Event, error) {
	if m.Type != MessageIoTEvent {
		return nil, fmt.Errorf("payload of %q message is not an event", m.Type)
	}
	var ev Event
	if err := json.Unmarshal(m.Payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	return &ev, nil
}

// DevicePayload decodes the payload of a new_device envelope.
func (m *StreamMessage) DevicePayload() (*Device, error) {
	if m.Type != MessageNewDevice {
		return nil, fmt.Errorf("payload of %q message is not a device", m.Type)
	}
	var dev Device
	if err := json.Unmarshal(m.Payload, &dev); err != nil {
		return nil, fmt.Errorf("decode device payload: %w", err)
	}
	return &dev, nil
}

// DecodeStreamMessage parses one raw frame from the push channel into a
// typed envelope. Unknown types are surfaced as an error so callers can
// drop and log them without tearing down the connection.
func DecodeStreamMessage(data []byte) (*StreamMessage, error) {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode stream envelope: %w", err)
	}
	switch msg.Type {
	case MessageInit, MessageIoTEvent, MessageNewDevice:
		return &msg, nil
	default:
		return nil, fmt.Errorf("unknown stream message type %q", msg.Type)
	}
}
