package hub

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Inbound event names.
const (
	EventJoinInstanceRoom = "join_instance_room"
	EventLeaveRoom        = "leave_room"
	EventJoinRoom         = "join_room"
	EventJoinMonitorRoom  = "join_internal_monitor_room"
	EventCreateInstance   = "create_instance"
	EventListInstances    = "list_instances"
	EventDeleteInstance   = "delete_instance"
)

// Outbound event names produced by the hub itself.
const (
	EventConnected      = "connected"
	EventAck            = "ack"
	EventInstancesList  = "instances_list"
	EventCreationError  = "instance_creation_error"
	EventDeletionError  = "instance_deletion_error"
	EventMonitorUpdate  = "socket_monitor_update"
	EventInvalidRequest = "invalid_request"
)

// Frame is the JSON envelope exchanged over the socket in both directions.
type Frame struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Data  any    `json:"data,omitempty"`
	Ack   string `json:"ack,omitempty"`
}

// AckResult is the data of an ack frame.
type AckResult struct {
	Success bool   `json:"success"`
	Room    string `json:"room,omitempty"`
	Message string `json:"message,omitempty"`
}

// MonitorEntry is one diagnostics log line.
type MonitorEntry struct {
	Type      string    `json:"type"`
	ClientID  string    `json:"clientId,omitempty"`
	Room      string    `json:"room,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type instanceRequest struct {
	InstanceID string `mapstructure:"instanceId"`
}

type roomRequest struct {
	RoomName string `mapstructure:"roomName"`
}

// decode maps a frame's loosely typed data onto a request struct. A bare
// string is accepted as the single field value for the room requests.
func decode(data any, out any) error {
	if s, ok := data.(string); ok {
		switch v := out.(type) {
		case *roomRequest:
			v.RoomName = s
			return nil
		case *instanceRequest:
			v.InstanceID = s
			return nil
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
