package bus

import "time"

// DiagnosticsRoom receives router activity and periodic instance snapshots.
const DiagnosticsRoom = "diagnostics"

// BroadcastRoom is delivered to every connected subscriber regardless of joined rooms.
const BroadcastRoom = "*"

// Event is a named notification addressed to a room.
type Event struct {
	ID        string
	Room      string
	Name      string
	Timestamp time.Time
	Payload   any
}

// InstanceRoom returns the room that carries notifications for one instance.
func InstanceRoom(id string) string {
	return "instance:" + id
}

// ClientRoom returns the private room of a single connected client.
func ClientRoom(token string) string {
	return "client:" + token
}
