package monitor

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
)

const logCapacity = 500

// Frame is one decoded server frame.
type Frame struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Data  any    `json:"data,omitempty"`
	Ack   string `json:"ack,omitempty"`
}

// InstanceRow is one line of the instance table.
type InstanceRow struct {
	ID            string `mapstructure:"id"`
	Status        string `mapstructure:"status"`
	UserID        string `mapstructure:"userId"`
	UserName      string `mapstructure:"userName"`
	ContactsCount int64  `mapstructure:"contactsCount"`
	ChatsCount    int64  `mapstructure:"chatsCount"`
	MessagesCount int64  `mapstructure:"messagesCount"`
	Active        bool   `mapstructure:"active"`
}

// LogLine is one entry of the live event log.
type LogLine struct {
	Time  time.Time
	Room  string
	Event string
	Text  string
}

type statusData struct {
	InstanceID string `mapstructure:"instanceId"`
	Status     string `mapstructure:"status"`
	Reason     string `mapstructure:"reason"`
}

type profileData struct {
	InstanceID string `mapstructure:"instanceId"`
	UserID     string `mapstructure:"userId"`
	UserName   string `mapstructure:"userName"`
}

type monitorData struct {
	Type     string `mapstructure:"type"`
	ClientID string `mapstructure:"clientId"`
	Room     string `mapstructure:"room"`
	Message  string `mapstructure:"message"`
}

type snapshotData struct {
	Instances []InstanceRow `mapstructure:"instances"`
	Clients   int           `mapstructure:"clients"`
}

// Model caches what the monitor shows and signals when it changed.
type Model struct {
	mu        sync.RWMutex
	instances map[string]*InstanceRow
	log       []LogLine
	clients   int
	clientID  string

	refreshCh chan struct{}
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		instances: make(map[string]*InstanceRow),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (m *Model) RefreshCh() <-chan struct{} {
	return m.refreshCh
}

func (m *Model) signalRefresh() {
	select {
	case m.refreshCh <- struct{}{}:
	default:
	}
}

// Apply folds one frame into the model. It returns instance ids whose rooms
// the monitor has not joined yet.
func (m *Model) Apply(f Frame) []string {
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		m.signalRefresh()
	}()

	switch f.Event {
	case "connected":
		var d struct {
			ClientID string `mapstructure:"clientId"`
		}
		if decode(f.Data, &d) == nil {
			m.clientID = d.ClientID
		}
		return nil

	case "instances_list":
		var rows []InstanceRow
		if err := decode(f.Data, &rows); err != nil {
			m.appendLog(f, "undecodable instance list")
			return nil
		}
		return m.replace(rows)

	case "instances_snapshot":
		var d snapshotData
		if err := decode(f.Data, &d); err != nil {
			return nil
		}
		m.clients = d.Clients
		return m.replace(d.Instances)

	case "instance_status_update":
		var d statusData
		if decode(f.Data, &d) == nil && d.InstanceID != "" {
			row := m.row(d.InstanceID)
			row.Status = d.Status
			row.Active = d.Status != "disconnected"
			text := d.Status
			if d.Reason != "" {
				text += " (" + d.Reason + ")"
			}
			m.appendLog(f, d.InstanceID+" -> "+text)
		}

	case "profile_info":
		var d profileData
		if decode(f.Data, &d) == nil && d.InstanceID != "" {
			row := m.row(d.InstanceID)
			row.UserID = d.UserID
			row.UserName = d.UserName
			m.appendLog(f, d.InstanceID+" linked to "+d.UserName)
		}

	case "instance_created":
		var d statusData
		if decode(f.Data, &d) == nil && d.InstanceID != "" {
			_, known := m.instances[d.InstanceID]
			m.row(d.InstanceID).Active = true
			m.appendLog(f, d.InstanceID+" created")
			if !known {
				return []string{d.InstanceID}
			}
		}

	case "instance_deleted":
		var d statusData
		if decode(f.Data, &d) == nil {
			delete(m.instances, d.InstanceID)
			m.appendLog(f, d.InstanceID+" deleted")
		}

	case "socket_monitor_update":
		var d monitorData
		if decode(f.Data, &d) == nil {
			text := d.Type + ": " + d.Message
			if d.Room != "" {
				text += " [" + d.Room + "]"
			}
			m.appendLog(f, text)
		}

	case "ack":

	case "qr_code":
		// The image itself is too large for the log.
		m.appendLog(f, "pairing challenge issued")

	default:
		m.appendLog(f, summarize(f.Data))
	}
	return nil
}

// replace swaps the instance table and returns ids not seen before.
func (m *Model) replace(rows []InstanceRow) []string {
	var fresh []string
	next := make(map[string]*InstanceRow, len(rows))
	for i := range rows {
		r := rows[i]
		if _, ok := m.instances[r.ID]; !ok {
			fresh = append(fresh, r.ID)
		}
		next[r.ID] = &r
	}
	m.instances = next
	return fresh
}

func (m *Model) row(id string) *InstanceRow {
	r, ok := m.instances[id]
	if !ok {
		r = &InstanceRow{ID: id}
		m.instances[id] = r
	}
	return r
}

func (m *Model) appendLog(f Frame, text string) {
	m.log = append(m.log, LogLine{Time: time.Now(), Room: f.Room, Event: f.Event, Text: text})
	if over := len(m.log) - logCapacity; over > 0 {
		m.log = slices.Delete(m.log, 0, over)
	}
}

// Instances returns the table rows sorted by id.
func (m *Model) Instances() []InstanceRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]InstanceRow, 0, len(m.instances))
	for _, r := range m.instances {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b InstanceRow) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Log returns a copy of the event log, oldest first.
func (m *Model) Log() []LogLine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.log)
}

// Clients returns the connected client count from the last snapshot.
func (m *Model) Clients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients
}

// ClientID returns this monitor's connection id.
func (m *Model) ClientID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientID
}

func decode(data, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}

func summarize(data any) string {
	switch d := data.(type) {
	case nil:
		return ""
	case map[string]any:
		if n, ok := d["count"]; ok {
			return fmt.Sprintf("%v item(s)", n)
		}
		return fmt.Sprintf("%d field(s)", len(d))
	default:
		s := fmt.Sprint(d)
		if len(s) > 80 {
			s = s[:77] + "..."
		}
		return s
	}
}
