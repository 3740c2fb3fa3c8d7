package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/store"
	"github.com/matheus3301/wahub/internal/supervisor"
	"go.uber.org/zap"
)

type fakeController struct {
	mu      sync.Mutex
	created []string
	deleted []string
	err     error
}

func (f *fakeController) Create(_ context.Context, id, requester string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, id+"@"+requester)
	return f.err
}

func (f *fakeController) DeletePermanently(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeController) List() ([]supervisor.InstanceView, error) {
	return []supervisor.InstanceView{{
		InstanceSummary: store.InstanceSummary{Instance: store.Instance{ID: "acct1", Status: "connected"}, ChatsCount: 3},
		Active:          true,
	}}, nil
}

type wireFrame struct {
	Event string          `json:"event"`
	Room  string          `json:"room"`
	Data  json.RawMessage `json:"data"`
	Ack   string          `json:"ack"`
}

func newTestHub(t *testing.T) (*Hub, *bus.Bus, *fakeController, string) {
	t.Helper()
	b := bus.New()
	ctrl := &fakeController{}
	h := New(b, ctrl, zap.NewNop())
	h.Start()
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Stop()
		srv.Close()
	})
	return h, b, ctrl, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// dial connects and returns the connection with its client id.
func dial(t *testing.T, url string) (*websocket.Conn, string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	f := readEvent(t, conn, EventConnected)
	var data struct {
		ClientID string `json:"clientId"`
	}
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatal(err)
	}
	return conn, data.ClientID
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) wireFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f wireFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event == event {
			return f
		}
	}
}

// request sends a frame with an ack id and waits for the ack.
func request(t *testing.T, conn *websocket.Conn, event string, data any) AckResult {
	t.Helper()
	if err := conn.WriteJSON(Frame{Event: event, Data: data, Ack: "1"}); err != nil {
		t.Fatal(err)
	}
	f := readEvent(t, conn, EventAck)
	var res AckResult
	if err := json.Unmarshal(f.Data, &res); err != nil {
		t.Fatal(err)
	}
	return res
}

func expectSilence(t *testing.T, conn *websocket.Conn, event string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	for {
		var f wireFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Event == event {
			t.Fatalf("unexpected %s frame", event)
		}
	}
}

func TestInstanceRoomDelivery(t *testing.T) {
	_, b, _, url := newTestHub(t)
	member, _ := dial(t, url)
	other, _ := dial(t, url)

	res := request(t, member, EventJoinInstanceRoom, map[string]string{"instanceId": "acct1"})
	if !res.Success || res.Room != "instance:acct1" {
		t.Fatalf("ack = %+v", res)
	}

	b.Emit(bus.InstanceRoom("acct1"), "new_message", map[string]int{"count": 1})

	f := readEvent(t, member, "new_message")
	if f.Room != "instance:acct1" {
		t.Errorf("room = %q", f.Room)
	}
	expectSilence(t, other, "new_message")
}

func TestBroadcastReachesEveryone(t *testing.T) {
	_, b, _, url := newTestHub(t)
	a, _ := dial(t, url)
	c, _ := dial(t, url)

	b.Emit(bus.BroadcastRoom, supervisor.EventInstanceDeleted, supervisor.InstancePayload{InstanceID: "acct1"})

	readEvent(t, a, supervisor.EventInstanceDeleted)
	readEvent(t, c, supervisor.EventInstanceDeleted)
}

func TestClientRoomIsPrivate(t *testing.T) {
	_, b, _, url := newTestHub(t)
	a, tokenA := dial(t, url)
	c, _ := dial(t, url)

	b.Emit(bus.ClientRoom(tokenA), supervisor.EventQRCode, supervisor.QRPayload{InstanceID: "acct1"})

	readEvent(t, a, supervisor.EventQRCode)
	expectSilence(t, c, supervisor.EventQRCode)
}

func TestJoinAndLeaveRoom(t *testing.T) {
	_, b, _, url := newTestHub(t)
	conn, token := dial(t, url)

	if res := request(t, conn, EventJoinRoom, "lobby"); !res.Success {
		t.Fatalf("join ack = %+v", res)
	}
	b.Emit("lobby", "new_server_data", "hello")
	readEvent(t, conn, "new_server_data")

	if res := request(t, conn, EventLeaveRoom, map[string]string{"roomName": "lobby"}); !res.Success {
		t.Fatalf("leave ack = %+v", res)
	}
	if res := request(t, conn, EventLeaveRoom, map[string]string{"roomName": bus.ClientRoom(token)}); res.Success {
		t.Error("leaving the client room should fail")
	}
	b.Emit("lobby", "new_server_data", "again")
	expectSilence(t, conn, "new_server_data")
}

func TestMonitorRoomSeesActivity(t *testing.T) {
	_, _, _, url := newTestHub(t)
	watcher, _ := dial(t, url)

	if res := request(t, watcher, EventJoinMonitorRoom, nil); res.Room != bus.DiagnosticsRoom {
		t.Fatalf("ack = %+v", res)
	}

	_, token := dial(t, url)
	for {
		f := readEvent(t, watcher, EventMonitorUpdate)
		var entry MonitorEntry
		if err := json.Unmarshal(f.Data, &entry); err != nil {
			t.Fatal(err)
		}
		if entry.Type == "connect" && entry.ClientID == token {
			break
		}
	}
}

func TestCreateInstancePassesRequester(t *testing.T) {
	_, _, ctrl, url := newTestHub(t)
	conn, token := dial(t, url)

	if res := request(t, conn, EventCreateInstance, map[string]string{"instanceId": "acct1"}); !res.Success {
		t.Fatalf("ack = %+v", res)
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.created) != 1 || ctrl.created[0] != "acct1@"+token {
		t.Errorf("created = %v", ctrl.created)
	}
}

func TestCreateInstanceError(t *testing.T) {
	_, _, ctrl, url := newTestHub(t)
	ctrl.err = errors.New("disk full")
	conn, _ := dial(t, url)

	if err := conn.WriteJSON(Frame{Event: EventCreateInstance, Data: map[string]string{"instanceId": "acct1"}}); err != nil {
		t.Fatal(err)
	}
	f := readEvent(t, conn, EventCreationError)
	var p supervisor.CreationErrorPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.InstanceID != "acct1" || p.Error != "disk full" {
		t.Errorf("payload = %+v", p)
	}
}

func TestListInstances(t *testing.T) {
	_, _, _, url := newTestHub(t)
	conn, _ := dial(t, url)

	if err := conn.WriteJSON(Frame{Event: EventListInstances}); err != nil {
		t.Fatal(err)
	}
	f := readEvent(t, conn, EventInstancesList)
	var list []map[string]any
	if err := json.Unmarshal(f.Data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0]["id"] != "acct1" || list[0]["active"] != true {
		t.Errorf("list = %v", list)
	}
}

func TestDeleteInstance(t *testing.T) {
	_, _, ctrl, url := newTestHub(t)
	conn, _ := dial(t, url)

	if res := request(t, conn, EventDeleteInstance, map[string]string{"instanceId": "acct1"}); !res.Success {
		t.Fatalf("ack = %+v", res)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.deleted) != 1 || ctrl.deleted[0] != "acct1" {
		t.Errorf("deleted = %v", ctrl.deleted)
	}
}

func TestInvalidRequests(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  any
	}{
		{"missing instance id", EventJoinInstanceRoom, map[string]string{}},
		{"missing room", EventJoinRoom, map[string]string{}},
		{"unknown event", "teleport", nil},
	}
	_, _, _, url := newTestHub(t)
	conn, _ := dial(t, url)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := request(t, conn, tt.event, tt.data)
			if res.Success || res.Message == "" {
				t.Errorf("ack = %+v, want failure", res)
			}
		})
	}
}
