package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/hub"
	"github.com/matheus3301/wahub/internal/store"
	"github.com/matheus3301/wahub/internal/supervisor"
	"go.uber.org/zap"
)

type fakeController struct {
	createErr error
	deleted   []string
}

func (f *fakeController) Create(_ context.Context, id, _ string) error {
	return f.createErr
}

func (f *fakeController) DeletePermanently(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeController) List() ([]supervisor.InstanceView, error) {
	return []supervisor.InstanceView{{InstanceSummary: store.InstanceSummary{Instance: store.Instance{ID: "acct1"}}}}, nil
}

type fixture struct {
	srv   *Server
	db    *store.DB
	bus   *bus.Bus
	ctrl  *fakeController
	media string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mediaDir := filepath.Join(dir, "media")
	ctrl := &fakeController{}
	b := bus.New()
	srv := NewServer(ctrl, db, b, nil, Options{MediaDir: mediaDir, MediaPrefix: "/media"}, zap.NewNop())
	return &fixture{srv: srv, db: db, bus: b, ctrl: ctrl, media: mediaDir}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestListInstances(t *testing.T) {
	f := newFixture(t)
	rec, resp := f.do(t, http.MethodGet, "/api/instances", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	list, ok := resp.Data.([]any)
	if !ok || len(list) != 1 {
		t.Errorf("data = %v", resp.Data)
	}
}

func TestCreateInstanceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body string
		code int
		want string
	}{
		{"created", nil, `{"instanceId":"acct1"}`, http.StatusCreated, ""},
		{"missing id", nil, `{}`, http.StatusBadRequest, "MISSING_FIELDS"},
		{"invalid id", fmt.Errorf("%w: bad", supervisor.ErrInvalidID), `{"instanceId":"a/b"}`, http.StatusBadRequest, "INVALID_ID"},
		{"already active", &supervisor.AlreadyActiveError{ID: "acct1"}, `{"instanceId":"acct1"}`, http.StatusConflict, "ALREADY_ACTIVE"},
		{"other", fmt.Errorf("disk full"), `{"instanceId":"acct1"}`, http.StatusInternalServerError, "CREATE_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ctrl.createErr = tt.err
			rec, resp := f.do(t, http.MethodPost, "/api/instances", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.code, rec.Body)
			}
			if resp.Code != tt.want {
				t.Errorf("code = %q, want %q", resp.Code, tt.want)
			}
			if tt.want != "" && resp.Success {
				t.Error("failure reported success")
			}
		})
	}
}

func TestDeleteInstance(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodDelete, "/api/instances/acct1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(f.ctrl.deleted) != 1 || f.ctrl.deleted[0] != "acct1" {
		t.Errorf("deleted = %v", f.ctrl.deleted)
	}
}

func TestStoredDataEndpoints(t *testing.T) {
	f := newFixture(t)
	if _, err := f.db.EnsureInstance("acct1"); err != nil {
		t.Fatal(err)
	}
	if err := f.db.UpsertContacts("acct1", []store.Contact{{JID: "1@s.whatsapp.net", Name: "Ana"}}); err != nil {
		t.Fatal(err)
	}
	chat := "1@s.whatsapp.net"
	var msgs []store.Message
	for i := 1; i <= 3; i++ {
		msgs = append(msgs, store.Message{ChatJID: chat, MsgID: fmt.Sprintf("m%d", i), MessageType: "text", Content: "hi", Timestamp: int64(i * 1000)})
	}
	if err := f.db.UpsertMessages("acct1", msgs); err != nil {
		t.Fatal(err)
	}

	_, resp := f.do(t, http.MethodGet, "/api/instances/acct1/contacts", "")
	if list, _ := resp.Data.([]any); len(list) != 1 {
		t.Errorf("contacts = %v", resp.Data)
	}
	_, resp = f.do(t, http.MethodGet, "/api/instances/acct1/chats", "")
	if list, _ := resp.Data.([]any); len(list) != 1 {
		t.Errorf("chats = %v", resp.Data)
	}

	_, resp = f.do(t, http.MethodGet, "/api/instances/acct1/chats/"+chat+"/messages?before=3000&limit=10", "")
	list, _ := resp.Data.([]any)
	if len(list) != 2 {
		t.Fatalf("messages = %v", resp.Data)
	}
	if first := list[0].(map[string]any); first["id"] != "m2" {
		t.Errorf("newest first expected, got %v", first["id"])
	}

	rec, _ := f.do(t, http.MethodGet, "/api/instances/acct1/chats/"+chat+"/messages?before=soon", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad before: status = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodGet, "/api/instances/acct1/contacts?limit=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", rec.Code)
	}
}

func TestUnknownInstanceNotFound(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/instances/ghost/contacts", "/api/instances/ghost/chats", "/api/instances/ghost/chats/x/messages"} {
		rec, resp := f.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound || resp.Code != "NOT_FOUND" {
			t.Errorf("%s: status = %d, code = %q", path, rec.Code, resp.Code)
		}
	}
}

func TestEmit(t *testing.T) {
	f := newFixture(t)
	room, unsub := f.bus.Subscribe("lobby", 4)
	defer unsub()
	diag, unsubDiag := f.bus.Subscribe(bus.DiagnosticsRoom, 4)
	defer unsubDiag()

	rec, _ := f.do(t, http.MethodPost, "/api/emit", `{"roomName":"lobby","dataToEmit":{"x":1}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	select {
	case evt := <-room:
		if evt.Name != "new_server_data" {
			t.Errorf("event = %q, want default name", evt.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted event")
	}
	select {
	case evt := <-diag:
		if evt.Name != hub.EventMonitorUpdate || evt.Payload.(hub.MonitorEntry).Type != "emit" {
			t.Errorf("diagnostics = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for diagnostics entry")
	}

	rec, _ = f.do(t, http.MethodPost, "/api/emit", `{"eventName":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing room: status = %d", rec.Code)
	}
	select {
	case evt := <-diag:
		if evt.Payload.(hub.MonitorEntry).Type != "emit_error" {
			t.Errorf("diagnostics = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error entry")
	}
}

func TestServesMedia(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(filepath.Join(f.media, "acct1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.media, "acct1", "m1.jpg"), []byte("jpegdata"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, _ := f.do(t, http.MethodGet, "/media/acct1/m1.jpg", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "jpegdata" {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
}
