package fanout

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/media"
	"github.com/matheus3301/wahub/internal/store"
	"github.com/matheus3301/wahub/internal/wa"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeDownloader struct {
	data map[string][]byte
}

func (d *fakeDownloader) DownloadMedia(_ context.Context, msg wa.Message) ([]byte, error) {
	if b, ok := d.data[msg.MsgID]; ok {
		return b, nil
	}
	return nil, errors.New("media expired")
}

type harness struct {
	db     *store.DB
	bus    *bus.Bus
	f      *Fanout
	media  string
	events <-chan bus.Event
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	db := testDB(t)
	if _, err := db.EnsureInstance("acct1"); err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	dir := t.TempDir()
	f, err := New(db, b, media.New(dir, "/media"), opts, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(f.Close)
	ch, unsub := b.Subscribe(bus.InstanceRoom("acct1"), 16)
	t.Cleanup(unsub)
	return &harness{db: db, bus: b, f: f, media: dir, events: ch}
}

func (h *harness) next(t *testing.T, name string) bus.Event {
	t.Helper()
	select {
	case evt := <-h.events:
		if evt.Name != name {
			t.Fatalf("event = %q, want %q", evt.Name, name)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for %s", name)
	}
	return bus.Event{}
}

func (h *harness) none(t *testing.T) {
	t.Helper()
	select {
	case evt := <-h.events:
		t.Fatalf("unexpected event %q", evt.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContactsPersistAndPublish(t *testing.T) {
	h := newHarness(t, Options{})

	h.f.Handle(context.Background(), "acct1", nil, wa.ContactsUpsert{Contacts: []store.Contact{
		{JID: "a@s.whatsapp.net", Name: "Ana"},
		{JID: "b@s.whatsapp.net", Notify: "Bia"},
	}})

	evt := h.next(t, EventContactsUpdate)
	p, ok := evt.Payload.(ContactsPayload)
	if !ok || p.Count != 2 || p.InstanceID != "acct1" {
		t.Errorf("payload = %#v", evt.Payload)
	}
	contacts, err := h.db.ListContacts("acct1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 2 {
		t.Errorf("stored %d contacts, want 2", len(contacts))
	}
}

func TestChatsLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.f.Handle(ctx, "acct1", nil, wa.ChatsUpsert{Chats: []store.Chat{{JID: "c@s.whatsapp.net", Name: "C"}}})
	h.next(t, EventChatsUpsert)

	pinned := true
	h.f.Handle(ctx, "acct1", nil, wa.ChatsUpdate{Chats: []store.ChatPatch{{JID: "c@s.whatsapp.net", Pinned: &pinned}}})
	h.next(t, EventChatsUpdate)
	chat, err := h.db.GetChat("acct1", "c@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if chat == nil || !chat.Pinned || chat.Name != "C" {
		t.Errorf("chat = %+v", chat)
	}

	h.f.Handle(ctx, "acct1", nil, wa.ChatsDelete{IDs: []string{"c@s.whatsapp.net", "unknown@s.whatsapp.net"}})
	evt := h.next(t, EventChatsDelete)
	if p := evt.Payload.(ChatsDeletePayload); p.Count != 2 {
		t.Errorf("delete count = %d, want 2", p.Count)
	}
	chat, err = h.db.GetChat("acct1", "c@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if chat != nil {
		t.Error("chat should be deleted")
	}
}

func TestMessagesWithMedia(t *testing.T) {
	h := newHarness(t, Options{DownloadWorkers: 2})
	dl := &fakeDownloader{data: map[string][]byte{"img1": []byte("jpegdata")}}

	h.f.Handle(context.Background(), "acct1", dl, wa.MessagesUpsert{Messages: []wa.Message{
		{ChatJID: "c@s.whatsapp.net", MsgID: "img1", MessageType: "image", Media: wa.MediaImage, Text: "caption", Timestamp: 1000},
		{ChatJID: "c@s.whatsapp.net", MsgID: "doc1", MessageType: "document", Media: wa.MediaDocument, Mimetype: "application/pdf", Text: "report", Timestamp: 2000},
		{ChatJID: "c@s.whatsapp.net", MsgID: "aud1", MessageType: "audio", Media: wa.MediaAudio, Timestamp: 3000},
		{ChatJID: "c@s.whatsapp.net", MsgID: "txt1", MessageType: "text", Text: "hi", Timestamp: 4000},
	}})

	evt := h.next(t, EventNewMessage)
	p := evt.Payload.(MessagesPayload)
	if p.Count != 4 {
		t.Fatalf("count = %d, want 4", p.Count)
	}

	want := map[string]string{
		"img1": "/media/acct1/img1.jpg",
		"doc1": "report",
		"aud1": "",
		"txt1": "hi",
	}
	msgs, err := h.db.ListMessages("acct1", "c@s.whatsapp.net", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Fatalf("stored %d messages, want 4", len(msgs))
	}
	for _, m := range msgs {
		if m.Content != want[m.MsgID] {
			t.Errorf("%s content = %q, want %q", m.MsgID, m.Content, want[m.MsgID])
		}
	}
	if _, err := os.Stat(filepath.Join(h.media, "acct1", "img1.jpg")); err != nil {
		t.Errorf("media file missing: %v", err)
	}
}

func TestMessagesWithoutPayloadDropped(t *testing.T) {
	h := newHarness(t, Options{})

	h.f.Handle(context.Background(), "acct1", nil, wa.MessagesUpsert{Messages: []wa.Message{
		{ChatJID: "c@s.whatsapp.net", MsgID: "p1", MessageType: "unknown"},
	}})

	h.none(t)
	if n, _ := h.db.MessageCount("acct1"); n != 0 {
		t.Errorf("message count = %d, want 0", n)
	}
}

func TestHistoryMediaSkippedByDefault(t *testing.T) {
	h := newHarness(t, Options{})
	dl := &fakeDownloader{data: map[string][]byte{"img1": []byte("x")}}

	h.f.Handle(context.Background(), "acct1", dl, wa.MessagesUpsert{History: true, Messages: []wa.Message{
		{ChatJID: "c@s.whatsapp.net", MsgID: "img1", MessageType: "image", Media: wa.MediaImage, Text: "old", Timestamp: 1},
	}})
	h.next(t, EventNewMessage)

	msgs, err := h.db.ListMessages("acct1", "c@s.whatsapp.net", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "old" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestStoreFailureStillPublishes(t *testing.T) {
	h := newHarness(t, Options{})

	// No instance row for ghost, so foreign keys reject the write.
	ch, unsub := h.bus.Subscribe(bus.InstanceRoom("ghost"), 4)
	defer unsub()

	h.f.Handle(context.Background(), "ghost", nil, wa.ChatsUpsert{Chats: []store.Chat{{JID: "c@s.whatsapp.net"}}})

	select {
	case evt := <-ch:
		if evt.Name != EventChatsUpsert {
			t.Errorf("event = %q", evt.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chats_upsert")
	}
}

func TestConnectionEventsIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	h.f.Handle(context.Background(), "acct1", nil, wa.ConnectionUpdate{State: wa.StateOpen})
	h.none(t)
}
