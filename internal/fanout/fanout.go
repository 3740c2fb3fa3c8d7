// Package fanout turns protocol session data events into stored rows and
// room notifications.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/media"
	"github.com/matheus3301/wahub/internal/store"
	"github.com/matheus3301/wahub/internal/wa"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Notification names published to an instance room.
const (
	EventContactsUpdate = "contacts_update"
	EventChatsUpsert    = "chats_upsert"
	EventChatsUpdate    = "chats_update"
	EventChatsDelete    = "chats_delete"
	EventNewMessage     = "new_message"
)

const downloadTimeout = 2 * time.Minute

// Downloader fetches the media attached to a message.
type Downloader interface {
	DownloadMedia(ctx context.Context, msg wa.Message) ([]byte, error)
}

// Options tunes the fan-out.
type Options struct {
	DownloadWorkers int
	HistoryMedia    bool
}

// Fanout persists data events and publishes one batched notification per event.
// Store failures are logged and never stop the notification.
type Fanout struct {
	db     *store.DB
	bus    *bus.Bus
	media  *media.Store
	pool   *ants.Pool
	opts   Options
	logger *zap.Logger
}

// New creates a fan-out with a bounded media download pool.
func New(db *store.DB, b *bus.Bus, m *media.Store, opts Options, logger *zap.Logger) (*Fanout, error) {
	if opts.DownloadWorkers <= 0 {
		opts.DownloadWorkers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(opts.DownloadWorkers)
	if err != nil {
		return nil, fmt.Errorf("create download pool: %w", err)
	}
	return &Fanout{db: db, bus: b, media: m, pool: pool, opts: opts, logger: logger}, nil
}

// Close releases the download pool.
func (f *Fanout) Close() {
	f.pool.Release()
}

// Handle processes one data event. Connection events are not data and are ignored.
func (f *Fanout) Handle(ctx context.Context, instanceID string, dl Downloader, evt wa.Event) {
	switch e := evt.(type) {
	case wa.ContactsUpsert:
		f.Contacts(instanceID, e.Contacts)
	case wa.ContactsUpdate:
		f.Contacts(instanceID, e.Contacts)
	case wa.ChatsUpsert:
		f.ChatsUpsert(instanceID, e.Chats)
	case wa.ChatsUpdate:
		f.ChatsUpdate(instanceID, e.Chats)
	case wa.ChatsDelete:
		f.ChatsDelete(instanceID, e.IDs)
	case wa.MessagesUpsert:
		f.Messages(ctx, instanceID, dl, e.Messages, e.History)
	}
}

// Contacts upserts a contact batch and publishes contacts_update.
func (f *Fanout) Contacts(instanceID string, contacts []store.Contact) {
	if len(contacts) == 0 {
		return
	}
	if err := f.db.UpsertContacts(instanceID, contacts); err != nil {
		f.logger.Error("failed to store contacts", zap.String("instance", instanceID), zap.Error(err))
	}
	f.bus.Emit(bus.InstanceRoom(instanceID), EventContactsUpdate, ContactsPayload{
		InstanceID: instanceID,
		Contacts:   contacts,
		Count:      len(contacts),
	})
}

// ChatsUpsert upserts a chat batch and publishes chats_upsert.
func (f *Fanout) ChatsUpsert(instanceID string, chats []store.Chat) {
	if len(chats) == 0 {
		return
	}
	if err := f.db.UpsertChats(instanceID, chats); err != nil {
		f.logger.Error("failed to store chats", zap.String("instance", instanceID), zap.Error(err))
	}
	f.bus.Emit(bus.InstanceRoom(instanceID), EventChatsUpsert, ChatsPayload{
		InstanceID: instanceID,
		Chats:      chats,
		Count:      len(chats),
	})
}

// ChatsUpdate applies partial chat updates and publishes chats_update.
func (f *Fanout) ChatsUpdate(instanceID string, patches []store.ChatPatch) {
	if len(patches) == 0 {
		return
	}
	if err := f.db.PatchChats(instanceID, patches); err != nil {
		f.logger.Error("failed to update chats", zap.String("instance", instanceID), zap.Error(err))
	}
	f.bus.Emit(bus.InstanceRoom(instanceID), EventChatsUpdate, ChatPatchesPayload{
		InstanceID: instanceID,
		Chats:      patches,
		Count:      len(patches),
	})
}

// ChatsDelete hard-deletes chats and publishes chats_delete. Unknown ids are ignored.
func (f *Fanout) ChatsDelete(instanceID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	if _, err := f.db.DeleteChats(instanceID, ids); err != nil {
		f.logger.Error("failed to delete chats", zap.String("instance", instanceID), zap.Error(err))
	}
	f.bus.Emit(bus.InstanceRoom(instanceID), EventChatsDelete, ChatsDeletePayload{
		InstanceID: instanceID,
		ChatIDs:    ids,
		Count:      len(ids),
	})
}

// Messages stores a message batch and publishes new_message. Media is
// materialized first; a failed download keeps the message with its text.
// Messages without payload are dropped.
func (f *Fanout) Messages(ctx context.Context, instanceID string, dl Downloader, msgs []wa.Message, history bool) {
	var kept []wa.Message
	for _, m := range msgs {
		if m.HasPayload() {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return
	}

	refs := make([]string, len(kept))
	if dl != nil && (!history || f.opts.HistoryMedia) {
		f.downloadAll(ctx, instanceID, dl, kept, refs)
	}

	out := make([]store.Message, len(kept))
	for i, m := range kept {
		content := refs[i]
		if content == "" {
			content = m.Text
		}
		out[i] = m.ToStoreMessage(content)
	}

	if err := f.db.UpsertMessages(instanceID, out); err != nil {
		f.logger.Error("failed to store messages", zap.String("instance", instanceID), zap.Int("count", len(out)), zap.Error(err))
	} else if history {
		f.logger.Info("history batch stored", zap.String("instance", instanceID), zap.Int("messages", len(out)))
	}
	f.bus.Emit(bus.InstanceRoom(instanceID), EventNewMessage, MessagesPayload{
		InstanceID: instanceID,
		Messages:   out,
		Count:      len(out),
	})
}

// downloadAll fills refs[i] with the stored media reference for msgs[i].
func (f *Fanout) downloadAll(ctx context.Context, instanceID string, dl Downloader, msgs []wa.Message, refs []string) {
	var wg sync.WaitGroup
	for i, m := range msgs {
		if m.Media == wa.MediaNone {
			continue
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			refs[i] = f.download(ctx, instanceID, dl, m)
		}
		if err := f.pool.Submit(task); err != nil {
			wg.Done()
			f.logger.Warn("media download not scheduled", zap.String("instance", instanceID), zap.String("msg_id", m.MsgID), zap.Error(err))
		}
	}
	wg.Wait()
}

func (f *Fanout) download(ctx context.Context, instanceID string, dl Downloader, m wa.Message) string {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	data, err := dl.DownloadMedia(ctx, m)
	if err != nil {
		f.logger.Warn("media download failed", zap.String("instance", instanceID), zap.String("msg_id", m.MsgID), zap.Error(err))
		return ""
	}
	ref, err := f.media.Save(instanceID, m.MsgID, m.Extension(), data)
	if err != nil {
		f.logger.Warn("media save failed", zap.String("instance", instanceID), zap.String("msg_id", m.MsgID), zap.Error(err))
		return ""
	}
	return ref
}
