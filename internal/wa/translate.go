package wa

import (
	"strings"

	"github.com/matheus3301/wahub/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Translate maps one whatsmeow event to zero or more normalized events.
// Events the supervisor and fan-out do not consume map to nil.
func Translate(raw any) []Event {
	switch evt := raw.(type) {
	case *events.Connected:
		return one(ConnectionUpdate{State: StateOpen})
	case *events.PairSuccess:
		return one(CredentialsUpdate{JID: evt.ID.String(), BusinessName: evt.BusinessName})
	case *events.Disconnected:
		return one(closed(ReasonConnectionLost, ""))
	case *events.LoggedOut:
		return one(closed(ReasonLoggedOut, evt.Reason.String()))
	case *events.StreamReplaced:
		return one(closed(ReasonReplaced, ""))
	case *events.TemporaryBan:
		return one(closed(ReasonBanned, evt.String()))
	case *events.ClientOutdated:
		return one(closed(ReasonOutdated, ""))
	case *events.ConnectFailure:
		if evt.Reason.IsLoggedOut() {
			return one(closed(ReasonLoggedOut, evt.Reason.String()))
		}
		return one(closed(ReasonServerError, evt.Reason.String()))
	case *events.Message:
		msg := ParseLiveMessage(evt)
		if evt.Message == nil || !msg.HasPayload() {
			return nil
		}
		return one(MessagesUpsert{Messages: []Message{msg}})
	case *events.HistorySync:
		return translateHistory(evt.Data)
	case *events.Contact:
		name := evt.Action.GetFullName()
		if name == "" {
			name = evt.Action.GetFirstName()
		}
		return one(ContactsUpdate{Contacts: []store.Contact{{JID: jidString(evt.JID), Name: name}}})
	case *events.PushName:
		return one(ContactsUpdate{Contacts: []store.Contact{{JID: jidString(evt.JID), Notify: evt.NewPushName}}})
	case *events.BusinessName:
		return one(ContactsUpdate{Contacts: []store.Contact{{JID: jidString(evt.JID), VerifiedName: evt.NewBusinessName}}})
	case *events.Archive:
		archived := evt.Action.GetArchived()
		return one(ChatsUpdate{Chats: []store.ChatPatch{{JID: evt.JID.String(), Archived: &archived}}})
	case *events.Pin:
		pinned := evt.Action.GetPinned()
		return one(ChatsUpdate{Chats: []store.ChatPatch{{JID: evt.JID.String(), Pinned: &pinned}}})
	case *events.Mute:
		var until int64
		if evt.Action.GetMuted() {
			until = evt.Action.GetMuteEndTimestamp()
		}
		return one(ChatsUpdate{Chats: []store.ChatPatch{{JID: evt.JID.String(), MuteUntil: &until}}})
	case *events.MarkChatAsRead:
		if !evt.Action.GetRead() {
			return nil
		}
		unread := 0
		return one(ChatsUpdate{Chats: []store.ChatPatch{{JID: evt.JID.String(), UnreadCount: &unread}}})
	case *events.DeleteChat:
		return one(ChatsDelete{IDs: []string{evt.JID.String()}})
	}
	return nil
}

func one(e Event) []Event {
	return []Event{e}
}

func closed(reason DisconnectReason, detail string) ConnectionUpdate {
	return ConnectionUpdate{State: StateClose, Reason: reason, Detail: detail}
}

func jidString(jid types.JID) string {
	return jid.ToNonAD().String()
}

// translateHistory splits a history blob into chat, contact and message batches.
func translateHistory(data *waHistorySync.HistorySync) []Event {
	if data == nil {
		return nil
	}

	var chats []store.Chat
	var msgs []Message
	for _, conv := range data.GetConversations() {
		chatJID := conv.GetID()
		if chatJID == "" {
			continue
		}
		chats = append(chats, store.Chat{
			JID:            chatJID,
			Name:           conv.GetName(),
			ConversationTS: int64(conv.GetConversationTimestamp()) * 1000,
			UnreadCount:    int(conv.GetUnreadCount()),
			Archived:       conv.GetArchived(),
			Pinned:         conv.GetPinned() > 0,
			MuteUntil:      int64(conv.GetMuteEndTime()) * 1000,
		})
		for _, hm := range conv.GetMessages() {
			if msg, ok := parseHistoryMessage(chatJID, hm.GetMessage()); ok {
				msgs = append(msgs, msg)
			}
		}
	}

	var contacts []store.Contact
	for _, pn := range data.GetPushnames() {
		if pn.GetID() == "" || pn.GetPushname() == "" {
			continue
		}
		contacts = append(contacts, store.Contact{JID: pn.GetID(), Notify: pn.GetPushname()})
	}

	var out []Event
	if len(chats) > 0 {
		out = append(out, ChatsUpsert{Chats: chats})
	}
	if len(contacts) > 0 {
		out = append(out, ContactsUpsert{Contacts: contacts})
	}
	if len(msgs) > 0 {
		out = append(out, MessagesUpsert{Messages: msgs, History: true})
	}
	return out
}

func parseHistoryMessage(chatJID string, wmi *waWeb.WebMessageInfo) (Message, bool) {
	if wmi == nil || wmi.GetMessage() == nil || wmi.GetMessageStubType() != 0 {
		return Message{}, false
	}
	key := wmi.GetKey()
	raw := unwrap(wmi.GetMessage())

	sender := key.GetParticipant()
	if sender == "" {
		sender = wmi.GetParticipant()
	}
	if sender == "" && !key.GetFromMe() {
		sender = chatJID
	}

	kind, mime := detectMedia(raw)
	msg := Message{
		ChatJID:     chatJID,
		MsgID:       key.GetID(),
		SenderJID:   sender,
		FromMe:      key.GetFromMe(),
		MessageType: detectMessageType(raw),
		Text:        extractTextBody(raw),
		Timestamp:   int64(wmi.GetMessageTimestamp()) * 1000,
		Status:      strings.ToLower(wmi.GetStatus().String()),
		Media:       kind,
		Mimetype:    mime,
		Raw:         raw,
	}
	if msg.MsgID == "" || !msg.HasPayload() {
		return Message{}, false
	}
	return msg, true
}

// unwrap strips the container messages history sync does not unwrap for us.
func unwrap(msg *waE2E.Message) *waE2E.Message {
	for range 4 {
		switch {
		case msg.GetDeviceSentMessage().GetMessage() != nil:
			msg = msg.GetDeviceSentMessage().GetMessage()
		case msg.GetEphemeralMessage().GetMessage() != nil:
			msg = msg.GetEphemeralMessage().GetMessage()
		case msg.GetViewOnceMessage().GetMessage() != nil:
			msg = msg.GetViewOnceMessage().GetMessage()
		case msg.GetViewOnceMessageV2().GetMessage() != nil:
			msg = msg.GetViewOnceMessageV2().GetMessage()
		case msg.GetDocumentWithCaptionMessage().GetMessage() != nil:
			msg = msg.GetDocumentWithCaptionMessage().GetMessage()
		default:
			return msg
		}
	}
	return msg
}
