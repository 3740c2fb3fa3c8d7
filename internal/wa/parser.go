package wa

import (
	"strings"

	"github.com/matheus3301/wahub/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// MediaKind identifies a downloadable message payload.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
	MediaSticker  MediaKind = "sticker"
)

// Message is a normalized message. Raw keeps the protocol payload for media download.
type Message struct {
	ChatJID     string
	MsgID       string
	SenderJID   string
	FromMe      bool
	MessageType string
	Text        string
	Timestamp   int64
	Status      string
	Media       MediaKind
	Mimetype    string
	Raw         *waE2E.Message
}

// HasPayload reports whether the message carries anything worth persisting.
// Protocol-only messages (revokes, key distribution, reactions) have none.
func (m Message) HasPayload() bool {
	return m.Text != "" || m.Media != MediaNone || m.MessageType != "unknown"
}

// Extension returns the file extension used when storing the message's media.
func (m Message) Extension() string {
	switch m.Media {
	case MediaImage:
		return "jpg"
	case MediaVideo:
		return "mp4"
	case MediaAudio:
		return "ogg"
	case MediaSticker:
		return "webp"
	case MediaDocument:
		_, sub, _ := strings.Cut(m.Mimetype, "/")
		sub, _, _ = strings.Cut(sub, ";")
		sub = strings.TrimSpace(sub)
		if sub == "" || strings.ContainsAny(sub, `/\`) {
			return "pdf"
		}
		return sub
	default:
		return ""
	}
}

// ToStoreMessage converts to the persistence shape with the resolved content.
func (m Message) ToStoreMessage(content string) store.Message {
	return store.Message{
		ChatJID:     m.ChatJID,
		MsgID:       m.MsgID,
		SenderJID:   m.SenderJID,
		FromMe:      m.FromMe,
		MessageType: m.MessageType,
		Content:     content,
		Timestamp:   m.Timestamp,
		Status:      m.Status,
	}
}

// ParseLiveMessage normalizes a live whatsmeow message event.
func ParseLiveMessage(evt *events.Message) Message {
	kind, mime := detectMedia(evt.Message)
	status := "received"
	if evt.Info.IsFromMe {
		status = "sent"
	}
	return Message{
		ChatJID:     evt.Info.Chat.ToNonAD().String(),
		MsgID:       evt.Info.ID,
		SenderJID:   evt.Info.Sender.ToNonAD().String(),
		FromMe:      evt.Info.IsFromMe,
		MessageType: detectMessageType(evt.Message),
		Text:        extractTextBody(evt.Message),
		Timestamp:   evt.Info.Timestamp.UnixMilli(),
		Status:      status,
		Media:       kind,
		Mimetype:    mime,
		Raw:         evt.Message,
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

func detectMedia(msg *waE2E.Message) (MediaKind, string) {
	if msg == nil {
		return MediaNone, ""
	}
	switch {
	case msg.GetImageMessage() != nil:
		return MediaImage, msg.GetImageMessage().GetMimetype()
	case msg.GetVideoMessage() != nil:
		return MediaVideo, msg.GetVideoMessage().GetMimetype()
	case msg.GetAudioMessage() != nil:
		return MediaAudio, msg.GetAudioMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		return MediaDocument, msg.GetDocumentMessage().GetMimetype()
	case msg.GetStickerMessage() != nil:
		return MediaSticker, msg.GetStickerMessage().GetMimetype()
	default:
		return MediaNone, ""
	}
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}
