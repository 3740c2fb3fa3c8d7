package store

// Instance is one persisted WhatsApp account row.
type Instance struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	AvatarURL string `json:"profilePictureUrl"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// InstanceSummary is the instance read model with derived counts.
type InstanceSummary struct {
	Instance
	ContactsCount int64 `json:"contactsCount"`
	ChatsCount    int64 `json:"chatsCount"`
	MessagesCount int64 `json:"messagesCount"`
}

// Profile holds the linked-account fields written once an instance connects.
type Profile struct {
	UserID    string
	UserName  string
	AvatarURL string
}

// Contact represents a synced contact.
type Contact struct {
	JID          string `json:"id"`
	Name         string `json:"name,omitempty"`
	Notify       string `json:"notify,omitempty"`
	VerifiedName string `json:"verifiedName,omitempty"`
	Status       string `json:"status,omitempty"`
	AvatarURL    string `json:"imgUrl,omitempty"`
}

// Chat represents a synced chat.
type Chat struct {
	JID            string `json:"id"`
	Name           string `json:"name,omitempty"`
	ConversationTS int64  `json:"conversationTimestamp"`
	UnreadCount    int    `json:"unreadCount"`
	Archived       bool   `json:"archived"`
	Pinned         bool   `json:"pinned"`
	MuteUntil      int64  `json:"muteEndTime"`
}

// ChatPatch carries a partial chat update. Nil fields are left untouched.
type ChatPatch struct {
	JID            string  `json:"id"`
	Name           *string `json:"name,omitempty"`
	ConversationTS *int64  `json:"conversationTimestamp,omitempty"`
	UnreadCount    *int    `json:"unreadCount,omitempty"`
	Archived       *bool   `json:"archived,omitempty"`
	Pinned         *bool   `json:"pinned,omitempty"`
	MuteUntil      *int64  `json:"muteEndTime,omitempty"`
}

// Message represents a synced message. Content is the media reference when
// media was stored, otherwise the text or caption.
type Message struct {
	ChatJID     string `json:"chatId"`
	MsgID       string `json:"id"`
	SenderJID   string `json:"senderId"`
	FromMe      bool   `json:"fromMe"`
	MessageType string `json:"messageType"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
	Status      string `json:"status"`
}
