package fanout

import "github.com/matheus3301/wahub/internal/store"

type ContactsPayload struct {
	InstanceID string          `json:"instanceId"`
	Contacts   []store.Contact `json:"contacts"`
	Count      int             `json:"count"`
}

type ChatsPayload struct {
	InstanceID string       `json:"instanceId"`
	Chats      []store.Chat `json:"chats"`
	Count      int          `json:"count"`
}

type ChatPatchesPayload struct {
	InstanceID string            `json:"instanceId"`
	Chats      []store.ChatPatch `json:"chats"`
	Count      int               `json:"count"`
}

type ChatsDeletePayload struct {
	InstanceID string   `json:"instanceId"`
	ChatIDs    []string `json:"chatIds"`
	Count      int      `json:"count"`
}

type MessagesPayload struct {
	InstanceID string          `json:"instanceId"`
	Messages   []store.Message `json:"messages"`
	Count      int             `json:"count"`
}
