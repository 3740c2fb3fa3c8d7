package wa

import "github.com/matheus3301/wahub/internal/store"

// Event is one normalized protocol session event. Concrete types are listed below.
type Event interface {
	isEvent()
}

// ConnectionState is the transport state carried by a ConnectionUpdate.
type ConnectionState string

const (
	StateOpen    ConnectionState = "open"
	StateClosing ConnectionState = "closing"
	StateClose   ConnectionState = "close"
)

// ReasonKind classifies why a session closed.
type ReasonKind int

const (
	// Inert closures leave the instance disconnected until it is recreated.
	Inert ReasonKind = iota
	// Recoverable closures are retried after a fixed delay.
	Recoverable
	// Terminal closures delete the instance permanently.
	Terminal
)

func (k ReasonKind) String() string {
	switch k {
	case Recoverable:
		return "recoverable"
	case Terminal:
		return "terminal"
	default:
		return "inert"
	}
}

// DisconnectReason names why a session closed.
type DisconnectReason string

const (
	ReasonLoggedOut       DisconnectReason = "logged-out"
	ReasonConnectionLost  DisconnectReason = "connection-lost"
	ReasonQRTimeout       DisconnectReason = "qr-timeout"
	ReasonServerError     DisconnectReason = "server-error"
	ReasonRestartRequired DisconnectReason = "restart-required"
	ReasonReplaced        DisconnectReason = "replaced"
	ReasonBanned          DisconnectReason = "banned"
	ReasonOutdated        DisconnectReason = "outdated"
	ReasonUnknown         DisconnectReason = "unknown"
)

// Kind classifies the reason.
func (r DisconnectReason) Kind() ReasonKind {
	switch r {
	case ReasonLoggedOut:
		return Terminal
	case ReasonConnectionLost, ReasonQRTimeout, ReasonServerError, ReasonRestartRequired:
		return Recoverable
	default:
		return Inert
	}
}

// ConnectionUpdate reports a transport change. A pairing challenge arrives as an
// update with QR set and an empty State.
type ConnectionUpdate struct {
	State  ConnectionState
	QR     string
	Reason DisconnectReason
	Detail string
}

// CredentialsUpdate reports that pairing stored new credentials.
type CredentialsUpdate struct {
	JID          string
	BusinessName string
}

// MessagesUpsert carries new or history-synced messages in emission order.
type MessagesUpsert struct {
	Messages []Message
	History  bool
}

type ContactsUpsert struct {
	Contacts []store.Contact
}

// ContactsUpdate carries partial contact changes. Empty fields mean unchanged.
type ContactsUpdate struct {
	Contacts []store.Contact
}

type ChatsUpsert struct {
	Chats []store.Chat
}

type ChatsUpdate struct {
	Chats []store.ChatPatch
}

type ChatsDelete struct {
	IDs []string
}

func (ConnectionUpdate) isEvent()  {}
func (CredentialsUpdate) isEvent() {}
func (MessagesUpsert) isEvent()    {}
func (ContactsUpsert) isEvent()    {}
func (ContactsUpdate) isEvent()    {}
func (ChatsUpsert) isEvent()       {}
func (ChatsUpdate) isEvent()       {}
func (ChatsDelete) isEvent()       {}
