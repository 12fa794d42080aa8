package engine

import "github.com/matheus3301/wagate/internal/store"

// Event kinds published on the session bus. Data events reuse the wire
// names of the upstream protocol feed.
const (
	EventConnectionUpdate   = "connection.update"
	EventCredsUpdate        = "creds.update"
	EventHistorySet         = "messaging-history.set"
	EventChatsUpsert        = "chats.upsert"
	EventChatsUpdate        = "chats.update"
	EventChatsDelete        = "chats.delete"
	EventContactsUpsert     = "contacts.upsert"
	EventContactsUpdate     = "contacts.update"
	EventMessagesUpsert     = "messages.upsert"
	EventMessagesUpdate     = "messages.update"
	EventMessagesDelete     = "messages.delete"
	EventReceiptUpdate      = "message-receipt.update"
	EventMessagesReaction   = "messages.reaction"
	EventGroupsUpsert       = "groups.upsert"
	EventGroupsUpdate       = "groups.update"
	EventParticipantsUpdate = "group-participants.update"
)

// Phase is the engine's raw connection phase.
type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseOpen       Phase = "open"
	PhaseClose      Phase = "close"
)

// CloseReason classifies why a connection closed, deciding the retry
// policy.
type CloseReason int

const (
	// ReasonTransient closes are retried with backoff against the
	// per-session retry budget.
	ReasonTransient CloseReason = iota
	// ReasonRestartRequired closes are retried immediately without
	// consuming budget.
	ReasonRestartRequired
	// ReasonLoggedOut closes are terminal: the session is destroyed.
	ReasonLoggedOut
)

// ConnectionUpdate is the payload of connection.update events.
type ConnectionUpdate struct {
	Phase      Phase
	QR         string
	IsNewLogin bool
	Reason     CloseReason
	Message    string
}

// KeyUpdate is the payload of creds.update events: one rotated piece of
// protocol key material. Nil Data means the engine cleared the entry.
type KeyUpdate struct {
	ID   string
	Data []byte
}

// HistorySet is the payload of messaging-history.set bulk syncs. When
// IsLatest is set the batch is authoritative and replaces all prior
// records for the session.
type HistorySet struct {
	Chats    []store.Chat
	Contacts []store.Contact
	Messages []store.Message
	IsLatest bool
}

// MessagesUpsert carries incrementally delivered messages. Type is
// "notify" for live messages and "append" for offline catch-up.
type MessagesUpsert struct {
	Messages []store.Message
	Type     string
}

// MessageKey addresses one message inside a conversation.
type MessageKey struct {
	RemoteJID string
	ID        string
}

// MessagesDelete is the payload of messages.delete: either a whole
// conversation (All) or an explicit key set.
type MessagesDelete struct {
	All       bool
	RemoteJID string
	Keys      []MessageKey
}

// ReactionUpdate carries one reaction change. Empty Text removes the
// author's reaction.
type ReactionUpdate struct {
	Key       MessageKey
	AuthorID  string
	Text      string
	Timestamp int64
}

// ParticipantAction enumerates group participant mutations.
type ParticipantAction string

const (
	ParticipantAdd     ParticipantAction = "add"
	ParticipantPromote ParticipantAction = "promote"
	ParticipantDemote  ParticipantAction = "demote"
	ParticipantRemove  ParticipantAction = "remove"
)

// ParticipantsUpdate is the payload of group-participants.update.
type ParticipantsUpdate struct {
	ID           string
	Action       ParticipantAction
	Participants []string
}
