package store

// Chat is one synced conversation, unique per (SessionID, ID). PkID is
// the surrogate ordering key used for pagination.
type Chat struct {
	PkID                  int64
	SessionID             string
	ID                    string
	Name                  string
	IsGroup               bool
	UnreadCount           int
	ConversationTimestamp int64
	Archived              bool
	Pinned                bool
	MuteEndTime           int64
}

// ChatPatch is a partial chat update. Nil fields are left untouched.
// UnreadCount follows the delta rule: positive values increment the
// stored counter, zero or negative values set it absolutely.
type ChatPatch struct {
	ID                    string
	Name                  *string
	UnreadCount           *int
	ConversationTimestamp *int64
	Archived              *bool
	Pinned                *bool
	MuteEndTime           *int64
}

// Contact is one synced contact, unique per (SessionID, ID).
type Contact struct {
	PkID         int64
	SessionID    string
	ID           string
	Name         string
	PushName     string
	VerifiedName string
	ImgURL       string
	Status       string
}

// ContactPatch is a partial contact update.
type ContactPatch struct {
	ID           string
	Name         *string
	PushName     *string
	VerifiedName *string
	ImgURL       *string
	Status       *string
}

// Message is one synced message, unique per (SessionID, RemoteJID, ID).
type Message struct {
	PkID             int64
	SessionID        string
	RemoteJID        string
	ID               string
	Participant      string
	PushName         string
	FromMe           bool
	MessageType      string
	Body             string
	Status           string
	MessageTimestamp int64
}

// MessagePatch is a partial message update addressed by conversation
// and message id.
type MessagePatch struct {
	RemoteJID        string
	ID               string
	Body             *string
	Status           *string
	MessageTimestamp *int64
}

// Receipt is one delivery receipt inside a message's receipt set,
// unique per participant.
type Receipt struct {
	RemoteJID        string
	MessageID        string
	UserJID          string
	Type             string
	ReceiptTimestamp int64
}

// Reaction is one live reaction on a message. At most one row exists
// per author.
type Reaction struct {
	RemoteJID         string
	MessageID         string
	AuthorID          string
	Text              string
	ReactionTimestamp int64
}

// Participant is one member entry inside a group's participant list.
type Participant struct {
	ID           string `json:"id"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

// GroupMetadata is one synced group, unique per (SessionID, ID).
type GroupMetadata struct {
	PkID         int64
	SessionID    string
	ID           string
	Subject      string
	Owner        string
	Description  string
	Creation     int64
	Announce     bool
	Restricted   bool
	Participants []Participant
}

// GroupPatch is a partial group metadata update.
type GroupPatch struct {
	ID          string
	Subject     *string
	Owner       *string
	Description *string
	Announce    *bool
	Restricted  *bool
}

// SessionRecord is one opaque credential or config blob, unique per
// (SessionID, ID).
type SessionRecord struct {
	SessionID string
	ID        string
	Data      []byte
}

// OutboxEntry is one pending outgoing message.
type OutboxEntry struct {
	PkID         int64
	ClientMsgID  string
	SessionID    string
	RemoteJID    string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}
