package model

import "time"

// ReceiptState is the per-recipient progress of a message. States only move
// forward: none -> delivered -> seen.
type ReceiptState int

const (
	ReceiptNone ReceiptState = iota
	ReceiptDelivered
	ReceiptSeen
)

func (s ReceiptState) String() string {
	switch s {
	case ReceiptDelivered:
		return StatusDelivered
	case ReceiptSeen:
		return StatusSeen
	default:
		return StatusSent
	}
}

const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusSeen      = "seen"
)

type MediaType string

const (
	MediaNone     MediaType = ""
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

// Media is an opaque reference to an uploaded file.
type Media struct {
	URL  string    `json:"url,omitempty"`
	Name string    `json:"name,omitempty"`
	Mime string    `json:"mime,omitempty"`
	Size int64     `json:"size,omitempty"`
	Type MediaType `json:"type,omitempty"`
}

func (m Media) Empty() bool { return m.URL == "" }

// Reply is a snapshot of the quoted message taken at send time.
type Reply struct {
	MessageID int64     `json:"message_id,string"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content,omitempty"`
	MediaURL  string    `json:"media_url,omitempty"`
	MediaType MediaType `json:"media_type,omitempty"`
}

type Message struct {
	ID             int64  `json:"id,string"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	// Empty for group messages.
	ReceiverID string `json:"receiver_id,omitempty"`
	IsGroup    bool   `json:"is_group"`
	Content    string `json:"content"`
	Media      Media  `json:"media"`
	ReplyTo    *Reply `json:"reply_to,omitempty"`

	IsForwarded   bool   `json:"is_forwarded,omitempty"`
	ForwardedFrom string `json:"forwarded_from,omitempty"`

	DeletedBy          []string `json:"-"`
	DeletedForEveryone bool     `json:"deleted_for_everyone"`
	StarredBy          []string `json:"-"`

	// Receipts holds the tagged state of every recipient that has one.
	// DeliveredTo and SeenBy are views over it.
	Receipts map[string]ReceiptState `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// ReceiptFor returns the receipt state for userID. The sender never has one.
func (m *Message) ReceiptFor(userID string) ReceiptState {
	if userID == m.SenderID {
		return ReceiptNone
	}
	return m.Receipts[userID]
}

func (m *Message) DeliveredTo() []string { return m.usersIn(ReceiptDelivered) }

func (m *Message) SeenBy() []string { return m.usersIn(ReceiptSeen) }

func (m *Message) usersIn(state ReceiptState) []string {
	var out []string
	for uid, s := range m.Receipts {
		if s == state && uid != m.SenderID {
			out = append(out, uid)
		}
	}
	sortStrings(out)
	return out
}

// Status is the 1:1 tri-state status derived from the receiver's receipt.
func (m *Message) Status() string {
	return m.ReceiptFor(m.ReceiverID).String()
}

// Recipients is the set of users a receipt can exist for.
func (m *Message) Recipients(conv *Conversation) []string {
	if !m.IsGroup {
		if m.ReceiverID == "" {
			return nil
		}
		return []string{m.ReceiverID}
	}
	out := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p != m.SenderID {
			out = append(out, p)
		}
	}
	return out
}

func (m *Message) DeletedFor(userID string) bool {
	return containsString(m.DeletedBy, userID)
}

func (m *Message) StarredFor(userID string) bool {
	return containsString(m.StarredBy, userID)
}

// View is the JSON shape sent to clients: the message plus derived receipt
// fields. Tombstoned messages drop their content.
type View struct {
	*Message
	Status      string   `json:"status,omitempty"`
	DeliveredTo []string `json:"delivered_to"`
	SeenBy      []string `json:"seen_by"`
}

func (m *Message) View() View {
	v := View{
		Message:     m,
		DeliveredTo: m.DeliveredTo(),
		SeenBy:      m.SeenBy(),
	}
	if !m.IsGroup {
		v.Status = m.Status()
	}
	if m.DeletedForEveryone {
		cp := *m
		cp.Content = ""
		cp.Media = Media{}
		cp.ReplyTo = nil
		v.Message = &cp
	}
	return v
}
