package model

import (
	"encoding/json"
	"time"
)

// Realtime event names.
const (
	EventJoin              = "join"
	EventOnlineUsers       = "online-users"
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
	EventOnlineUsersUpdate = "online-users-update"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventMessageDelivered  = "message-delivered"
	EventMessageSeen       = "message-seen"
	EventMessageStatus     = "message-status-update"
	EventNewMessage        = "new-message"
	EventMessageDeletedAll = "message-deleted-everyone"
	EventError             = "error"

	// Call signalling. The server only relays these between two users.
	EventCallUser     = "call-user"
	EventIncomingCall = "incoming-call"
	EventAnswerCall   = "answer-call"
	EventCallAnswered = "call-answered"
	EventICECandidate = "ice-candidate"
	EventEndCall      = "end-call"
	EventCallEnded    = "call-ended"
)

// CallRelays maps each inbound call event to the event the peer receives.
var CallRelays = map[string]string{
	EventCallUser:     EventIncomingCall,
	EventAnswerCall:   EventCallAnswered,
	EventICECandidate: EventICECandidate,
	EventEndCall:      EventCallEnded,
}

// Frame is the wire shape of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	UserID string `json:"userId"`
}

type OnlineUser struct {
	UserID string `json:"userId"`
	User   *User  `json:"user,omitempty"`
}

type TypingPayload struct {
	ReceiverID string `json:"receiverId"`
	SenderName string `json:"senderName,omitempty"`
}

type TypingNotice struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
}

// CallSignal is what a caller sends. Offer, Answer and Candidate are opaque
// WebRTC blobs passed through untouched.
type CallSignal struct {
	ToUserID  string          `json:"toUserId"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	CallType  string          `json:"callType,omitempty"`
}

type CallNotice struct {
	FromUserID string          `json:"fromUserId"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
	CallType   string          `json:"callType,omitempty"`
}

type ReceiptPayload struct {
	MessageID int64 `json:"messageId,string"`
}

type StatusUpdate struct {
	MessageID int64  `json:"messageId,string"`
	Status    string `json:"status"`
	UserID    string `json:"userId"`
}

type DeletedPayload struct {
	MessageID int64 `json:"messageId,string"`
}

type ErrorPayload struct {
	Code    ErrorKind `json:"code"`
	Message string    `json:"message"`
}

// Envelope carries one fanout dispatch between nodes. An empty Recipients
// list means every live session except Except.
type Envelope struct {
	Origin     string          `json:"origin"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	Recipients []string        `json:"recipients,omitempty"`
	Except     string          `json:"except,omitempty"`
	Broadcast  bool            `json:"broadcast,omitempty"`
	// Set for new-message envelopes so consumers can maintain per-user
	// conversation state without decoding the payload.
	ConversationID string    `json:"conversation_id,omitempty"`
	SenderID       string    `json:"sender_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
