package model

import "time"

// Role identifies who sent a message.
type Role string

const (
	RoleUser  Role = "User"
	RoleStaff Role = "Staff"
)

// Kind is the content type of a message.
type Kind string

const (
	KindText     Kind = "Text"
	KindImage    Kind = "Image"
	KindAudio    Kind = "Audio"
	KindVoice    Kind = "Voice"
	KindVideo    Kind = "Video"
	KindDocument Kind = "Document"
)

// IsMedia reports whether the kind carries a file reference.
func (k Kind) IsMedia() bool {
	switch k {
	case KindImage, KindAudio, KindVoice, KindVideo, KindDocument:
		return true
	}
	return false
}

// Label is the bracketed placeholder used when rendering media in history.
func (k Kind) Label() string {
	switch k {
	case KindImage:
		return "[Image]"
	case KindAudio:
		return "[Audio]"
	case KindVoice:
		return "[Voice Message]"
	case KindVideo:
		return "[Video]"
	case KindDocument:
		return "[Document]"
	}
	return ""
}

// ChatMessage is one entry of a ticket's history.
type ChatMessage struct {
	SenderID  string    `json:"SenderId"`
	Role      Role      `json:"SenderType"`
	Kind      Kind      `json:"MessageType"`
	Text      string    `json:"TextContent,omitempty"`
	MediaRef  string    `json:"MediaFileId,omitempty"`
	Timestamp time.Time `json:"Timestamp"`
}

// NewTextMessage builds a text message stamped with the current time.
func NewTextMessage(senderID string, role Role, text string) ChatMessage {
	return ChatMessage{
		SenderID:  senderID,
		Role:      role,
		Kind:      KindText,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}
