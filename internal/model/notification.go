package model

import "time"

// NotificationType identifies what happened.
type NotificationType string

const (
	NotifyResonance NotificationType = "resonance"
	NotifyEcho      NotificationType = "echo"
	NotifyRipple    NotificationType = "ripple"
	NotifyTribe     NotificationType = "tribe"
	NotifyMessage   NotificationType = "message"
)

// Notification is delivered to UserID about an action by FromUserID.
type Notification struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	Type          NotificationType `json:"type"`
	FromUserID    string           `json:"fromUserId"`
	FromUsername  string           `json:"fromUsername"`
	FromUserPhoto string           `json:"fromUserPhoto,omitempty"`
	Content       string           `json:"content,omitempty"`
	PulseID       string           `json:"pulseId,omitempty"`
	IsRead        bool             `json:"isRead"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Text renders the one-line description shown in the inbox.
func (n Notification) Text() string {
	switch n.Type {
	case NotifyResonance:
		return "resonated with your Pulse"
	case NotifyEcho:
		return "echoed on your Pulse"
	case NotifyRipple:
		return "rippled your Pulse"
	case NotifyTribe:
		return "joined your Tribe"
	case NotifyMessage:
		return "sent you a message"
	default:
		return n.Content
	}
}
