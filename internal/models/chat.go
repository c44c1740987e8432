package models

import "time"

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageFile     MessageType = "file"
	MessageLocation MessageType = "location"
	MessageSystem   MessageType = "system"
)

// SystemSenderID marks server-generated messages (joins, ticket openers).
const SystemSenderID = "system"

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageLocation, MessageSystem:
		return true
	}
	return false
}

type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

type Message struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"sessionId"`
	SenderID   string        `json:"senderId"`
	SenderRole Role          `json:"senderRole"`
	SenderName string        `json:"senderName"`
	Content    string        `json:"content"`
	Type       MessageType   `json:"type"`
	ReadBy     []ReadReceipt `json:"readBy"`
	Deleted    bool          `json:"deleted"`
	Reactions  []Reaction    `json:"reactions,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// ReadByUser reports whether userID already holds a read receipt.
func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// IsOpen covers the statuses that block a user from opening another ticket.
func (s TicketStatus) IsOpen() bool { return s == TicketOpen || s == TicketInProgress }

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Participants is a snapshot taken when a session is created or resynced.
// GarageID names the garage entity; GarageUserID is the identity that
// receives its events.
type Participants struct {
	CustomerID   string `json:"customerId,omitempty"`
	GarageID     string `json:"garageId,omitempty"`
	GarageUserID string `json:"garageUserId,omitempty"`
	MechanicID   string `json:"mechanicId,omitempty"`
	AdminID      string `json:"adminId,omitempty"`
}

// Includes reports whether userID is one of the snapshot participants.
func (p Participants) Includes(userID string) bool {
	if userID == "" {
		return false
	}
	return p.CustomerID == userID || p.GarageUserID == userID || p.MechanicID == userID || p.AdminID == userID
}

// UserIDs returns the non-empty participant identities.
func (p Participants) UserIDs() []string {
	out := make([]string, 0, 4)
	for _, id := range []string{p.CustomerID, p.GarageUserID, p.MechanicID, p.AdminID} {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

type Permissions struct {
	CanSendMessage  bool `json:"canSendMessage"`
	CanSendFiles    bool `json:"canSendFiles"`
	CanSendLocation bool `json:"canSendLocation"`
}

func DefaultPermissions() Permissions {
	return Permissions{CanSendMessage: true, CanSendFiles: true, CanSendLocation: true}
}

// ChatSession is the persisted record behind a room. Booking rooms are keyed
// by BookingID; admin support tickets by ID.
type ChatSession struct {
	ID             string         `json:"id"`
	BookingID      string         `json:"bookingId,omitempty"`
	IsAdminChat    bool           `json:"isAdminChat"`
	IsAdminSupport bool           `json:"isAdminSupport"`
	OwnerID        string         `json:"ownerId,omitempty"`
	OwnerRole      Role           `json:"ownerRole,omitempty"`
	Category       string         `json:"category,omitempty"`
	Priority       TicketPriority `json:"priority,omitempty"`
	Status         TicketStatus   `json:"status,omitempty"`
	AssignedAdmin  string         `json:"assignedAdmin,omitempty"`
	Participants   Participants   `json:"participants"`
	Messages       []Message      `json:"messages"`
	Permissions    Permissions    `json:"permissions"`
	Active         bool           `json:"active"`
	LastActivity   time.Time      `json:"lastActivity"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Message returns the message with the given id, or nil.
func (s *ChatSession) Message(id string) *Message {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return &s.Messages[i]
		}
	}
	return nil
}

// TicketUpdate carries the optional fields an admin can change on a ticket.
type TicketUpdate struct {
	Status        *TicketStatus   `json:"status,omitempty"`
	Priority      *TicketPriority `json:"priority,omitempty"`
	AssignedAdmin *string         `json:"assignedAdmin,omitempty"`
}

// HasMember reports whether userID may see the session as its own.
func (s *ChatSession) HasMember(userID string) bool {
	return s.Participants.Includes(userID) || (s.OwnerID != "" && s.OwnerID == userID)
}
