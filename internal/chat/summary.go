package chat

import (
	"context"
	"time"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

// RoomSummary is one row of a user's room list.
type RoomSummary struct {
	Target
	BookingID      string              `json:"bookingId,omitempty"`
	IsAdminChat    bool                `json:"isAdminChat"`
	IsAdminSupport bool                `json:"isAdminSupport"`
	Status         models.TicketStatus `json:"status,omitempty"`
	Category       string              `json:"category,omitempty"`
	Participants   models.Participants `json:"participants"`
	Permissions    models.Permissions  `json:"permissions"`
	Active         bool                `json:"active"`
	LastMessage    *models.Message     `json:"lastMessage,omitempty"`
	LastActivity   time.Time           `json:"lastActivity"`
	UnreadCount    int                 `json:"unreadCount"`
}

// RoomDetail is a summary plus the full log.
type RoomDetail struct {
	RoomSummary
	Messages []models.Message `json:"messages"`
}

func summarize(s *models.ChatSession, tag models.RoomID, viewer string) RoomSummary {
	sum := RoomSummary{
		Target:         Target{SessionID: s.ID, Room: tag},
		BookingID:      s.BookingID,
		IsAdminChat:    s.IsAdminChat,
		IsAdminSupport: s.IsAdminSupport,
		Status:         s.Status,
		Category:       s.Category,
		Participants:   s.Participants,
		Permissions:    s.Permissions,
		Active:         s.Active,
		LastActivity:   s.LastActivity,
		UnreadCount:    UnreadCount(s.Messages, viewer),
	}
	if n := len(s.Messages); n > 0 {
		last := s.Messages[n-1]
		sum.LastMessage = &last
	}
	return sum
}

// History returns the room as a's client should render it.
func (e *Engine) History(ctx context.Context, roomID models.RoomID, a Actor) (*RoomDetail, error) {
	s, tag, err := e.open(ctx, roomID, a)
	if err != nil {
		return nil, err
	}
	msgs := s.Messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	return &RoomDetail{RoomSummary: summarize(s, tag, a.UserID), Messages: msgs}, nil
}

// ListRooms returns every room userID belongs to, most recently active first.
func (e *Engine) ListRooms(ctx context.Context, userID string) ([]RoomSummary, error) {
	sessions, err := e.store.ListSessionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]RoomSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, summarize(s, e.rooms.TagFor(ctx, s), userID))
	}
	return out, nil
}

// SessionInfo is sent to a client right after it joins a room.
func (e *Engine) SessionInfo(s *models.ChatSession, tag models.RoomID, viewer string) RoomSummary {
	return summarize(s, tag, viewer)
}
