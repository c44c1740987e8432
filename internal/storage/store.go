package storage

import (
	"context"
	"time"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

// BookingStore persists bookings. AcceptIfPending is the only way a garage and
// mechanic get attached and must be a single conditional write.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	AcceptIfPending(ctx context.Context, id, garageID, mechanicID string, at time.Time) (*models.Booking, error)
	AddRejection(ctx context.Context, id, garageID string) (*models.Booking, error)
}

type GarageStore interface {
	GetGarage(ctx context.Context, id string) (*models.Garage, error)
	ListGarages(ctx context.Context) ([]models.Garage, error)
}

// SessionStore persists chat sessions and their append-only message logs.
type SessionStore interface {
	// FindOrCreateBookingSession inserts seed unless a session for
	// seed.BookingID exists, and returns the stored session either way.
	FindOrCreateBookingSession(ctx context.Context, seed *models.ChatSession) (*models.ChatSession, bool, error)
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	GetSessionByBooking(ctx context.Context, bookingID string) (*models.ChatSession, error)
	// CreateTicket fails with *models.DuplicateTicketError when the owner
	// already has an open ticket.
	CreateTicket(ctx context.Context, s *models.ChatSession) error
	FindOpenTicket(ctx context.Context, ownerID string) (*models.ChatSession, error)
	UpdateTicket(ctx context.Context, id string, upd models.TicketUpdate) (*models.ChatSession, error)
	UpdateParticipants(ctx context.Context, id string, p models.Participants, isAdminChat bool) (*models.ChatSession, error)
	SetActive(ctx context.Context, id string, active bool) error
	ListSessionsForUser(ctx context.Context, userID string) ([]*models.ChatSession, error)

	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
	// AddReadReceipts returns the ids that gained a receipt; unknown ids and
	// ids already read by userID are skipped.
	AddReadReceipts(ctx context.Context, sessionID, userID string, messageIDs []string, at time.Time) ([]string, error)
	SoftDeleteMessage(ctx context.Context, sessionID, messageID, senderID string) error
	AddReaction(ctx context.Context, sessionID, messageID string, r models.Reaction) error
}

type NotificationStore interface {
	SaveNotification(ctx context.Context, n *models.Notification) error
}

type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

type Store interface {
	BookingStore
	GarageStore
	SessionStore
	NotificationStore
	UserDirectory
}
