package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/observability"
	"github.com/Pratikk2op/Mechiee-sub000/internal/storage"
)

const defaultCategory = "general"

// Store is the persistence the registry needs.
type Store interface {
	storage.BookingStore
	storage.GarageStore
	storage.SessionStore
}

// Registry maps room tags to chat sessions. A booking has exactly one
// session whichever tag is used to reach it; the tag handed back to callers
// is always derived from the booking's current status.
type Registry struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, logger: logger.With("component", "rooms"), now: time.Now}
}

// Resolve returns the session behind roomID, creating a booking session on
// first use. Support tickets are never created here.
func (r *Registry) Resolve(ctx context.Context, roomID models.RoomID) (*models.ChatSession, models.RoomID, error) {
	kind, id, err := roomID.Parse()
	if err != nil {
		return nil, "", err
	}
	if kind == models.RoomAdminSupport {
		s, err := r.ticket(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return s, models.AdminSupportRoom(s.ID), nil
	}

	b, err := r.store.GetBooking(ctx, id)
	if err != nil {
		return nil, "", err
	}
	s, err := r.ensureBookingSession(ctx, b)
	if err != nil {
		return nil, "", err
	}
	return s, models.RoomIDForBooking(b), nil
}

// Lookup is Resolve without the create step.
func (r *Registry) Lookup(ctx context.Context, roomID models.RoomID) (*models.ChatSession, models.RoomID, error) {
	kind, id, err := roomID.Parse()
	if err != nil {
		return nil, "", err
	}
	if kind == models.RoomAdminSupport {
		s, err := r.ticket(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return s, models.AdminSupportRoom(s.ID), nil
	}
	b, err := r.store.GetBooking(ctx, id)
	if err != nil {
		return nil, "", err
	}
	s, err := r.store.GetSessionByBooking(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return s, models.RoomIDForBooking(b), nil
}

// RoomIDFor returns the tag clients should use for bookingID right now.
func (r *Registry) RoomIDFor(ctx context.Context, bookingID string) (models.RoomID, error) {
	b, err := r.store.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}
	return models.RoomIDForBooking(b), nil
}

// TagFor names a session the way clients should address it. Booking
// sessions need the current booking status; tickets do not.
func (r *Registry) TagFor(ctx context.Context, s *models.ChatSession) models.RoomID {
	if s.IsAdminSupport || s.BookingID == "" {
		return models.AdminSupportRoom(s.ID)
	}
	b, err := r.store.GetBooking(ctx, s.BookingID)
	if err != nil {
		if s.IsAdminChat {
			return models.SupportRoom(s.BookingID)
		}
		return models.BookingRoom(s.BookingID)
	}
	return models.RoomIDForBooking(b)
}

// CanAccess reports whether the caller may read or write the session. Admins
// see everything; everyone else must be in the participant snapshot.
func CanAccess(s *models.ChatSession, userID string, role models.Role) bool {
	return role == models.RoleAdmin || s.HasMember(userID)
}

func (r *Registry) ticket(ctx context.Context, id string) (*models.ChatSession, error) {
	s, err := r.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.IsAdminSupport {
		return nil, &models.NotFoundError{Kind: "support ticket", ID: id}
	}
	return s, nil
}

func (r *Registry) ensureBookingSession(ctx context.Context, b *models.Booking) (*models.ChatSession, error) {
	p, err := r.participantsFor(ctx, b)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	seed := &models.ChatSession{
		ID:           uuid.NewString(),
		BookingID:    b.ID,
		IsAdminChat:  b.Status == models.BookingPending,
		Participants: p,
		Permissions:  models.DefaultPermissions(),
		Active:       true,
		LastActivity: now,
		CreatedAt:    now,
	}
	s, created, err := r.store.FindOrCreateBookingSession(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("find or create session for booking %s: %w", b.ID, err)
	}
	if created {
		kind := string(models.RoomBooking)
		if seed.IsAdminChat {
			kind = string(models.RoomSupport)
		}
		observability.SessionsCreated.WithLabelValues(kind).Inc()
		r.logger.Info("chat session created", "session_id", s.ID, "booking_id", b.ID, "admin_chat", s.IsAdminChat)
		return s, nil
	}
	// an acceptance whose resync was lost still shows up as a stale snapshot
	if s.IsAdminChat && b.Status != models.BookingPending {
		return r.applyParticipants(ctx, s, b, p)
	}
	return s, nil
}

// ResyncParticipants re-seeds the participant snapshot of a booking room
// from the booking as it is now. Ticket rooms are returned unchanged.
func (r *Registry) ResyncParticipants(ctx context.Context, roomID models.RoomID) (*models.ChatSession, error) {
	kind, id, err := roomID.Parse()
	if err != nil {
		return nil, err
	}
	if kind == models.RoomAdminSupport {
		return r.ticket(ctx, id)
	}
	b, err := r.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := r.ensureBookingSession(ctx, b)
	if err != nil {
		return nil, err
	}
	p, err := r.participantsFor(ctx, b)
	if err != nil {
		return nil, err
	}
	return r.applyParticipants(ctx, s, b, p)
}

func (r *Registry) applyParticipants(ctx context.Context, s *models.ChatSession, b *models.Booking, p models.Participants) (*models.ChatSession, error) {
	p.AdminID = s.Participants.AdminID
	adminChat := b.Status == models.BookingPending
	if p == s.Participants && adminChat == s.IsAdminChat {
		return s, nil
	}
	updated, err := r.store.UpdateParticipants(ctx, s.ID, p, adminChat)
	if err != nil {
		return nil, fmt.Errorf("resync participants for booking %s: %w", b.ID, err)
	}
	r.logger.Info("chat participants resynced", "session_id", s.ID, "booking_id", b.ID, "garage_id", p.GarageID, "mechanic_id", p.MechanicID)
	return updated, nil
}

func (r *Registry) participantsFor(ctx context.Context, b *models.Booking) (models.Participants, error) {
	p := models.Participants{CustomerID: b.CustomerID}
	if b.Status == models.BookingPending || b.GarageID == "" {
		return p, nil
	}
	p.GarageID = b.GarageID
	p.MechanicID = b.MechanicID
	g, err := r.store.GetGarage(ctx, b.GarageID)
	switch {
	case err == nil:
		p.GarageUserID = g.UserID
	case errors.Is(err, models.ErrNotFound):
		r.logger.Warn("accepted booking references unknown garage", "booking_id", b.ID, "garage_id", b.GarageID)
	default:
		return p, err
	}
	return p, nil
}

// TicketRequest is what a user submits to open a support ticket.
type TicketRequest struct {
	UserID      string                `json:"userId"`
	Role        models.Role           `json:"role"`
	Category    string                `json:"category"`
	Priority    models.TicketPriority `json:"priority"`
	Description string                `json:"description"`
}

// OpenSupportTicket creates a standalone admin-support session seeded with
// the description as a system message. A user holds at most one open ticket.
func (r *Registry) OpenSupportTicket(ctx context.Context, req TicketRequest) (*models.ChatSession, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, &models.ValidationError{Field: "userId", Reason: "required"}
	}
	if !req.Role.Valid() {
		return nil, &models.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", req.Role)}
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, &models.ValidationError{Field: "description", Reason: "required"}
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, &models.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", req.Priority)}
	}
	if strings.TrimSpace(req.Category) == "" {
		req.Category = defaultCategory
	}

	now := r.now().UTC()
	p := models.Participants{}
	switch req.Role {
	case models.RoleCustomer:
		p.CustomerID = req.UserID
	case models.RoleGarage:
		p.GarageUserID = req.UserID
	case models.RoleMechanic:
		p.MechanicID = req.UserID
	}
	s := &models.ChatSession{
		ID:             uuid.NewString(),
		IsAdminSupport: true,
		OwnerID:        req.UserID,
		OwnerRole:      req.Role,
		Category:       req.Category,
		Priority:       req.Priority,
		Status:         models.TicketOpen,
		Participants:   p,
		Permissions:    models.DefaultPermissions(),
		Active:         true,
		LastActivity:   now,
		CreatedAt:      now,
		Messages: []models.Message{{
			ID:         uuid.NewString(),
			SenderID:   models.SystemSenderID,
			SenderRole: req.Role,
			SenderName: "System",
			Content:    desc,
			Type:       models.MessageSystem,
			ReadBy:     []models.ReadReceipt{{UserID: req.UserID, ReadAt: now}},
			CreatedAt:  now,
		}},
	}
	s.Messages[0].SessionID = s.ID
	if err := r.store.CreateTicket(ctx, s); err != nil {
		return nil, err
	}
	observability.SessionsCreated.WithLabelValues(string(models.RoomAdminSupport)).Inc()
	r.logger.Info("support ticket opened", "session_id", s.ID, "user_id", req.UserID, "category", req.Category, "priority", req.Priority)
	return s, nil
}

// UpdateTicketStatus changes ticket fields. Only admins may call it.
func (r *Registry) UpdateTicketStatus(ctx context.Context, actorRole models.Role, ticketID string, upd models.TicketUpdate) (*models.ChatSession, error) {
	if actorRole != models.RoleAdmin {
		return nil, models.ErrPermissionDenied
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *upd.Status)}
	}
	if upd.Priority != nil && !upd.Priority.Valid() {
		return nil, &models.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *upd.Priority)}
	}
	s, err := r.store.UpdateTicket(ctx, ticketID, upd)
	if err != nil {
		return nil, err
	}
	r.logger.Info("support ticket updated", "session_id", s.ID, "status", s.Status, "priority", s.Priority, "assigned_admin", s.AssignedAdmin)
	return s, nil
}

// Deactivate closes a room for writing. Sessions are never deleted.
func (r *Registry) Deactivate(ctx context.Context, roomID models.RoomID) error {
	s, _, err := r.Lookup(ctx, roomID)
	if err != nil {
		return err
	}
	if err := r.store.SetActive(ctx, s.ID, false); err != nil {
		return err
	}
	r.logger.Info("chat session deactivated", "session_id", s.ID, "room", roomID)
	return nil
}
