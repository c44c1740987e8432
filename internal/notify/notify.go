package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/observability"
	"github.com/Pratikk2op/Mechiee-sub000/internal/storage"
)

// Broadcaster is the slice of the presence hub the notifier needs.
type Broadcaster interface {
	SendToUser(userID, event string, payload any) int
	SendToRole(role models.Role, event string, payload any) int
	Online(userID string) bool
}

// Pusher delivers a notification outside the websocket, e.g. to a mobile
// push provider.
type Pusher interface {
	Push(ctx context.Context, userID string, n models.Notification) error
}

// Notifier is the one place durable notifications are written and fanned
// out. Failures are logged and counted; callers never see them.
type Notifier struct {
	store  storage.NotificationStore
	hub    Broadcaster
	push   Pusher
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Notifier)

// WithPusher enables out-of-band delivery for users with no live connection.
func WithPusher(p Pusher) Option { return func(n *Notifier) { n.push = p } }

func New(store storage.NotificationStore, hub Broadcaster, logger *slog.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{store: store, hub: hub, logger: logger.With("component", "notify"), now: time.Now}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Note is what callers fill in; the notifier stamps id, recipient and time.
type Note struct {
	Type      string
	Title     string
	Message   string
	BookingID string
}

func (n *Notifier) build(note Note) models.Notification {
	return models.Notification{
		ID:        uuid.NewString(),
		Type:      note.Type,
		Title:     note.Title,
		Message:   note.Message,
		BookingID: note.BookingID,
		CreatedAt: n.now().UTC(),
	}
}

// ToUser persists a notification for userID, emits it live and pushes it
// when the user has no open connection.
func (n *Notifier) ToUser(ctx context.Context, userID string, note Note) {
	if userID == "" {
		return
	}
	rec := n.build(note)
	rec.UserID = userID
	n.save(ctx, &rec)

	delivered := n.hub.SendToUser(userID, models.EventNotification, rec)
	if delivered > 0 || n.push == nil || n.hub.Online(userID) {
		return
	}
	if err := n.push.Push(ctx, userID, rec); err != nil {
		n.logger.Warn("push notification failed", "user_id", userID, "type", rec.Type, "error", err)
	}
}

// ToRole persists one role-addressed notification and emits it to every
// live connection holding that role.
func (n *Notifier) ToRole(ctx context.Context, role models.Role, note Note) {
	rec := n.build(note)
	rec.Role = role
	n.save(ctx, &rec)
	n.hub.SendToRole(role, models.EventNotification, rec)
}

func (n *Notifier) save(ctx context.Context, rec *models.Notification) {
	if n.store == nil {
		return
	}
	if err := n.store.SaveNotification(ctx, rec); err != nil {
		observability.NotificationFailures.Inc()
		n.logger.Error("persist notification", "type", rec.Type, "user_id", rec.UserID, "role", rec.Role, "error", err)
	}
}
