package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/observability"
	"github.com/Pratikk2op/Mechiee-sub000/internal/rooms"
	"github.com/Pratikk2op/Mechiee-sub000/internal/storage"
)

// QuietMs is the hint sent with typing events: clients clear the indicator
// after this long without another event.
const QuietMs = 3000

// Resolver turns room tags into sessions.
type Resolver interface {
	Resolve(ctx context.Context, roomID models.RoomID) (*models.ChatSession, models.RoomID, error)
	TagFor(ctx context.Context, s *models.ChatSession) models.RoomID
}

// Store is the persistence the engine needs.
type Store interface {
	storage.SessionStore
	storage.UserDirectory
}

// Engine owns the message log of every room: posting, receipts, soft
// deletes and reactions. It persists; fan-out is left to Publish.
type Engine struct {
	rooms  Resolver
	store  Store
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

func New(resolver Resolver, store Store, pub Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{rooms: resolver, store: store, pub: pub, logger: logger.With("component", "chat"), now: time.Now}
}

// Actor is whoever is acting on a room.
type Actor struct {
	UserID string
	Role   models.Role
}

// Target names a room both by its session and by the tag clients should use.
type Target struct {
	SessionID string        `json:"sessionId"`
	Room      models.RoomID `json:"room"`
}

// Posted is a message that has been persisted.
type Posted struct {
	Target
	Message      models.Message      `json:"message"`
	Participants models.Participants `json:"-"`
}

func (e *Engine) open(ctx context.Context, roomID models.RoomID, a Actor) (*models.ChatSession, models.RoomID, error) {
	s, tag, err := e.rooms.Resolve(ctx, roomID)
	if err != nil {
		return nil, "", err
	}
	if !rooms.CanAccess(s, a.UserID, a.Role) {
		return nil, "", models.ErrPermissionDenied
	}
	return s, tag, nil
}

// PostMessage appends a message from a to the room log. The sender is
// recorded as having read it.
func (e *Engine) PostMessage(ctx context.Context, roomID models.RoomID, a Actor, content string, typ models.MessageType) (*Posted, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &models.ValidationError{Field: "content", Reason: "required"}
	}
	if typ == "" {
		typ = models.MessageText
	}
	if !typ.Valid() || typ == models.MessageSystem {
		return nil, &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unsupported message type %q", typ)}
	}
	s, tag, err := e.open(ctx, roomID, a)
	if err != nil {
		return nil, err
	}
	if err := checkPermission(s, typ); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	msg := models.Message{
		ID:         uuid.NewString(),
		SessionID:  s.ID,
		SenderID:   a.UserID,
		SenderRole: a.Role,
		SenderName: e.displayName(ctx, a),
		Content:    content,
		Type:       typ,
		ReadBy:     []models.ReadReceipt{{UserID: a.UserID, ReadAt: now}},
		CreatedAt:  now,
	}
	if err := e.store.AppendMessage(ctx, s.ID, &msg); err != nil {
		return nil, fmt.Errorf("append message to %s: %w", s.ID, err)
	}
	observability.MessagesPosted.WithLabelValues(string(typ)).Inc()
	return &Posted{Target: Target{SessionID: s.ID, Room: tag}, Message: msg, Participants: s.Participants}, nil
}

func checkPermission(s *models.ChatSession, typ models.MessageType) error {
	if !s.Active || !s.Permissions.CanSendMessage {
		return models.ErrPermissionDenied
	}
	switch typ {
	case models.MessageFile, models.MessageImage:
		if !s.Permissions.CanSendFiles {
			return models.ErrPermissionDenied
		}
	case models.MessageLocation:
		if !s.Permissions.CanSendLocation {
			return models.ErrPermissionDenied
		}
	}
	return nil
}

// SystemMessage records a server-generated line such as a join notice. It
// skips permission checks so closed rooms still log presence changes.
func (e *Engine) SystemMessage(ctx context.Context, sessionID string, tag models.RoomID, role models.Role, content string) (*Posted, error) {
	msg := models.Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		SenderID:   models.SystemSenderID,
		SenderRole: role,
		SenderName: "System",
		Content:    content,
		Type:       models.MessageSystem,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.store.AppendMessage(ctx, sessionID, &msg); err != nil {
		return nil, fmt.Errorf("append system message to %s: %w", sessionID, err)
	}
	observability.MessagesPosted.WithLabelValues(string(models.MessageSystem)).Inc()
	return &Posted{Target: Target{SessionID: sessionID, Room: tag}, Message: msg}, nil
}

func (e *Engine) displayName(ctx context.Context, a Actor) string {
	if name, err := e.store.DisplayName(ctx, a.UserID); err == nil && name != "" {
		return name
	}
	return RoleLabel(a.Role)
}

// DisplayName is the name shown for a in system messages and events.
func (e *Engine) DisplayName(ctx context.Context, a Actor) string { return e.displayName(ctx, a) }

// RoleLabel is the fallback display name for users without a directory entry.
func RoleLabel(r models.Role) string {
	if r == "" {
		return "User"
	}
	s := string(r)
	return strings.ToUpper(s[:1]) + s[1:]
}

// ReadResult lists the messages that gained a receipt from the reader.
type ReadResult struct {
	Target
	UserID string    `json:"userId"`
	Marked []string  `json:"messageIds"`
	ReadAt time.Time `json:"readAt"`
}

// MarkRead adds a's receipt to each message id. Unknown ids and ids already
// read are skipped, so repeating the call changes nothing.
func (e *Engine) MarkRead(ctx context.Context, roomID models.RoomID, a Actor, messageIDs []string) (*ReadResult, error) {
	s, tag, err := e.open(ctx, roomID, a)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	marked, err := e.store.AddReadReceipts(ctx, s.ID, a.UserID, dedupe(messageIDs), now)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Target: Target{SessionID: s.ID, Room: tag}, UserID: a.UserID, Marked: marked, ReadAt: now}, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// UnreadCount is the one definition of unread used everywhere: messages
// from someone else without a receipt from viewer.
func UnreadCount(log []models.Message, viewer string) int {
	n := 0
	for i := range log {
		m := &log[i]
		if m.SenderID == viewer || m.ReadByUser(viewer) {
			continue
		}
		n++
	}
	return n
}

// DeleteMessage soft-deletes a message. Only its sender may do so.
func (e *Engine) DeleteMessage(ctx context.Context, roomID models.RoomID, a Actor, messageID string) (*Target, error) {
	s, tag, err := e.open(ctx, roomID, a)
	if err != nil {
		return nil, err
	}
	if err := e.store.SoftDeleteMessage(ctx, s.ID, messageID, a.UserID); err != nil {
		return nil, err
	}
	return &Target{SessionID: s.ID, Room: tag}, nil
}

// React adds an emoji reaction. Reacting twice with the same emoji is a no-op.
func (e *Engine) React(ctx context.Context, roomID models.RoomID, a Actor, messageID, emoji string) (*Target, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, &models.ValidationError{Field: "emoji", Reason: "required"}
	}
	s, tag, err := e.open(ctx, roomID, a)
	if err != nil {
		return nil, err
	}
	if err := e.store.AddReaction(ctx, s.ID, messageID, models.Reaction{UserID: a.UserID, Emoji: emoji}); err != nil {
		return nil, err
	}
	return &Target{SessionID: s.ID, Room: tag}, nil
}

// ShareLocation posts a location message carrying "lat,lon".
func (e *Engine) ShareLocation(ctx context.Context, roomID models.RoomID, a Actor, loc models.Coord) (*Posted, error) {
	if !loc.Valid() {
		return nil, &models.ValidationError{Field: "location", Reason: "coordinates out of range"}
	}
	return e.PostMessage(ctx, roomID, a, fmt.Sprintf("%.6f,%.6f", loc.Lat, loc.Lon), models.MessageLocation)
}
