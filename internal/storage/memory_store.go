package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

// MemoryStore keeps everything in process. One mutex guards all maps, which
// makes every conditional update trivially atomic. Values are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	bookings      map[string]*models.Booking
	garages       map[string]models.Garage
	sessions      map[string]*models.ChatSession
	byBooking     map[string]string
	users         map[string]string
	notifications []models.Notification
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:  make(map[string]*models.Booking),
		garages:   make(map[string]models.Garage),
		sessions:  make(map[string]*models.ChatSession),
		byBooking: make(map[string]string),
		users:     make(map[string]string),
	}
}

func (m *MemoryStore) PutGarage(g models.Garage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.garages[g.ID] = cloneGarage(g)
}

func (m *MemoryStore) PutUser(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = name
}

// Notifications returns what has been saved so far, oldest first.
func (m *MemoryStore) Notifications() []models.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Notification(nil), m.notifications...)
}

func (m *MemoryStore) CreateBooking(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "booking", ID: id}
	}
	return cloneBooking(b), nil
}

func (m *MemoryStore) AcceptIfPending(_ context.Context, id, garageID, mechanicID string, at time.Time) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != models.BookingPending || b.RejectedByGarage(garageID) {
		return nil, models.ErrAlreadyResolved
	}
	b.Status = models.BookingAccepted
	b.GarageID = garageID
	b.MechanicID = mechanicID
	b.AcceptedAt = &at
	b.UpdatedAt = at
	return cloneBooking(b), nil
}

func (m *MemoryStore) AddRejection(_ context.Context, id, garageID string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "booking", ID: id}
	}
	if !b.RejectedByGarage(garageID) {
		b.RejectedBy = append(b.RejectedBy, garageID)
		b.UpdatedAt = time.Now()
	}
	return cloneBooking(b), nil
}

func (m *MemoryStore) GetGarage(_ context.Context, id string) (*models.Garage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.garages[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "garage", ID: id}
	}
	out := cloneGarage(g)
	return &out, nil
}

func (m *MemoryStore) ListGarages(_ context.Context) ([]models.Garage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Garage, 0, len(m.garages))
	for _, g := range m.garages {
		out = append(out, cloneGarage(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) FindOrCreateBookingSession(_ context.Context, seed *models.ChatSession) (*models.ChatSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byBooking[seed.BookingID]; ok {
		return cloneSession(m.sessions[id]), false, nil
	}
	m.sessions[seed.ID] = cloneSession(seed)
	m.byBooking[seed.BookingID] = seed.ID
	return cloneSession(seed), true, nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "chat session", ID: id}
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) GetSessionByBooking(_ context.Context, bookingID string) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byBooking[bookingID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "chat session for booking", ID: bookingID}
	}
	return cloneSession(m.sessions[id]), nil
}

func (m *MemoryStore) CreateTicket(_ context.Context, s *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if open := m.openTicketLocked(s.OwnerID); open != nil {
		return &models.DuplicateTicketError{ExistingID: open.ID}
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *MemoryStore) FindOpenTicket(_ context.Context, ownerID string) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if open := m.openTicketLocked(ownerID); open != nil {
		return cloneSession(open), nil
	}
	return nil, &models.NotFoundError{Kind: "open ticket for user", ID: ownerID}
}

func (m *MemoryStore) openTicketLocked(ownerID string) *models.ChatSession {
	for _, s := range m.sessions {
		if s.IsAdminSupport && s.OwnerID == ownerID && s.Status.IsOpen() {
			return s
		}
	}
	return nil
}

func (m *MemoryStore) UpdateTicket(_ context.Context, id string, upd models.TicketUpdate) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.IsAdminSupport {
		return nil, &models.NotFoundError{Kind: "support ticket", ID: id}
	}
	if upd.Status != nil {
		if upd.Status.IsOpen() && !s.Status.IsOpen() {
			if other := m.openTicketLocked(s.OwnerID); other != nil && other.ID != s.ID {
				return nil, &models.DuplicateTicketError{ExistingID: other.ID}
			}
		}
		s.Status = *upd.Status
	}
	if upd.Priority != nil {
		s.Priority = *upd.Priority
	}
	if upd.AssignedAdmin != nil {
		s.AssignedAdmin = *upd.AssignedAdmin
		s.Participants.AdminID = *upd.AssignedAdmin
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) UpdateParticipants(_ context.Context, id string, p models.Participants, isAdminChat bool) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "chat session", ID: id}
	}
	s.Participants = p
	s.IsAdminChat = isAdminChat
	return cloneSession(s), nil
}

func (m *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return &models.NotFoundError{Kind: "chat session", ID: id}
	}
	s.Active = active
	s.Permissions.CanSendMessage = active
	return nil
}

func (m *MemoryStore) ListSessionsForUser(_ context.Context, userID string) ([]*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ChatSession
	for _, s := range m.sessions {
		if s.HasMember(userID) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, sessionID string, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return &models.NotFoundError{Kind: "chat session", ID: sessionID}
	}
	s.Messages = append(s.Messages, cloneMessage(*msg))
	if msg.CreatedAt.After(s.LastActivity) {
		s.LastActivity = msg.CreatedAt
	}
	return nil
}

func (m *MemoryStore) AddReadReceipts(_ context.Context, sessionID, userID string, messageIDs []string, at time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "chat session", ID: sessionID}
	}
	var marked []string
	for _, id := range messageIDs {
		msg := s.Message(id)
		if msg == nil || msg.ReadByUser(userID) {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, models.ReadReceipt{UserID: userID, ReadAt: at})
		marked = append(marked, id)
	}
	return marked, nil
}

func (m *MemoryStore) SoftDeleteMessage(_ context.Context, sessionID, messageID, senderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return &models.NotFoundError{Kind: "chat session", ID: sessionID}
	}
	msg := s.Message(messageID)
	if msg == nil {
		return &models.NotFoundError{Kind: "message", ID: messageID}
	}
	if msg.SenderID != senderID {
		return models.ErrPermissionDenied
	}
	msg.Deleted = true
	return nil
}

func (m *MemoryStore) AddReaction(_ context.Context, sessionID, messageID string, r models.Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return &models.NotFoundError{Kind: "chat session", ID: sessionID}
	}
	msg := s.Message(messageID)
	if msg == nil {
		return &models.NotFoundError{Kind: "message", ID: messageID}
	}
	for _, existing := range msg.Reactions {
		if existing == r {
			return nil
		}
	}
	msg.Reactions = append(msg.Reactions, r)
	return nil
}

func (m *MemoryStore) SaveNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *MemoryStore) DisplayName(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.users[userID]
	if !ok {
		return "", &models.NotFoundError{Kind: "user", ID: userID}
	}
	return name, nil
}

func cloneBooking(b *models.Booking) *models.Booking {
	c := *b
	c.RejectedBy = append([]string(nil), b.RejectedBy...)
	c.Candidates = append([]string(nil), b.Candidates...)
	c.ServiceTypes = append([]string(nil), b.ServiceTypes...)
	if b.AcceptedAt != nil {
		t := *b.AcceptedAt
		c.AcceptedAt = &t
	}
	return &c
}

func cloneGarage(g models.Garage) models.Garage {
	if g.Location != nil {
		loc := *g.Location
		g.Location = &loc
	}
	return g
}

func cloneMessage(m models.Message) models.Message {
	m.ReadBy = append([]models.ReadReceipt(nil), m.ReadBy...)
	m.Reactions = append([]models.Reaction(nil), m.Reactions...)
	return m
}

func cloneSession(s *models.ChatSession) *models.ChatSession {
	c := *s
	c.Messages = make([]models.Message, len(s.Messages))
	for i, msg := range s.Messages {
		c.Messages[i] = cloneMessage(msg)
	}
	return &c
}
