package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

//go:embed migrations/001_init.sql
var initSchema string

const uniqueViolation = "23505"

const bookingCols = `id, customer_id, garage_id, mechanic_id, status, lat, lon, address, bike_company, bike_model,
registration_number, contact, service_types, notes, rejected_by, candidates, created_at, updated_at, accepted_at`

const sessionCols = `id, COALESCE(booking_id, ''), is_admin_chat, is_admin_support, owner_id, owner_role, category, priority,
status, assigned_admin, customer_id, garage_id, garage_user_id, mechanic_id, admin_id, can_send_message, can_send_files,
can_send_location, active, last_activity, created_at`

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, initSchema)
	return err
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status string
	var accepted sql.NullTime
	err := row.Scan(&b.ID, &b.CustomerID, &b.GarageID, &b.MechanicID, &status, &b.Location.Lat, &b.Location.Lon,
		&b.Address, &b.BikeCompany, &b.BikeModel, &b.RegistrationNumber, &b.Contact, pq.Array(&b.ServiceTypes),
		&b.Notes, pq.Array(&b.RejectedBy), pq.Array(&b.Candidates), &b.CreatedAt, &b.UpdatedAt, &accepted)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	if accepted.Valid {
		t := accepted.Time
		b.AcceptedAt = &t
	}
	return &b, nil
}

func (p *PostgresStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO bookings (`+bookingCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		b.ID, b.CustomerID, b.GarageID, b.MechanicID, string(b.Status), b.Location.Lat, b.Location.Lon, b.Address,
		b.BikeCompany, b.BikeModel, b.RegistrationNumber, b.Contact, pq.Array(nonNil(b.ServiceTypes)), b.Notes,
		pq.Array(nonNil(b.RejectedBy)), pq.Array(nonNil(b.Candidates)), b.CreatedAt, b.UpdatedAt, b.AcceptedAt)
	if err != nil {
		return fmt.Errorf("insert booking %s: %w", b.ID, err)
	}
	return nil
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := scanBooking(p.db.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "booking", ID: id}
	}
	return b, err
}

// AcceptIfPending is the compare-and-swap behind first-accept-wins. The WHERE
// clause is the whole guard; no row means someone else already resolved it.
func (p *PostgresStore) AcceptIfPending(ctx context.Context, id, garageID, mechanicID string, at time.Time) (*models.Booking, error) {
	b, err := scanBooking(p.db.QueryRowContext(ctx, `UPDATE bookings
SET status = 'accepted', garage_id = $2, mechanic_id = $3, accepted_at = $4, updated_at = $4
WHERE id = $1 AND status = 'pending' AND NOT ($2 = ANY(rejected_by))
RETURNING `+bookingCols, id, garageID, mechanicID, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAlreadyResolved
	}
	if err != nil {
		return nil, fmt.Errorf("accept booking %s: %w", id, err)
	}
	return b, nil
}

func (p *PostgresStore) AddRejection(ctx context.Context, id, garageID string) (*models.Booking, error) {
	_, err := p.db.ExecContext(ctx, `UPDATE bookings
SET rejected_by = array_append(rejected_by, $2), updated_at = $3
WHERE id = $1 AND NOT ($2 = ANY(rejected_by))`, id, garageID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("reject booking %s: %w", id, err)
	}
	return p.GetBooking(ctx, id)
}

func (p *PostgresStore) GetGarage(ctx context.Context, id string) (*models.Garage, error) {
	g, err := scanGarage(p.db.QueryRowContext(ctx, `SELECT id, user_id, name, lat, lon, active FROM garages WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "garage", ID: id}
	}
	return g, err
}

func (p *PostgresStore) ListGarages(ctx context.Context) ([]models.Garage, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, user_id, name, lat, lon, active FROM garages ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Garage
	for rows.Next() {
		g, err := scanGarage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func scanGarage(row rowScanner) (*models.Garage, error) {
	var g models.Garage
	var lat, lon sql.NullFloat64
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &lat, &lon, &g.Active); err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		g.Location = &models.Coord{Lat: lat.Float64, Lon: lon.Float64}
	}
	return &g, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, ex execer, s *models.ChatSession, onConflict string) (sql.Result, error) {
	var bookingID any
	if s.BookingID != "" {
		bookingID = s.BookingID
	}
	pp := s.Participants
	return ex.ExecContext(ctx, `INSERT INTO chat_sessions (id, booking_id, is_admin_chat, is_admin_support, owner_id, owner_role,
category, priority, status, assigned_admin, customer_id, garage_id, garage_user_id, mechanic_id, admin_id,
can_send_message, can_send_files, can_send_location, active, last_activity, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`+onConflict,
		s.ID, bookingID, s.IsAdminChat, s.IsAdminSupport, s.OwnerID, string(s.OwnerRole), s.Category, string(s.Priority),
		string(s.Status), s.AssignedAdmin, pp.CustomerID, pp.GarageID, pp.GarageUserID, pp.MechanicID, pp.AdminID,
		s.Permissions.CanSendMessage, s.Permissions.CanSendFiles, s.Permissions.CanSendLocation, s.Active,
		s.LastActivity, s.CreatedAt)
}

func insertMessage(ctx context.Context, ex execer, sessionID string, m *models.Message) error {
	if _, err := ex.ExecContext(ctx, `INSERT INTO chat_messages (id, session_id, sender_id, sender_role, sender_name, content, type, deleted, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, sessionID, m.SenderID, string(m.SenderRole), m.SenderName, m.Content, string(m.Type), m.Deleted, m.CreatedAt); err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	for _, r := range m.ReadBy {
		if _, err := ex.ExecContext(ctx, `INSERT INTO chat_message_reads (message_id, user_id, read_at) VALUES ($1,$2,$3)
ON CONFLICT DO NOTHING`, m.ID, r.UserID, r.ReadAt); err != nil {
			return fmt.Errorf("insert read receipt %s: %w", m.ID, err)
		}
	}
	return nil
}

// FindOrCreateBookingSession relies on the unique booking_id column so two
// first joins racing each other converge on one row.
func (p *PostgresStore) FindOrCreateBookingSession(ctx context.Context, seed *models.ChatSession) (*models.ChatSession, bool, error) {
	res, err := insertSession(ctx, p.db, seed, ` ON CONFLICT (booking_id) DO NOTHING`)
	if err != nil {
		return nil, false, fmt.Errorf("upsert session for booking %s: %w", seed.BookingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	s, err := p.GetSessionByBooking(ctx, seed.BookingID)
	if err != nil {
		return nil, false, err
	}
	return s, n == 1, nil
}

func (p *PostgresStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	return p.loadSession(ctx, `id = $1`, id, &models.NotFoundError{Kind: "chat session", ID: id})
}

func (p *PostgresStore) GetSessionByBooking(ctx context.Context, bookingID string) (*models.ChatSession, error) {
	return p.loadSession(ctx, `booking_id = $1`, bookingID, &models.NotFoundError{Kind: "chat session for booking", ID: bookingID})
}

func (p *PostgresStore) FindOpenTicket(ctx context.Context, ownerID string) (*models.ChatSession, error) {
	return p.loadSession(ctx, `owner_id = $1 AND is_admin_support AND status IN ('open', 'in_progress')`, ownerID,
		&models.NotFoundError{Kind: "open ticket for user", ID: ownerID})
}

func (p *PostgresStore) loadSession(ctx context.Context, where string, arg any, notFound error) (*models.ChatSession, error) {
	var s models.ChatSession
	var ownerRole, priority, status string
	pp := &s.Participants
	err := p.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM chat_sessions WHERE `+where+` LIMIT 1`, arg).Scan(
		&s.ID, &s.BookingID, &s.IsAdminChat, &s.IsAdminSupport, &s.OwnerID, &ownerRole, &s.Category, &priority,
		&status, &s.AssignedAdmin, &pp.CustomerID, &pp.GarageID, &pp.GarageUserID, &pp.MechanicID, &pp.AdminID,
		&s.Permissions.CanSendMessage, &s.Permissions.CanSendFiles, &s.Permissions.CanSendLocation, &s.Active,
		&s.LastActivity, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	s.OwnerRole = models.Role(ownerRole)
	s.Priority = models.TicketPriority(priority)
	s.Status = models.TicketStatus(status)
	if s.Messages, err = p.loadMessages(ctx, s.ID); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *PostgresStore) loadMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, session_id, sender_id, sender_role, sender_name, content, type, deleted, created_at
FROM chat_messages WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	var msgs []models.Message
	index := make(map[string]int)
	for rows.Next() {
		var m models.Message
		var role, typ string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &role, &m.SenderName, &m.Content, &typ, &m.Deleted, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		m.SenderRole = models.Role(role)
		m.Type = models.MessageType(typ)
		index[m.ID] = len(msgs)
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	reads, err := p.db.QueryContext(ctx, `SELECT r.message_id, r.user_id, r.read_at FROM chat_message_reads r
JOIN chat_messages m ON m.id = r.message_id WHERE m.session_id = $1 ORDER BY r.read_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load read receipts: %w", err)
	}
	for reads.Next() {
		var id string
		var r models.ReadReceipt
		if err := reads.Scan(&id, &r.UserID, &r.ReadAt); err != nil {
			reads.Close()
			return nil, err
		}
		if i, ok := index[id]; ok {
			msgs[i].ReadBy = append(msgs[i].ReadBy, r)
		}
	}
	reads.Close()
	if err := reads.Err(); err != nil {
		return nil, err
	}

	reactions, err := p.db.QueryContext(ctx, `SELECT x.message_id, x.user_id, x.emoji FROM chat_message_reactions x
JOIN chat_messages m ON m.id = x.message_id WHERE m.session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load reactions: %w", err)
	}
	defer reactions.Close()
	for reactions.Next() {
		var id string
		var r models.Reaction
		if err := reactions.Scan(&id, &r.UserID, &r.Emoji); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			msgs[i].Reactions = append(msgs[i].Reactions, r)
		}
	}
	return msgs, reactions.Err()
}

// CreateTicket leans on the partial unique index for the one-open-ticket
// rule; the violation is turned into a DuplicateTicketError naming the winner.
func (p *PostgresStore) CreateTicket(ctx context.Context, s *models.ChatSession) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := insertSession(ctx, tx, s, ""); err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return p.duplicateTicket(ctx, s.OwnerID, err)
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	for i := range s.Messages {
		if err := insertMessage(ctx, tx, s.ID, &s.Messages[i]); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) duplicateTicket(ctx context.Context, ownerID string, cause error) error {
	existing, err := p.FindOpenTicket(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("open ticket conflict for %s: %w", ownerID, cause)
	}
	return &models.DuplicateTicketError{ExistingID: existing.ID}
}

func (p *PostgresStore) UpdateTicket(ctx context.Context, id string, upd models.TicketUpdate) (*models.ChatSession, error) {
	var status, priority, admin sql.NullString
	if upd.Status != nil {
		status = sql.NullString{String: string(*upd.Status), Valid: true}
	}
	if upd.Priority != nil {
		priority = sql.NullString{String: string(*upd.Priority), Valid: true}
	}
	if upd.AssignedAdmin != nil {
		admin = sql.NullString{String: *upd.AssignedAdmin, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `UPDATE chat_sessions
SET status = COALESCE($2, status), priority = COALESCE($3, priority),
    assigned_admin = COALESCE($4, assigned_admin), admin_id = COALESCE($4, admin_id)
WHERE id = $1 AND is_admin_support`, id, status, priority, admin)
	if err != nil {
		if isUniqueViolation(err) {
			var ownerID string
			if qerr := p.db.QueryRowContext(ctx, `SELECT owner_id FROM chat_sessions WHERE id = $1`, id).Scan(&ownerID); qerr == nil {
				return nil, p.duplicateTicket(ctx, ownerID, err)
			}
		}
		return nil, fmt.Errorf("update ticket %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &models.NotFoundError{Kind: "support ticket", ID: id}
	}
	return p.GetSession(ctx, id)
}

func (p *PostgresStore) UpdateParticipants(ctx context.Context, id string, pp models.Participants, isAdminChat bool) (*models.ChatSession, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE chat_sessions
SET customer_id = $2, garage_id = $3, garage_user_id = $4, mechanic_id = $5, admin_id = $6, is_admin_chat = $7
WHERE id = $1`, id, pp.CustomerID, pp.GarageID, pp.GarageUserID, pp.MechanicID, pp.AdminID, isAdminChat)
	if err != nil {
		return nil, fmt.Errorf("update participants %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &models.NotFoundError{Kind: "chat session", ID: id}
	}
	return p.GetSession(ctx, id)
}

func (p *PostgresStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE chat_sessions SET active = $2, can_send_message = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &models.NotFoundError{Kind: "chat session", ID: id}
	}
	return nil
}

func (p *PostgresStore) ListSessionsForUser(ctx context.Context, userID string) ([]*models.ChatSession, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM chat_sessions
WHERE customer_id = $1 OR garage_user_id = $1 OR mechanic_id = $1 OR admin_id = $1 OR owner_id = $1
ORDER BY last_activity DESC`, userID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*models.ChatSession, 0, len(ids))
	for _, id := range ids {
		s, err := p.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *PostgresStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := insertMessage(ctx, tx, sessionID, msg); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET last_activity = GREATEST(last_activity, $2) WHERE id = $1`,
		sessionID, msg.CreatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}
	return tx.Commit()
}

func (p *PostgresStore) AddReadReceipts(ctx context.Context, sessionID, userID string, messageIDs []string, at time.Time) ([]string, error) {
	var marked []string
	for _, id := range messageIDs {
		res, err := p.db.ExecContext(ctx, `INSERT INTO chat_message_reads (message_id, user_id, read_at)
SELECT id, $2, $3 FROM chat_messages WHERE id = $1 AND session_id = $4
ON CONFLICT DO NOTHING`, id, userID, at, sessionID)
		if err != nil {
			return marked, fmt.Errorf("mark read %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			marked = append(marked, id)
		}
	}
	return marked, nil
}

func (p *PostgresStore) SoftDeleteMessage(ctx context.Context, sessionID, messageID, senderID string) error {
	var owner string
	err := p.db.QueryRowContext(ctx, `SELECT sender_id FROM chat_messages WHERE id = $1 AND session_id = $2`, messageID, sessionID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.NotFoundError{Kind: "message", ID: messageID}
	}
	if err != nil {
		return err
	}
	if owner != senderID {
		return models.ErrPermissionDenied
	}
	_, err = p.db.ExecContext(ctx, `UPDATE chat_messages SET deleted = TRUE WHERE id = $1`, messageID)
	return err
}

func (p *PostgresStore) AddReaction(ctx context.Context, sessionID, messageID string, r models.Reaction) error {
	res, err := p.db.ExecContext(ctx, `INSERT INTO chat_message_reactions (message_id, user_id, emoji)
SELECT id, $2, $3 FROM chat_messages WHERE id = $1 AND session_id = $4
ON CONFLICT DO NOTHING`, messageID, r.UserID, r.Emoji, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM chat_messages WHERE id = $1 AND session_id = $2)`,
			messageID, sessionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return &models.NotFoundError{Kind: "message", ID: messageID}
		}
	}
	return nil
}

func (p *PostgresStore) SaveNotification(ctx context.Context, n *models.Notification) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO notifications (id, user_id, role, type, title, message, booking_id, read, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, n.ID, n.UserID, string(n.Role), n.Type, n.Title, n.Message, n.BookingID, n.Read, n.CreatedAt)
	return err
}

func (p *PostgresStore) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := p.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &models.NotFoundError{Kind: "user", ID: userID}
	}
	return name, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
