package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

var bookingColumns = []string{"id", "customer_id", "garage_id", "mechanic_id", "status", "lat", "lon", "address",
	"bike_company", "bike_model", "registration_number", "contact", "service_types", "notes", "rejected_by",
	"candidates", "created_at", "updated_at", "accepted_at"}

var sessionColumns = []string{"id", "booking_id", "is_admin_chat", "is_admin_support", "owner_id", "owner_role",
	"category", "priority", "status", "assigned_admin", "customer_id", "garage_id", "garage_user_id", "mechanic_id",
	"admin_id", "can_send_message", "can_send_files", "can_send_location", "active", "last_activity", "created_at"}

var messageColumns = []string{"id", "session_id", "sender_id", "sender_role", "sender_name", "content", "type", "deleted", "created_at"}

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreFromDB(db), mock
}

func TestPostgresAcceptIfPendingLost(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE bookings")).
		WithArgs("b1", "g1", "m1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(bookingColumns))

	_, err := st.AcceptIfPending(context.Background(), "b1", "g1", "m1", time.Now())
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAcceptIfPendingWon(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`WHERE id = \$1 AND status = 'pending'`).
		WithArgs("b1", "g1", "m1", now).
		WillReturnRows(sqlmock.NewRows(bookingColumns).AddRow("b1", "c1", "g1", "m1", "accepted", 19.07, 72.87,
			"addr", "Honda", "Shine", "MH01", "999", "{}", "", "{g9}", "{g1,g2}", now, now, now))

	b, err := st.AcceptIfPending(context.Background(), "b1", "g1", "m1", now)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, b.Status)
	assert.Equal(t, "g1", b.GarageID)
	assert.Equal(t, []string{"g9"}, b.RejectedBy)
	assert.Equal(t, []string{"g1", "g2"}, b.Candidates)
	require.NotNil(t, b.AcceptedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetBookingNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("FROM bookings WHERE id").WithArgs("nope").WillReturnRows(sqlmock.NewRows(bookingColumns))

	_, err := st.GetBooking(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPostgresFindOrCreateBookingSessionExisting(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (booking_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM chat_sessions WHERE booking_id").WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow("s-first", "b1", true, false, "", "", "", "", "", "",
			"c1", "", "", "", "", true, true, true, true, now, now))
	mock.ExpectQuery("FROM chat_messages WHERE session_id").WithArgs("s-first").
		WillReturnRows(sqlmock.NewRows(messageColumns))

	s, created, err := st.FindOrCreateBookingSession(context.Background(), &models.ChatSession{ID: "s-second", BookingID: "b1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "s-first", s.ID)
	assert.Equal(t, "c1", s.Participants.CustomerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateTicketDuplicate(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_sessions").WillReturnError(&pq.Error{Code: "23505", Constraint: "chat_sessions_one_open_ticket"})
	mock.ExpectRollback()
	mock.ExpectQuery("is_admin_support AND status IN").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow("t-old", "", false, true, "u1", "customer", "billing",
			"high", "open", "", "u1", "", "", "", "", true, true, true, true, now, now))
	mock.ExpectQuery("FROM chat_messages WHERE session_id").WithArgs("t-old").
		WillReturnRows(sqlmock.NewRows(messageColumns))

	err := st.CreateTicket(context.Background(), &models.ChatSession{ID: "t-new", IsAdminSupport: true, OwnerID: "u1", Status: models.TicketOpen})
	var dup *models.DuplicateTicketError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "t-old", dup.ExistingID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddReadReceiptsSkipsKnownAndUnknown(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec("INSERT INTO chat_message_reads").WithArgs("m1", "u", sqlmock.AnyArg(), "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chat_message_reads").WithArgs("m2", "u", sqlmock.AnyArg(), "s1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO chat_message_reads").WithArgs("ghost", "u", sqlmock.AnyArg(), "s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	marked, err := st.AddReadReceipts(context.Background(), "s1", "u", []string{"m1", "m2", "ghost"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, marked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSessionLoadsReceiptsInOrder(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery("FROM chat_sessions WHERE id").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow("s1", "b1", false, false, "", "", "", "", "", "",
			"c1", "g1", "gu1", "m1", "", true, true, true, true, now, now))
	mock.ExpectQuery("FROM chat_messages WHERE session_id").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow("a", "s1", "c1", "customer", "Asha", "hi", "text", false, now).
			AddRow("b", "s1", "gu1", "garage", "Bolt Garage", "hello", "text", false, now))
	mock.ExpectQuery("FROM chat_message_reads").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"message_id", "user_id", "read_at"}).
			AddRow("a", "c1", now).AddRow("b", "gu1", now).AddRow("a", "gu1", now))
	mock.ExpectQuery("FROM chat_message_reactions").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"message_id", "user_id", "emoji"}).AddRow("b", "c1", "👍"))

	s, err := st.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "a", s.Messages[0].ID)
	assert.Len(t, s.Messages[0].ReadBy, 2)
	assert.Equal(t, []models.Reaction{{UserID: "c1", Emoji: "👍"}}, s.Messages[1].Reactions)
	assert.Equal(t, "gu1", s.Participants.GarageUserID)
	require.NoError(t, mock.ExpectationsWereMet())
}
