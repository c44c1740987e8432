package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/presence"
	"github.com/Pratikk2op/Mechiee-sub000/internal/rooms"
	"github.com/Pratikk2op/Mechiee-sub000/internal/storage"
)

type sent struct {
	target string
	event  string
}

type fakePub struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakePub) SendToRoom(key, event string, _ any, _ *presence.Client) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{"room:" + key, event})
	return 1
}

func (f *fakePub) SendToUser(userID, event string, _ any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{"user:" + userID, event})
	return 1
}

var (
	customer = Actor{UserID: "c1", Role: models.RoleCustomer}
	garage   = Actor{UserID: "gu1", Role: models.RoleGarage}
	admin    = Actor{UserID: "a1", Role: models.RoleAdmin}
)

func setup(t *testing.T) (*Engine, *storage.MemoryStore, *fakePub) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.PutGarage(models.Garage{ID: "g1", UserID: "gu1", Active: true})
	store.PutUser("c1", "Asha")
	require.NoError(t, store.CreateBooking(ctx, &models.Booking{ID: "b1", CustomerID: "c1", Status: models.BookingPending}))
	_, err := store.AcceptIfPending(ctx, "b1", "g1", "m1", time.Now())
	require.NoError(t, err)
	pub := &fakePub{}
	return New(rooms.New(store, nil), store, pub, nil), store, pub
}

func TestPostMessageAppendsInOrder(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setup(t)
	room := models.BookingRoom("b1")

	for i := 0; i < 5; i++ {
		_, err := e.PostMessage(ctx, room, customer, fmt.Sprintf("msg %d", i), "")
		require.NoError(t, err)
	}
	d, err := e.History(ctx, room, customer)
	require.NoError(t, err)
	require.Len(t, d.Messages, 5)
	for i, m := range d.Messages {
		assert.Equal(t, fmt.Sprintf("msg %d", i), m.Content)
		assert.Equal(t, models.MessageText, m.Type)
	}
}

func TestPostMessageDenormalizesName(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setup(t)

	p, err := e.PostMessage(ctx, models.BookingRoom("b1"), customer, "hello", models.MessageText)
	require.NoError(t, err)
	assert.Equal(t, "Asha", p.Message.SenderName)
	assert.True(t, p.Message.ReadByUser("c1"))
	assert.Equal(t, models.BookingRoom("b1"), p.Room)

	p, err = e.PostMessage(ctx, models.BookingRoom("b1"), garage, "on my way", models.MessageText)
	require.NoError(t, err)
	assert.Equal(t, "Garage", p.Message.SenderName)
}

func TestPostMessageRejectsOutsiders(t *testing.T) {
	e, _, _ := setup(t)
	_, err := e.PostMessage(context.Background(), models.BookingRoom("b1"), Actor{UserID: "x", Role: models.RoleCustomer}, "hi", "")
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	_, err = e.PostMessage(context.Background(), models.BookingRoom("b1"), admin, "admin here", "")
	assert.NoError(t, err)
}

func TestPostMessageValidation(t *testing.T) {
	e, _, _ := setup(t)
	_, err := e.PostMessage(context.Background(), models.BookingRoom("b1"), customer, "   ", "")
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.PostMessage(context.Background(), models.BookingRoom("b1"), customer, "x", models.MessageSystem)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPostMessageDeniedWhenInactive(t *testing.T) {
	ctx := context.Background()
	e, store, _ := setup(t)
	p, err := e.PostMessage(ctx, models.BookingRoom("b1"), customer, "first", "")
	require.NoError(t, err)
	require.NoError(t, store.SetActive(ctx, p.SessionID, false))

	_, err = e.PostMessage(ctx, models.BookingRoom("b1"), customer, "second", "")
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
}

func TestMarkReadIdempotent(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setup(t)
	room := models.BookingRoom("b1")
	p1, err := e.PostMessage(ctx, room, customer, "one", "")
	require.NoError(t, err)
	p2, err := e.PostMessage(ctx, room, customer, "two", "")
	require.NoError(t, err)

	r, err := e.MarkRead(ctx, room, garage, []string{p1.Message.ID, p2.Message.ID, p1.Message.ID, "unknown"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1.Message.ID, p2.Message.ID}, r.Marked)

	r, err = e.MarkRead(ctx, room, garage, []string{p1.Message.ID, p2.Message.ID})
	require.NoError(t, err)
	assert.Empty(t, r.Marked)

	d, err := e.History(ctx, room, garage)
	require.NoError(t, err)
	for _, m := range d.Messages {
		n := 0
		for _, rr := range m.ReadBy {
			if rr.UserID == "gu1" {
				n++
			}
		}
		assert.Equal(t, 1, n)
	}
}

func TestUnreadCountConsistentAcrossViews(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setup(t)
	room := models.BookingRoom("b1")
	var ids []string
	for i := 0; i < 3; i++ {
		p, err := e.PostMessage(ctx, room, customer, fmt.Sprintf("m%d", i), "")
		require.NoError(t, err)
		ids = append(ids, p.Message.ID)
	}
	_, err := e.MarkRead(ctx, room, garage, ids[:1])
	require.NoError(t, err)

	d, err := e.History(ctx, room, garage)
	require.NoError(t, err)
	list, err := e.ListRooms(ctx, "gu1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.Equal(t, 2, d.UnreadCount)
	assert.Equal(t, d.UnreadCount, list[0].UnreadCount)
	assert.Equal(t, models.BookingRoom("b1"), list[0].Room)

	mine, err := e.History(ctx, room, customer)
	require.NoError(t, err)
	assert.Equal(t, 0, mine.UnreadCount)
}

func TestUnreadCount(t *testing.T) {
	log := []models.Message{
		{ID: "1", SenderID: "a"},
		{ID: "2", SenderID: "a", Deleted: true},
		{ID: "3", SenderID: "b"},
		{ID: "4", SenderID: "a", ReadBy: []models.ReadReceipt{{UserID: "b"}}},
	}
	assert.Equal(t, 2, UnreadCount(log, "b"))
	assert.Equal(t, 1, UnreadCount(log, "a"))
	assert.Equal(t, 4, UnreadCount(log, "c"))
}

func TestDeleteOnlyBySender(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setup(t)
	room := models.BookingRoom("b1")
	p, err := e.PostMessage(ctx, room, customer, "oops", "")
	require.NoError(t, err)

	_, err = e.DeleteMessage(ctx, room, garage, p.Message.ID)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	_, err = e.DeleteMessage(ctx, room, customer, p.Message.ID)
	require.NoError(t, err)

	d, err := e.History(ctx, room, customer)
	require.NoError(t, err)
	assert.True(t, d.Messages[0].Deleted)
}

func TestReactAdditive(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setup(t)
	room := models.BookingRoom("b1")
	p, err := e.PostMessage(ctx, room, customer, "fixed?", "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = e.React(ctx, room, garage, p.Message.ID, "👍")
		require.NoError(t, err)
	}
	d, err := e.History(ctx, room, customer)
	require.NoError(t, err)
	assert.Equal(t, []models.Reaction{{UserID: "gu1", Emoji: "👍"}}, d.Messages[0].Reactions)
}

func TestShareLocationPublishes(t *testing.T) {
	ctx := context.Background()
	e, _, pub := setup(t)
	loc := models.Coord{Lat: 19.076, Lon: 72.8777}

	p, err := e.ShareLocation(ctx, models.BookingRoom("b1"), garage, loc)
	require.NoError(t, err)
	assert.Equal(t, models.MessageLocation, p.Message.Type)
	assert.Equal(t, "19.076000,72.877700", p.Message.Content)

	e.PublishLocation(p, loc)
	assert.Contains(t, pub.sent, sent{"room:" + p.SessionID, models.EventLocationUpdated})

	_, err = e.ShareLocation(ctx, models.BookingRoom("b1"), garage, models.Coord{Lat: 91})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPublishMessageFansOut(t *testing.T) {
	ctx := context.Background()
	e, _, pub := setup(t)
	p, err := e.PostMessage(ctx, models.BookingRoom("b1"), customer, "hi", "")
	require.NoError(t, err)

	e.PublishMessage(p)
	assert.Equal(t, []sent{
		{"room:" + p.SessionID, models.EventReceiveMessage},
		{"user:gu1", models.EventNewMessage},
		{"user:m1", models.EventNewMessage},
	}, pub.sent)
}

func TestPublishTyping(t *testing.T) {
	e, _, pub := setup(t)
	e.PublishTyping("s1", TypingEvent{Room: "booking_b1", UserID: "c1"}, true, nil)
	e.PublishTyping("s1", TypingEvent{Room: "booking_b1", UserID: "c1"}, false, nil)
	assert.Equal(t, []sent{{"room:s1", models.EventTyping}, {"room:s1", models.EventStopTyping}}, pub.sent)
}

func TestRoleLabel(t *testing.T) {
	assert.Equal(t, "Mechanic", RoleLabel(models.RoleMechanic))
	assert.Equal(t, "User", RoleLabel(""))
}
