package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pratikk2op/Mechiee-sub000/internal/geo"
	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/notify"
	"github.com/Pratikk2op/Mechiee-sub000/internal/presence"
	"github.com/Pratikk2op/Mechiee-sub000/internal/rooms"
	"github.com/Pratikk2op/Mechiee-sub000/internal/storage"
)

var mumbai = models.Coord{Lat: 19.0760, Lon: 72.8777}

func northOf(c models.Coord, km float64) *models.Coord {
	return &models.Coord{Lat: c.Lat + km/(geo.EarthRadiusKm*math.Pi/180), Lon: c.Lon}
}

type fixture struct {
	svc   *Service
	store *storage.MemoryStore
	hub   *presence.Hub
}

func newFixture(t *testing.T, garages ...models.Garage) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, g := range garages {
		store.PutGarage(g)
	}
	hub := presence.NewHub(nil)
	reg := rooms.New(store, nil)
	svc := &Service{
		Store:  store,
		Geo:    geo.NewIndex(garages...),
		Rooms:  reg,
		Notify: notify.New(store, hub, nil),
		Hub:    hub,
	}
	return &fixture{svc: svc, store: store, hub: hub}
}

var admin = Caller{UserID: "a1", Role: models.RoleAdmin}

func owner(userID string) Caller { return Caller{UserID: userID, Role: models.RoleGarage} }

func draft() models.BookingDraft {
	loc := mumbai
	return models.BookingDraft{
		CustomerID:         "c1",
		Address:            "Marine Drive, Mumbai",
		BikeCompany:        "Bajaj",
		BikeModel:          "Pulsar 150",
		RegistrationNumber: "MH01AB1234",
		Contact:            "+91 90000 00000",
		Location:           &loc,
	}
}

func events(c *presence.Client) []models.Envelope {
	var out []models.Envelope
	for {
		select {
		case raw := <-c.Send():
			var env models.Envelope
			_ = json.Unmarshal(raw, &env)
			out = append(out, env)
		default:
			return out
		}
	}
}

func names(envs []models.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Event)
	}
	return out
}

func TestMumbaiScenario(t *testing.T) {
	ctx := context.Background()
	near := models.Garage{ID: "g-near", UserID: "gu-near", Name: "Colaba Cycles", Location: northOf(mumbai, 2), Active: true}
	far := models.Garage{ID: "g-far", UserID: "gu-far", Name: "Far Motors", Location: northOf(mumbai, 7), Active: true}
	f := newFixture(t, near, far)
	nearConn := f.hub.Register("gu-near", models.RoleGarage)
	farConn := f.hub.Register("gu-far", models.RoleGarage)
	custConn := f.hub.Register("c1", models.RoleCustomer)

	res, err := f.svc.CreateAndDispatch(ctx, draft())
	require.NoError(t, err)
	assert.Equal(t, []string{"g-near"}, res.NotifiedGarageIDs)
	assert.Equal(t, models.SupportRoom(res.BookingID), res.RoomID)

	b, err := f.store.GetBooking(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, []string{"g-near"}, b.Candidates)

	// the near garage gets a targeted request plus the shared one
	assert.Equal(t, []string{models.EventNewBookingRequest, models.EventNewBookingRequest}, names(events(nearConn)))
	// the far garage only sees the shared broadcast
	assert.Equal(t, []string{models.EventNewBookingRequest}, names(events(farConn)))
	assert.Equal(t, []string{models.EventNotification}, names(events(custConn)))

	s, err := f.store.GetSessionByBooking(ctx, res.BookingID)
	require.NoError(t, err)
	assert.True(t, s.IsAdminChat)

	accepted, err := f.svc.Accept(ctx, owner("gu-near"), res.BookingID, "g-near", "m1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, accepted.Status)
	assert.Equal(t, "g-near", accepted.GarageID)
	assert.Equal(t, "m1", accepted.MechanicID)

	tag, err := f.svc.RoomIDFor(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRoom(res.BookingID), tag)

	s, err = f.store.GetSessionByBooking(ctx, res.BookingID)
	require.NoError(t, err)
	assert.False(t, s.IsAdminChat)
	assert.Equal(t, "gu-near", s.Participants.GarageUserID)
}

func TestTargetedRequestCarriesDistance(t *testing.T) {
	ctx := context.Background()
	g := models.Garage{ID: "g1", UserID: "gu1", Location: northOf(mumbai, 2), Active: true}
	f := newFixture(t, g)
	f.svc.ETA = fixedETA(9)
	conn := f.hub.Register("gu1", models.RoleGarage)

	_, err := f.svc.CreateAndDispatch(ctx, draft())
	require.NoError(t, err)

	envs := events(conn)
	require.NotEmpty(t, envs)
	raw, err := json.Marshal(envs[0].Data)
	require.NoError(t, err)
	var req BookingRequest
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, "g1", req.GarageID)
	assert.InDelta(t, 2.0, req.DistanceKm, 0.01)
	assert.Equal(t, 9, req.EtaMinutes)
}

type fixedETA int

func (f fixedETA) Minutes(context.Context, models.Coord, models.Coord) int { return int(f) }

func TestNoCoveragePersistsNothing(t *testing.T) {
	ctx := context.Background()
	far := models.Garage{ID: "g-far", UserID: "gu-far", Location: northOf(mumbai, 7), Active: true}
	f := newFixture(t, far)

	_, err := f.svc.CreateAndDispatch(ctx, draft())
	assert.ErrorIs(t, err, models.ErrNoCoverage)
	assert.Empty(t, f.store.Notifications())
}

func TestInactiveGaragesAreSkipped(t *testing.T) {
	off := models.Garage{ID: "g-off", UserID: "gu-off", Location: northOf(mumbai, 1), Active: false}
	f := newFixture(t, off)
	_, err := f.svc.CreateAndDispatch(context.Background(), draft())
	assert.ErrorIs(t, err, models.ErrNoCoverage)
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(d *models.BookingDraft){
		"address":            func(d *models.BookingDraft) { d.Address = " " },
		"bikeCompany":        func(d *models.BookingDraft) { d.BikeCompany = "" },
		"registrationNumber": func(d *models.BookingDraft) { d.RegistrationNumber = "" },
		"contact":            func(d *models.BookingDraft) { d.Contact = "" },
		"location":           func(d *models.BookingDraft) { d.Location = nil },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			d := draft()
			mutate(&d)
			_, err := f.svc.CreateAndDispatch(context.Background(), d)
			var verr *models.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, field, verr.Field)
		})
	}

	d := draft()
	d.Location = &models.Coord{Lat: 120, Lon: 0}
	_, err := f.svc.CreateAndDispatch(context.Background(), d)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAcceptExactlyOnce(t *testing.T) {
	ctx := context.Background()
	var garages []models.Garage
	for i := 0; i < 8; i++ {
		id := string(rune('a' + i))
		garages = append(garages, models.Garage{ID: "g-" + id, UserID: "gu-" + id, Location: northOf(mumbai, float64(i)*0.5), Active: true})
	}
	f := newFixture(t, garages...)
	res, err := f.svc.CreateAndDispatch(ctx, draft())
	require.NoError(t, err)
	require.Len(t, res.NotifiedGarageIDs, 8)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []string
		losses int
	)
	for _, g := range garages {
		wg.Add(1)
		go func(g models.Garage) {
			defer wg.Done()
			_, err := f.svc.Accept(ctx, owner(g.UserID), res.BookingID, g.ID, "mech-"+g.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins = append(wins, g.ID)
				return
			}
			if errors.Is(err, models.ErrAlreadyResolved) {
				losses++
			}
		}(g)
	}
	wg.Wait()

	require.Len(t, wins, 1)
	assert.Equal(t, 7, losses)
	b, err := f.store.GetBooking(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, wins[0], b.GarageID)
	assert.Equal(t, "mech-"+wins[0], b.MechanicID)
}

func TestAcceptBroadcastsToGaragesAndRoom(t *testing.T) {
	ctx := context.Background()
	g1 := models.Garage{ID: "g1", UserID: "gu1", Name: "One", Location: northOf(mumbai, 1), Active: true}
	g2 := models.Garage{ID: "g2", UserID: "gu2", Name: "Two", Location: northOf(mumbai, 2), Active: true}
	f := newFixture(t, g1, g2)
	res, err := f.svc.CreateAndDispatch(ctx, draft())
	require.NoError(t, err)

	other := f.hub.Register("gu2", models.RoleGarage)
	cust := f.hub.Register("c1", models.RoleCustomer)
	s, err := f.store.GetSessionByBooking(ctx, res.BookingID)
	require.NoError(t, err)
	f.hub.Join(ctx, cust, presence.Room{Key: s.ID, ID: res.RoomID})
	mech := f.hub.Register("m1", models.RoleMechanic)

	_, err = f.svc.Accept(ctx, owner("gu1"), res.BookingID, "g1", "m1")
	require.NoError(t, err)

	assert.Equal(t, []string{models.EventBookingAccepted}, names(events(other)))
	assert.Equal(t, []string{models.EventBookingAccepted, models.EventNotification}, names(events(cust)))
	assert.Equal(t, []string{models.EventNotification}, names(events(mech)))
}

func TestAcceptUnknownBookingIsAlreadyResolved(t *testing.T) {
	g := models.Garage{ID: "g1", UserID: "gu1", Location: northOf(mumbai, 1), Active: true}
	f := newFixture(t, g)
	_, err := f.svc.Accept(context.Background(), owner("gu1"), "missing", "g1", "m1")
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
}

func TestAcceptUnknownGarage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Accept(context.Background(), admin, "b1", "nope", "m1")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRejectKeepsPendingAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g1 := models.Garage{ID: "g1", UserID: "gu1", Location: northOf(mumbai, 1), Active: true}
	g2 := models.Garage{ID: "g2", UserID: "gu2", Location: northOf(mumbai, 2), Active: true}
	f := newFixture(t, g1, g2)
	res, err := f.svc.CreateAndDispatch(ctx, draft())
	require.NoError(t, err)
	cust := f.hub.Register("c1", models.RoleCustomer)

	for _, gid := range []string{"g1", "g1", "g2"} {
		require.NoError(t, f.svc.Reject(ctx, admin, res.BookingID, gid, "busy"))
	}
	b, err := f.store.GetBooking(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, b.Status)
	assert.ElementsMatch(t, []string{"g1", "g2"}, b.RejectedBy)
	assert.Len(t, events(cust), 3)

	// a garage that passed cannot come back and take it
	_, err = f.svc.Accept(ctx, owner("gu1"), res.BookingID, "g1", "m1")
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)

	err = f.svc.Reject(ctx, owner("gu1"), "missing", "g1", "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGarageActsOnlyForItself(t *testing.T) {
	ctx := context.Background()
	g1 := models.Garage{ID: "g1", UserID: "gu1", Location: northOf(mumbai, 1), Active: true}
	g2 := models.Garage{ID: "g2", UserID: "gu2", Location: northOf(mumbai, 2), Active: true}
	f := newFixture(t, g1, g2)
	res, err := f.svc.CreateAndDispatch(ctx, draft())
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, owner("gu2"), res.BookingID, "g1", "m9")
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.Reject(ctx, owner("gu2"), res.BookingID, "g1", ""), models.ErrPermissionDenied)
	_, err = f.svc.Accept(ctx, Caller{UserID: "c1", Role: models.RoleCustomer}, res.BookingID, "g1", "m9")
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	b, err := f.store.GetBooking(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, b.Status)
	assert.Empty(t, b.RejectedBy)

	_, err = f.svc.Accept(ctx, owner("gu1"), res.BookingID, "g1", "m1")
	require.NoError(t, err)
}

// flakyRooms fails selected registry calls.
type flakyRooms struct {
	Rooms
	resolveErr error
	resyncErr  error
}

func (r *flakyRooms) Resolve(ctx context.Context, roomID models.RoomID) (*models.ChatSession, models.RoomID, error) {
	if r.resolveErr != nil {
		return nil, "", r.resolveErr
	}
	return r.Rooms.Resolve(ctx, roomID)
}

func (r *flakyRooms) ResyncParticipants(ctx context.Context, roomID models.RoomID) (*models.ChatSession, error) {
	if r.resyncErr != nil {
		return nil, r.resyncErr
	}
	return r.Rooms.ResyncParticipants(ctx, roomID)
}

func TestChatSessionFailureFailsDispatch(t *testing.T) {
	g := models.Garage{ID: "g1", UserID: "gu1", Location: northOf(mumbai, 1), Active: true}
	f := newFixture(t, g)
	boom := errors.New("sessions table unavailable")
	f.svc.Rooms = &flakyRooms{Rooms: f.svc.Rooms, resolveErr: boom}
	conn := f.hub.Register("gu1", models.RoleGarage)

	_, err := f.svc.CreateAndDispatch(context.Background(), draft())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, events(conn), "no garage is invited into a booking without a room")
	assert.Empty(t, f.store.Notifications())
}

func TestRoomSyncFailureIsReported(t *testing.T) {
	ctx := context.Background()
	g1 := models.Garage{ID: "g1", UserID: "gu1", Location: northOf(mumbai, 1), Active: true}
	g2 := models.Garage{ID: "g2", UserID: "gu2", Location: northOf(mumbai, 2), Active: true}
	f := newFixture(t, g1, g2)
	res, err := f.svc.CreateAndDispatch(ctx, draft())
	require.NoError(t, err)
	boom := errors.New("sessions table unavailable")
	f.svc.Rooms = &flakyRooms{Rooms: f.svc.Rooms, resyncErr: boom}
	other := f.hub.Register("gu2", models.RoleGarage)

	_, err = f.svc.Accept(ctx, owner("gu1"), res.BookingID, "g1", "m1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, models.ErrAlreadyResolved))
	var syncErr *RoomSyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, res.BookingID, syncErr.BookingID)

	// the acceptance itself stands and the other garages are told
	b, err := f.store.GetBooking(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, b.Status)
	assert.Equal(t, []string{models.EventBookingAccepted}, names(events(other)))
}
