package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Pratikk2op/Mechiee-sub000/internal/geo"
	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/notify"
	"github.com/Pratikk2op/Mechiee-sub000/internal/observability"
	"github.com/Pratikk2op/Mechiee-sub000/internal/presence"
	"github.com/Pratikk2op/Mechiee-sub000/internal/storage"
)

// DefaultRadiusKm is how far from the customer garages are invited.
const DefaultRadiusKm = 5.0

type Store interface {
	storage.BookingStore
	storage.GarageStore
}

type Rooms interface {
	Resolve(ctx context.Context, roomID models.RoomID) (*models.ChatSession, models.RoomID, error)
	ResyncParticipants(ctx context.Context, roomID models.RoomID) (*models.ChatSession, error)
	RoomIDFor(ctx context.Context, bookingID string) (models.RoomID, error)
}

type Notifier interface {
	ToUser(ctx context.Context, userID string, note notify.Note)
	ToRole(ctx context.Context, role models.Role, note notify.Note)
}

type Broadcaster interface {
	SendToUser(userID, event string, payload any) int
	SendToRole(role models.Role, event string, payload any) int
	SendToRoom(roomKey, event string, payload any, skip *presence.Client) int
}

type ETA interface {
	Minutes(ctx context.Context, from, to models.Coord) int
}

// Service turns a booking into a race among nearby garages and settles the
// race exactly once.
type Service struct {
	Store    Store
	Geo      geo.Locator
	ETA      ETA // optional
	Rooms    Rooms
	Notify   Notifier
	Hub      Broadcaster
	RadiusKm float64
	Logger   *slog.Logger
	Now      func() time.Time
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) radius() float64 {
	if s.RadiusKm <= 0 {
		return DefaultRadiusKm
	}
	return s.RadiusKm
}

// Dispatched is the result of CreateAndDispatch.
type Dispatched struct {
	BookingID         string        `json:"bookingId"`
	NotifiedGarageIDs []string      `json:"notifiedGarageIds"`
	RoomID            models.RoomID `json:"roomId"`
}

// BookingRequest is the newBookingRequest payload sent to one garage.
type BookingRequest struct {
	BookingID    string        `json:"bookingId"`
	GarageID     string        `json:"garageId,omitempty"`
	CustomerID   string        `json:"customerId"`
	Address      string        `json:"address"`
	BikeCompany  string        `json:"bikeCompany"`
	BikeModel    string        `json:"bikeModel"`
	ServiceTypes []string      `json:"serviceTypes,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	Location     models.Coord  `json:"location"`
	DistanceKm   float64       `json:"distanceKm,omitempty"`
	EtaMinutes   int           `json:"etaMinutes,omitempty"`
	Candidates   []string      `json:"candidates,omitempty"`
	Room         models.RoomID `json:"room"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// AcceptedEvent is broadcast when a garage wins a booking.
type AcceptedEvent struct {
	BookingID  string        `json:"bookingId"`
	GarageID   string        `json:"garageId"`
	GarageName string        `json:"garageName,omitempty"`
	MechanicID string        `json:"mechanicId"`
	Room       models.RoomID `json:"room"`
	AcceptedAt time.Time     `json:"acceptedAt"`
}

type RejectedEvent struct {
	BookingID string `json:"bookingId"`
	GarageID  string `json:"garageId"`
	Reason    string `json:"reason,omitempty"`
}

func validateDraft(d models.BookingDraft) error {
	required := []struct{ field, value string }{
		{"customerId", d.CustomerID},
		{"address", d.Address},
		{"bikeCompany", d.BikeCompany},
		{"bikeModel", d.BikeModel},
		{"registrationNumber", d.RegistrationNumber},
		{"contact", d.Contact},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &models.ValidationError{Field: r.field, Reason: "required"}
		}
	}
	if d.Location == nil {
		return &models.ValidationError{Field: "location", Reason: "required"}
	}
	if !d.Location.Valid() {
		return &models.ValidationError{Field: "location", Reason: "coordinates out of range"}
	}
	return nil
}

// CreateAndDispatch validates the draft, finds garages in range, persists the
// booking as pending and invites every candidate. Nothing is stored when the
// draft is invalid or no garage is in range.
func (s *Service) CreateAndDispatch(ctx context.Context, draft models.BookingDraft) (*Dispatched, error) {
	start := time.Now()
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	origin := *draft.Location
	nearby, err := s.Geo.Nearby(ctx, origin, s.radius())
	if err != nil {
		return nil, fmt.Errorf("find nearby garages: %w", err)
	}
	var candidates []models.Garage
	for _, g := range geo.WithinRadius(origin, nearby, s.radius()) {
		if g.Active {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		observability.BookingsNoCoverage.Inc()
		s.logger().Info("no garages in range", "customer_id", draft.CustomerID, "lat", origin.Lat, "lon", origin.Lon, "radius_km", s.radius())
		return nil, models.ErrNoCoverage
	}

	now := s.now()
	b := &models.Booking{
		ID:                 uuid.NewString(),
		CustomerID:         draft.CustomerID,
		Status:             models.BookingPending,
		Location:           origin,
		Address:            strings.TrimSpace(draft.Address),
		BikeCompany:        strings.TrimSpace(draft.BikeCompany),
		BikeModel:          strings.TrimSpace(draft.BikeModel),
		RegistrationNumber: strings.TrimSpace(draft.RegistrationNumber),
		Contact:            strings.TrimSpace(draft.Contact),
		ServiceTypes:       draft.ServiceTypes,
		Notes:              draft.Notes,
		RejectedBy:         []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for _, g := range candidates {
		b.Candidates = append(b.Candidates, g.ID)
	}
	if err := s.Store.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	room := models.RoomIDForBooking(b)
	log := s.logger().With("booking_id", b.ID)
	if _, _, err := s.Rooms.Resolve(ctx, room); err != nil {
		log.Error("create booking chat session", "error", err)
		return nil, fmt.Errorf("create chat session for booking %s: %w", b.ID, err)
	}

	base := BookingRequest{
		BookingID:    b.ID,
		CustomerID:   b.CustomerID,
		Address:      b.Address,
		BikeCompany:  b.BikeCompany,
		BikeModel:    b.BikeModel,
		ServiceTypes: b.ServiceTypes,
		Notes:        b.Notes,
		Location:     b.Location,
		Room:         room,
		CreatedAt:    b.CreatedAt,
	}
	for _, g := range candidates {
		req := base
		req.GarageID = g.ID
		pos, _ := g.Position()
		req.DistanceKm = math.Round(geo.DistanceKm(origin, pos)*100) / 100
		if s.ETA != nil {
			req.EtaMinutes = s.ETA.Minutes(ctx, pos, origin)
		}
		if g.UserID != "" {
			s.Hub.SendToUser(g.UserID, models.EventNewBookingRequest, req)
		}
	}
	// garage dashboards refresh their pending list from the shared group
	shared := base
	shared.Candidates = b.Candidates
	s.Hub.SendToRole(models.RoleGarage, models.EventNewBookingRequest, shared)

	s.Notify.ToUser(ctx, b.CustomerID, notify.Note{
		Type:      "booking_created",
		Title:     "Booking confirmed",
		Message:   fmt.Sprintf("We have sent your request to %d nearby garages.", len(candidates)),
		BookingID: b.ID,
	})
	s.Notify.ToRole(ctx, models.RoleAdmin, notify.Note{
		Type:      "new_booking",
		Title:     "New booking",
		Message:   fmt.Sprintf("%s %s at %s, %d garages notified.", b.BikeCompany, b.BikeModel, b.Address, len(candidates)),
		BookingID: b.ID,
	})

	observability.BookingsDispatched.Inc()
	observability.GaragesNotified.Observe(float64(len(candidates)))
	observability.DispatchLatency.Observe(time.Since(start).Seconds())
	log.Info("booking dispatched", "customer_id", b.CustomerID, "candidates", len(candidates))
	return &Dispatched{BookingID: b.ID, NotifiedGarageIDs: b.Candidates, RoomID: room}, nil
}

// Caller is who is acting on a booking. Garage users may only act for the
// garage they own; admins may act for any garage.
type Caller struct {
	UserID string
	Role   models.Role
}

// garageFor loads garageID and checks that caller may act for it.
func (s *Service) garageFor(ctx context.Context, caller Caller, garageID string) (*models.Garage, error) {
	if caller.Role != models.RoleGarage && caller.Role != models.RoleAdmin {
		return nil, models.ErrPermissionDenied
	}
	garage, err := s.Store.GetGarage(ctx, garageID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &models.ValidationError{Field: "garageId", Reason: "unknown garage"}
		}
		return nil, err
	}
	if caller.Role != models.RoleAdmin && (garage.UserID == "" || garage.UserID != caller.UserID) {
		return nil, models.ErrPermissionDenied
	}
	return garage, nil
}

// Accept attaches garageID and mechanicID to a pending booking. Exactly one
// concurrent caller wins; the rest get models.ErrAlreadyResolved and must
// not retry.
func (s *Service) Accept(ctx context.Context, caller Caller, bookingID, garageID, mechanicID string) (*models.Booking, error) {
	if strings.TrimSpace(garageID) == "" {
		return nil, &models.ValidationError{Field: "garageId", Reason: "required"}
	}
	if strings.TrimSpace(mechanicID) == "" {
		return nil, &models.ValidationError{Field: "mechanicId", Reason: "required"}
	}
	garage, err := s.garageFor(ctx, caller, garageID)
	if err != nil {
		return nil, err
	}

	log := s.logger().With("booking_id", bookingID, "garage_id", garageID)
	b, err := s.Store.AcceptIfPending(ctx, bookingID, garageID, mechanicID, s.now())
	if errors.Is(err, models.ErrAlreadyResolved) {
		observability.AcceptOutcomes.WithLabelValues("lost").Inc()
		log.Info("accept lost race")
		return nil, err
	}
	if err != nil {
		observability.AcceptOutcomes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("accept booking %s: %w", bookingID, err)
	}
	observability.AcceptOutcomes.WithLabelValues("won").Inc()
	log.Info("booking accepted", "mechanic_id", mechanicID)

	room := models.RoomIDForBooking(b)
	ev := AcceptedEvent{
		BookingID:  b.ID,
		GarageID:   garageID,
		GarageName: garage.Name,
		MechanicID: mechanicID,
		Room:       room,
		AcceptedAt: s.now(),
	}
	if b.AcceptedAt != nil {
		ev.AcceptedAt = *b.AcceptedAt
	}
	// The acceptance is committed; other garages must hear about it even if
	// the room cannot be updated.
	s.Hub.SendToRole(models.RoleGarage, models.EventBookingAccepted, ev)

	session, err := s.Rooms.ResyncParticipants(ctx, room)
	if err != nil {
		log.Error("resync chat participants", "error", err)
		return nil, &RoomSyncError{BookingID: b.ID, Err: err}
	}
	s.Hub.SendToRoom(session.ID, models.EventBookingAccepted, ev, nil)

	s.Notify.ToUser(ctx, b.CustomerID, notify.Note{
		Type:      "booking_accepted",
		Title:     "Booking accepted",
		Message:   fmt.Sprintf("%s accepted your booking.", garageLabel(garage)),
		BookingID: b.ID,
	})
	s.Notify.ToUser(ctx, mechanicID, notify.Note{
		Type:      "booking_assigned",
		Title:     "New job assigned",
		Message:   fmt.Sprintf("%s %s at %s", b.BikeCompany, b.BikeModel, b.Address),
		BookingID: b.ID,
	})
	s.Notify.ToRole(ctx, models.RoleAdmin, notify.Note{
		Type:      "booking_accepted",
		Title:     "Booking accepted",
		Message:   fmt.Sprintf("%s accepted booking %s.", garageLabel(garage), b.ID),
		BookingID: b.ID,
	})
	return b, nil
}

func garageLabel(g *models.Garage) string {
	if g.Name != "" {
		return g.Name
	}
	return "A garage"
}

// RoomSyncError means a booking was accepted but its chat room still holds
// the pre-acceptance participants. Retrying the accept will not help; the
// room heals the next time it is resolved.
type RoomSyncError struct {
	BookingID string
	Err       error
}

func (e *RoomSyncError) Error() string {
	return fmt.Sprintf("booking %s accepted but its chat room was not updated: %v", e.BookingID, e.Err)
}

func (e *RoomSyncError) Unwrap() error { return e.Err }

// Reject records that garageID passed on the booking. The status is left
// alone; a booking every garage rejected simply stays pending.
func (s *Service) Reject(ctx context.Context, caller Caller, bookingID, garageID, reason string) error {
	if strings.TrimSpace(garageID) == "" {
		return &models.ValidationError{Field: "garageId", Reason: "required"}
	}
	if _, err := s.garageFor(ctx, caller, garageID); err != nil {
		return err
	}
	b, err := s.Store.AddRejection(ctx, bookingID, garageID)
	if err != nil {
		return err
	}
	observability.BookingRejections.Inc()
	s.logger().Info("booking rejected", "booking_id", bookingID, "garage_id", garageID, "rejections", len(b.RejectedBy))
	s.Hub.SendToUser(b.CustomerID, models.EventBookingRejected, RejectedEvent{BookingID: b.ID, GarageID: garageID, Reason: reason})
	return nil
}

// RoomIDFor is the tag clients should use for the booking's chat right now.
func (s *Service) RoomIDFor(ctx context.Context, bookingID string) (models.RoomID, error) {
	return s.Rooms.RoomIDFor(ctx, bookingID)
}
