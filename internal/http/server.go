package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Pratikk2op/Mechiee-sub000/internal/chat"
	"github.com/Pratikk2op/Mechiee-sub000/internal/dispatch"
	"github.com/Pratikk2op/Mechiee-sub000/internal/geo"
	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/presence"
	"github.com/Pratikk2op/Mechiee-sub000/internal/rooms"
)

// LocationPublisher forwards garage location updates to the ingest topic.
type LocationPublisher interface {
	PublishGarageLocation(ctx context.Context, loc models.GarageLocation) error
}

// GarageCatalog is where location updates look up who owns a garage.
type GarageCatalog interface {
	GetGarage(ctx context.Context, id string) (*models.Garage, error)
}

// garageRegistrar is implemented by catalogs with no other source of
// garages; location updates register garages with them.
type garageRegistrar interface {
	PutGarage(g models.Garage)
}

// MemberLister reports who is connected to a room, across instances when
// backed by the Redis mirror.
type MemberLister interface {
	Members(ctx context.Context, roomKey string) ([]presence.Member, error)
}

// Deps are the collaborators the server routes to. Optional ones may be nil.
type Deps struct {
	Dispatch *dispatch.Service
	Rooms    *rooms.Registry
	Chat     *chat.Engine
	Hub      *presence.Hub
	Locator  geo.Locator

	Locations LocationPublisher
	Garages   GarageCatalog
	Members   MemberLister
	Ready     func(ctx context.Context) error
	Logger    *slog.Logger
}

type Server struct {
	dispatch  *dispatch.Service
	rooms     *rooms.Registry
	chat      *chat.Engine
	hub       *presence.Hub
	locator   geo.Locator
	locations LocationPublisher
	garages   GarageCatalog
	members   MemberLister
	ready     func(ctx context.Context) error
	logger    *slog.Logger
	mux       *mux.Router
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		dispatch:  d.Dispatch,
		rooms:     d.Rooms,
		chat:      d.Chat,
		hub:       d.Hub,
		locator:   d.Locator,
		locations: d.Locations,
		garages:   d.Garages,
		members:   d.Members,
		ready:     d.Ready,
		logger:    logger.With("component", "http"),
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.identityMiddleware)

	api.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/accept", s.handleAcceptBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/reject", s.handleRejectBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/room", s.handleBookingRoom).Methods(http.MethodGet)

	api.HandleFunc("/chat/rooms", s.handleListRooms).Methods(http.MethodGet)
	api.HandleFunc("/chat/rooms/{roomId}", s.handleRoomHistory).Methods(http.MethodGet)
	api.HandleFunc("/chat/rooms/{roomId}/messages", s.handlePostMessage).Methods(http.MethodPost)
	api.HandleFunc("/chat/rooms/{roomId}/messages/{messageId}", s.handleDeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/chat/rooms/{roomId}/messages/{messageId}/reactions", s.handleReact).Methods(http.MethodPost)
	api.HandleFunc("/chat/rooms/{roomId}/read", s.handleMarkRead).Methods(http.MethodPost)
	api.HandleFunc("/chat/rooms/{roomId}/location", s.handleShareLocation).Methods(http.MethodPost)
	api.HandleFunc("/chat/rooms/{roomId}/deactivate", s.handleDeactivateRoom).Methods(http.MethodPost)
	api.HandleFunc("/chat/rooms/{roomId}/presence", s.handleRoomPresence).Methods(http.MethodGet)

	api.HandleFunc("/support/tickets", s.handleOpenTicket).Methods(http.MethodPost)
	api.HandleFunc("/support/tickets/{id}", s.handleUpdateTicket).Methods(http.MethodPatch)

	s.mux.HandleFunc("/internal/garages/locations", s.handleGarageLocation).Methods(http.MethodPost)
	s.mux.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
