package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Pratikk2op/Mechiee-sub000/internal/dispatch"
	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var draft models.BookingDraft
	if err := decodeJSON(r, &draft); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := identityFrom(r.Context())
	switch id.Role {
	case models.RoleCustomer:
		draft.CustomerID = id.UserID
	case models.RoleAdmin:
	default:
		s.writeError(w, r, models.ErrPermissionDenied)
		return
	}
	res, err := s.dispatch.CreateAndDispatch(r.Context(), draft)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type acceptRequest struct {
	GarageID   string `json:"garageId"`
	MechanicID string `json:"mechanicId"`
}

func (s *Server) handleAcceptBooking(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.dispatch.Accept(r.Context(), callerFrom(r), mux.Vars(r)["id"], req.GarageID, req.MechanicID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type rejectRequest struct {
	GarageID string `json:"garageId"`
	Reason   string `json:"reason"`
}

func (s *Server) handleRejectBooking(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.dispatch.Reject(r.Context(), callerFrom(r), mux.Vars(r)["id"], req.GarageID, req.Reason); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBookingRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.dispatch.RoomIDFor(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roomId": room})
}

func callerFrom(r *http.Request) dispatch.Caller {
	id := identityFrom(r.Context())
	return dispatch.Caller{UserID: id.UserID, Role: id.Role}
}
