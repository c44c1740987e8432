package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/rooms"
)

type openTicketRequest struct {
	Category    string                `json:"category"`
	Priority    models.TicketPriority `json:"priority"`
	Description string                `json:"description"`
}

func (s *Server) handleOpenTicket(w http.ResponseWriter, r *http.Request) {
	var req openTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := identityFrom(r.Context())
	sess, err := s.rooms.OpenSupportTicket(r.Context(), rooms.TicketRequest{
		UserID:      id.UserID,
		Role:        id.Role,
		Category:    req.Category,
		Priority:    req.Priority,
		Description: req.Description,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"ticket": sess,
		"roomId": models.AdminSupportRoom(sess.ID),
	})
}

func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	var upd models.TicketUpdate
	if err := decodeJSON(r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.rooms.UpdateTicketStatus(r.Context(), identityFrom(r.Context()).Role, mux.Vars(r)["id"], upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
