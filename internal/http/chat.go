package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Pratikk2op/Mechiee-sub000/internal/chat"
	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/presence"
	"github.com/Pratikk2op/Mechiee-sub000/internal/rooms"
)

func actorFrom(r *http.Request) chat.Actor {
	id := identityFrom(r.Context())
	return chat.Actor{UserID: id.UserID, Role: id.Role}
}

func roomParam(r *http.Request) models.RoomID { return models.RoomID(mux.Vars(r)["roomId"]) }

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	list, err := s.chat.ListRooms(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []chat.RoomSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": list})
}

func (s *Server) handleRoomHistory(w http.ResponseWriter, r *http.Request) {
	detail, err := s.chat.History(r.Context(), roomParam(r), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type postMessageRequest struct {
	Content string             `json:"content"`
	Type    models.MessageType `json:"type"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.chat.PostMessage(r.Context(), roomParam(r), actorFrom(r), req.Content, req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.chat.PublishMessage(p)
	writeJSON(w, http.StatusCreated, p)
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.chat.MarkRead(r.Context(), roomParam(r), actorFrom(r), req.MessageIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.chat.PublishRead(res)
	marked := res.Marked
	if marked == nil {
		marked = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": res.SessionID, "room": res.Room, "marked": marked})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	t, err := s.chat.DeleteMessage(r.Context(), roomParam(r), actorFrom(r), mux.Vars(r)["messageId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": t.SessionID, "room": t.Room, "messageId": mux.Vars(r)["messageId"], "deleted": true})
}

type reactRequest struct {
	Emoji string `json:"emoji"`
}

func (s *Server) handleReact(w http.ResponseWriter, r *http.Request) {
	var req reactRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.chat.React(r.Context(), roomParam(r), actorFrom(r), mux.Vars(r)["messageId"], req.Emoji)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleShareLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.Coord
	if err := decodeJSON(r, &loc); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.chat.ShareLocation(r.Context(), roomParam(r), actorFrom(r), loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.chat.PublishLocation(p, loc)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeactivateRoom(w http.ResponseWriter, r *http.Request) {
	if identityFrom(r.Context()).Role != models.RoleAdmin {
		s.writeError(w, r, models.ErrPermissionDenied)
		return
	}
	if err := s.rooms.Deactivate(r.Context(), roomParam(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoomPresence(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	sess, tag, err := s.rooms.Lookup(r.Context(), roomParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !rooms.CanAccess(sess, id.UserID, id.Role) {
		s.writeError(w, r, models.ErrPermissionDenied)
		return
	}
	var members []presence.Member
	if s.members != nil {
		members, err = s.members.Members(r.Context(), sess.ID)
		if err != nil {
			s.logger.Warn("presence mirror unavailable, using local view", "session_id", sess.ID, "error", err)
			members = s.hub.RoomMembers(sess.ID)
		}
	} else {
		members = s.hub.RoomMembers(sess.ID)
	}
	if members == nil {
		members = []presence.Member{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sess.ID, "room": tag, "members": members})
}
