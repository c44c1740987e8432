package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Pratikk2op/Mechiee-sub000/internal/chat"
	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/presence"
	"github.com/Pratikk2op/Mechiee-sub000/internal/rooms"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Inbound payloads. Identity fields some clients still send (userId,
// sender, senderRole) are accepted but the connection identity wins.
type roomFrame struct {
	Room models.RoomID `json:"room"`
}

type sendMessageFrame struct {
	Room    models.RoomID      `json:"room"`
	Content string             `json:"content"`
	Type    models.MessageType `json:"type"`
}

type markReadFrame struct {
	Room       models.RoomID `json:"room"`
	MessageIDs []string      `json:"messageIds"`
}

type shareLocationFrame struct {
	Room models.RoomID `json:"room"`
	Lat  float64       `json:"lat"`
	Lon  float64       `json:"lon"`
}

// PresenceEvent is the payload of userJoined, userLeft and userDisconnected.
type PresenceEvent struct {
	Room   models.RoomID `json:"room"`
	UserID string        `json:"userId"`
	Role   models.Role   `json:"role"`
	Name   string        `json:"name,omitempty"`
}

type errorEvent struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	role := models.Role(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("role"))))
	if userID == "" || !role.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "userId and a valid role are required"})
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	// The request context ends with the handler; frame handlers must be
	// able to finish after the client goes away.
	ctx := context.WithoutCancel(r.Context())
	c := s.hub.Register(userID, role)
	log := s.logger.With("user_id", userID, "role", role, "client_id", c.ID)
	log.Info("websocket connected")

	presence.Serve(ctx, conn, c, s.handleFrame)

	if last := s.hub.Unregister(ctx, c); last != nil {
		s.hub.SendToRoom(last.Key, models.EventUserDisconnected, PresenceEvent{Room: last.ID, UserID: c.UserID, Role: c.Role}, nil)
	}
	log.Info("websocket disconnected")
}

func (s *Server) handleFrame(ctx context.Context, c *presence.Client, f presence.Frame) {
	var err error
	switch f.Event {
	case models.ClientJoinRoom:
		err = s.wsJoinRoom(ctx, c, f.Data)
	case models.ClientLeaveRoom:
		err = s.wsLeaveRoom(ctx, c, f.Data)
	case models.ClientSendMessage:
		err = s.wsSendMessage(ctx, c, f.Data)
	case models.ClientTyping:
		err = s.wsTyping(ctx, c, f.Data, true)
	case models.ClientStopTyping:
		err = s.wsTyping(ctx, c, f.Data, false)
	case models.ClientMarkRead:
		err = s.wsMarkRead(ctx, c, f.Data)
	case models.ClientShareLocation:
		err = s.wsShareLocation(ctx, c, f.Data)
	default:
		s.hub.SendToClient(c, models.EventError, errorEvent{Event: f.Event, Message: fmt.Sprintf("unknown event %q", f.Event), Code: "unknown_event"})
		return
	}
	if err != nil {
		s.sendError(c, f.Event, err)
	}
}

func (s *Server) sendError(c *presence.Client, event string, err error) {
	code := errorCode(err)
	msg := err.Error()
	if code == "internal" {
		s.logger.Error("websocket event failed", "event", event, "user_id", c.UserID, "error", err)
		msg = "internal error"
	}
	s.hub.SendToClient(c, models.EventError, errorEvent{Event: event, Message: msg, Code: code})
}

func decodeFrame(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return &models.ValidationError{Field: "data", Reason: "required"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &models.ValidationError{Field: "data", Reason: "malformed JSON"}
	}
	return nil
}

func requireRoom(id models.RoomID) error {
	if id == "" {
		return &models.ValidationError{Field: "room", Reason: "required"}
	}
	return nil
}

func clientActor(c *presence.Client) chat.Actor { return chat.Actor{UserID: c.UserID, Role: c.Role} }

func (s *Server) wsJoinRoom(ctx context.Context, c *presence.Client, data json.RawMessage) error {
	var in roomFrame
	if err := decodeFrame(data, &in); err != nil {
		return err
	}
	if err := requireRoom(in.Room); err != nil {
		return err
	}
	sess, tag, err := s.rooms.Resolve(ctx, in.Room)
	if err != nil {
		return err
	}
	if !rooms.CanAccess(sess, c.UserID, c.Role) {
		return models.ErrPermissionDenied
	}
	a := clientActor(c)
	if cur := s.hub.CurrentRoom(c); cur != nil && cur.Key == sess.ID {
		s.hub.Join(ctx, c, presence.Room{Key: sess.ID, ID: tag})
		s.hub.SendToClient(c, models.EventChatSessionInfo, s.chat.SessionInfo(sess, tag, c.UserID))
		return nil
	}

	name := s.chat.DisplayName(ctx, a)
	var errs []error
	if prev := s.hub.Join(ctx, c, presence.Room{Key: sess.ID, ID: tag}); prev != nil {
		errs = append(errs, s.announceLeave(ctx, c, *prev, name))
	}

	// Presence has already moved; a log that could not record it is
	// reported after the room has been told.
	joined, err := s.chat.SystemMessage(ctx, sess.ID, tag, c.Role, fmt.Sprintf("%s joined the chat", name))
	if err != nil {
		errs = append(errs, fmt.Errorf("record join: %w", err))
	} else {
		s.chat.PublishMessage(joined)
	}
	s.hub.SendToRoom(sess.ID, models.EventUserJoined, PresenceEvent{Room: tag, UserID: c.UserID, Role: c.Role, Name: name}, c)
	s.hub.SendToClient(c, models.EventChatSessionInfo, s.chat.SessionInfo(sess, tag, c.UserID))
	return errors.Join(errs...)
}

// announceLeave persists the departure from room and tells whoever is left.
func (s *Server) announceLeave(ctx context.Context, c *presence.Client, room presence.Room, name string) error {
	left, err := s.chat.SystemMessage(ctx, room.Key, room.ID, c.Role, fmt.Sprintf("%s left the chat", name))
	if err != nil {
		err = fmt.Errorf("record leave: %w", err)
	} else {
		s.chat.PublishMessage(left)
	}
	s.hub.SendToRoom(room.Key, models.EventUserLeft, PresenceEvent{Room: room.ID, UserID: c.UserID, Role: c.Role, Name: name}, nil)
	return err
}

func (s *Server) wsLeaveRoom(ctx context.Context, c *presence.Client, data json.RawMessage) error {
	var in roomFrame
	if err := decodeFrame(data, &in); err != nil {
		return err
	}
	if err := requireRoom(in.Room); err != nil {
		return err
	}
	sess, tag, err := s.rooms.Lookup(ctx, in.Room)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !s.hub.Leave(ctx, c, sess.ID) {
		return nil
	}
	return s.announceLeave(ctx, c, presence.Room{Key: sess.ID, ID: tag}, s.chat.DisplayName(ctx, clientActor(c)))
}

func (s *Server) wsSendMessage(ctx context.Context, c *presence.Client, data json.RawMessage) error {
	var in sendMessageFrame
	if err := decodeFrame(data, &in); err != nil {
		return err
	}
	if err := requireRoom(in.Room); err != nil {
		return err
	}
	p, err := s.chat.PostMessage(ctx, in.Room, clientActor(c), in.Content, in.Type)
	if err != nil {
		return err
	}
	s.chat.PublishMessage(p)
	return nil
}

func (s *Server) wsTyping(ctx context.Context, c *presence.Client, data json.RawMessage, typing bool) error {
	var in roomFrame
	if err := decodeFrame(data, &in); err != nil {
		return err
	}
	if err := requireRoom(in.Room); err != nil {
		return err
	}
	key := ""
	if cur := s.hub.CurrentRoom(c); cur != nil && cur.ID == in.Room {
		key = cur.Key
	} else {
		sess, _, err := s.rooms.Lookup(ctx, in.Room)
		if err != nil {
			return err
		}
		if !rooms.CanAccess(sess, c.UserID, c.Role) {
			return models.ErrPermissionDenied
		}
		key = sess.ID
	}
	ev := chat.TypingEvent{Room: in.Room, UserID: c.UserID}
	if typing {
		ev.Name = s.chat.DisplayName(ctx, clientActor(c))
	}
	s.chat.PublishTyping(key, ev, typing, c)
	return nil
}

func (s *Server) wsMarkRead(ctx context.Context, c *presence.Client, data json.RawMessage) error {
	var in markReadFrame
	if err := decodeFrame(data, &in); err != nil {
		return err
	}
	if err := requireRoom(in.Room); err != nil {
		return err
	}
	res, err := s.chat.MarkRead(ctx, in.Room, clientActor(c), in.MessageIDs)
	if err != nil {
		return err
	}
	s.chat.PublishRead(res)
	return nil
}

func (s *Server) wsShareLocation(ctx context.Context, c *presence.Client, data json.RawMessage) error {
	var in shareLocationFrame
	if err := decodeFrame(data, &in); err != nil {
		return err
	}
	if err := requireRoom(in.Room); err != nil {
		return err
	}
	loc := models.Coord{Lat: in.Lat, Lon: in.Lon}
	p, err := s.chat.ShareLocation(ctx, in.Room, clientActor(c), loc)
	if err != nil {
		return err
	}
	s.chat.PublishLocation(p, loc)
	return nil
}
