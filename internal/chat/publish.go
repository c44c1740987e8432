package chat

import (
	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/presence"
)

// Publisher is the part of the presence hub used for chat fan-out.
type Publisher interface {
	SendToRoom(roomKey, event string, payload any, skip *presence.Client) int
	SendToUser(userID, event string, payload any) int
}

// TypingEvent is relayed as typing or stopTyping.
type TypingEvent struct {
	Room    models.RoomID `json:"room"`
	UserID  string        `json:"userId"`
	Name    string        `json:"name,omitempty"`
	QuietMs int           `json:"quietMs,omitempty"`
}

type LocationEvent struct {
	Target
	UserID string       `json:"userId"`
	Loc    models.Coord `json:"location"`
}

// PublishMessage sends p to everyone in its room and a newMessage badge to
// each participant other than the sender, wherever they are connected.
func (e *Engine) PublishMessage(p *Posted) {
	if e.pub == nil {
		return
	}
	e.pub.SendToRoom(p.SessionID, models.EventReceiveMessage, p, nil)
	for _, uid := range p.Participants.UserIDs() {
		if uid == p.Message.SenderID {
			continue
		}
		e.pub.SendToUser(uid, models.EventNewMessage, p)
	}
}

// PublishRead tells the room which messages r's reader has now seen.
func (e *Engine) PublishRead(r *ReadResult) {
	if e.pub == nil || len(r.Marked) == 0 {
		return
	}
	e.pub.SendToRoom(r.SessionID, models.EventMessagesRead, r, nil)
}

// PublishLocation emits the posted location message and a locationUpdated
// event for live maps.
func (e *Engine) PublishLocation(p *Posted, loc models.Coord) {
	e.PublishMessage(p)
	if e.pub == nil {
		return
	}
	e.pub.SendToRoom(p.SessionID, models.EventLocationUpdated, LocationEvent{Target: p.Target, UserID: p.Message.SenderID, Loc: loc}, nil)
}

// PublishTyping relays a typing change to the rest of the room.
func (e *Engine) PublishTyping(sessionID string, ev TypingEvent, typing bool, from *presence.Client) {
	if e.pub == nil {
		return
	}
	name := models.EventStopTyping
	if typing {
		name = models.EventTyping
		ev.QuietMs = QuietMs
	}
	e.pub.SendToRoom(sessionID, name, ev, from)
}
