package models

import (
	"fmt"
	"strings"
)

type RoomKind string

const (
	RoomBooking      RoomKind = "booking"
	RoomSupport      RoomKind = "support"
	RoomAdminSupport RoomKind = "admin_support"
)

const (
	bookingPrefix      = "booking_"
	supportPrefix      = "support_"
	adminSupportPrefix = "admin_support_"
)

// RoomID is the tagged wire identifier of a room:
// booking_<bookingId>, support_<bookingId> or admin_support_<chatId>.
type RoomID string

func BookingRoom(bookingID string) RoomID      { return RoomID(bookingPrefix + bookingID) }
func SupportRoom(bookingID string) RoomID      { return RoomID(supportPrefix + bookingID) }
func AdminSupportRoom(sessionID string) RoomID { return RoomID(adminSupportPrefix + sessionID) }

// Parse splits the tag by prefix. admin_support_ is checked first so the
// order of evaluation never depends on prefix overlap.
func (r RoomID) Parse() (RoomKind, string, error) {
	s := string(r)
	var kind RoomKind
	var id string
	switch {
	case strings.HasPrefix(s, adminSupportPrefix):
		kind, id = RoomAdminSupport, strings.TrimPrefix(s, adminSupportPrefix)
	case strings.HasPrefix(s, bookingPrefix):
		kind, id = RoomBooking, strings.TrimPrefix(s, bookingPrefix)
	case strings.HasPrefix(s, supportPrefix):
		kind, id = RoomSupport, strings.TrimPrefix(s, supportPrefix)
	default:
		return "", "", &ValidationError{Field: "room", Reason: fmt.Sprintf("unknown room id %q", s)}
	}
	if id == "" {
		return "", "", &ValidationError{Field: "room", Reason: fmt.Sprintf("room id %q has no entity id", s)}
	}
	return kind, id, nil
}

func (r RoomID) String() string { return string(r) }

// RoomIDForBooking derives the tag from the booking's current status. Callers
// must not cache the result across a status change.
func RoomIDForBooking(b *Booking) RoomID {
	if b.Status == BookingPending {
		return SupportRoom(b.ID)
	}
	return BookingRoom(b.ID)
}
