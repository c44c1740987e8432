package models

// Outbound event names. Clients match these byte-for-byte.
const (
	EventNewBookingRequest = "newBookingRequest"
	EventBookingAccepted   = "bookingAccepted"
	EventBookingRejected   = "bookingRejected"
	EventNotification      = "notification"
	EventReceiveMessage    = "receiveMessage"
	EventNewMessage        = "newMessage"
	EventUserJoined        = "userJoined"
	EventUserLeft          = "userLeft"
	EventUserDisconnected  = "userDisconnected"
	EventTyping            = "typing"
	EventStopTyping        = "stopTyping"
	EventMessagesRead      = "messagesRead"
	EventLocationUpdated   = "locationUpdated"
	EventChatSessionInfo   = "chatSessionInfo"
	EventError             = "error"
)

// Inbound client events on the websocket.
const (
	ClientJoinRoom      = "joinRoom"
	ClientLeaveRoom     = "leaveRoom"
	ClientSendMessage   = "sendMessage"
	ClientTyping        = "typing"
	ClientStopTyping    = "stopTyping"
	ClientMarkRead      = "markRead"
	ClientShareLocation = "shareLocation"
)

// Envelope is the frame shape used in both directions on the websocket.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
