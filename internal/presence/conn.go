package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 * 1024
)

// Frame is an inbound client event with its payload left raw so the handler
// can decode it per event name.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// FrameHandler runs for each well-formed frame a client sends.
type FrameHandler func(ctx context.Context, c *Client, f Frame)

// Serve pumps conn until it closes. Writes drain c's queue; reads are decoded
// and passed to handle one at a time. Unregister is left to the caller so it
// can announce the departure.
func Serve(ctx context.Context, conn *websocket.Conn, c *Client, handle FrameHandler) {
	go writePump(conn, c)
	readPump(ctx, conn, c, handle)
}

func readPump(ctx context.Context, conn *websocket.Conn, c *Client, handle FrameHandler) {
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil || f.Event == "" {
			continue
		}
		handle(ctx, c, f)
	}
}

func writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
