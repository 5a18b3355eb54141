package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Write deadline for a single event. Tick events arrive every second, so a
// peer that cannot drain one inside this window is effectively gone.
const writeTimeout = 10 * time.Second

// Read deadline. The stream is push-only apart from ping, so reads are
// allowed to idle for a long stretch between keepalives.
const readTimeout = 5 * time.Minute

// WriteTyped sends a strongly-typed event payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes one client message, refreshing the read
// deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	return conn.ReadJSON(v)
}
