package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Conn is the upstream transport surface the bridge needs.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(value any) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, rawURL, accessToken string) (Conn, error)
}

// frame is the logical-channel envelope spoken with the upstream
// event source.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func joinFrame(channel string) frame {
	return frame{Event: "join", Channel: channel}
}

func leaveFrame(channel string) frame {
	return frame{Event: "leave", Channel: channel}
}

func memberChannel(memberId int64) string {
	return fmt.Sprintf("member:%d", memberId)
}

type WebsocketDialer struct{}

func NewWebsocketDialer() WebsocketDialer {
	return WebsocketDialer{}
}

func (WebsocketDialer) Dial(ctx context.Context, rawURL, accessToken string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("websocket.DialContext: %w", err)
	}

	return websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (c websocketConn) ReadMessage() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c websocketConn) WriteJSON(value any) error {
	return c.conn.WriteJSON(value)
}

func (c websocketConn) Close() error {
	return c.conn.Close()
}

// isNetworkClose reports close frames sent by the peer when the
// hosting environment drops idle transports. Those drops keep the
// connection record so the next user action can lazily reconnect.
func isNetworkClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
