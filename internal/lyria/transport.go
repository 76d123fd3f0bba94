package lyria

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open socket. ReadMessage and WriteMessage follow gorilla's
// message-type convention.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn to target.
type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer       *websocket.Dialer
	Header       http.Header
	ReadLimit    int64
	WriteTimeout time.Duration
}

// NewWebsocketDialer returns a dialer tuned for streamed audio frames.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  16 * 1024,
		},
		ReadLimit:    16 << 20,
		WriteTimeout: 10 * time.Second,
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, target string) (Conn, error) {
	conn, resp, err := d.Dialer.DialContext(ctx, target, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *wsConn) WriteMessage(messageType int, data []byte) error {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeGrace bounds the best-effort close frame.
const closeGrace = time.Second

// Close returns immediately. The close frame and the teardown of the socket
// happen in the background, bounded by closeGrace.
func (c *wsConn) Close() error {
	go func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		c.conn.Close()
	}()
	return nil
}
