// Package wsconn carries ATT PDUs over a WebSocket, one binary message per
// PDU. It bridges a session to a remote BLE adapter or a simulated peer.
package wsconn

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire"
)

const logPrefix = "WS"

// WriteTimeout bounds each message write and the closing handshake.
const WriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn adapts a WebSocket connection to wire.Transport.
type Conn struct {
	ws        *websocket.Conn
	rmu       sync.Mutex
	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Wrap adapts an established WebSocket connection.
func Wrap(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(int64(2 * 1024))
	return &Conn{ws: ws}
}

// Dial opens a WebSocket connection to url.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "wsconn: dial %s: %s", url, resp.Status)
		}
		return nil, errors.Wrapf(err, "wsconn: dial %s", url)
	}
	logger.Debug(logPrefix, "connected to %s", url)
	return Wrap(ws), nil
}

// Dialer returns a DialFunc bound to url.
func Dialer(url string) wire.DialFunc {
	return func(ctx context.Context) (wire.Transport, error) {
		return Dial(ctx, url, nil)
	}
}

// Accept upgrades an HTTP request on the serving side.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "wsconn: upgrade")
	}
	logger.Debug(logPrefix, "accepted %s", r.RemoteAddr)
	return Wrap(ws), nil
}

// Read returns the next binary message. Text messages are skipped. A normal
// close from the peer reads as io.EOF.
func (c *Conn) Read(b []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		if typ != websocket.BinaryMessage {
			logger.Debug(logPrefix, "dropping non-binary message (%d bytes)", len(data))
			continue
		}
		if len(data) == 0 {
			continue
		}
		if len(data) > len(b) {
			return 0, errors.Wrapf(io.ErrShortBuffer, "wsconn: %d byte message", len(data))
		}
		return copy(b, data), nil
	}
}

// Write sends b as one binary message.
func (c *Conn) Write(b []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteTimeout))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
