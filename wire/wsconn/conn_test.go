package wsconn_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gattclient/wire"
	"github.com/user/gattclient/wire/att"
	"github.com/user/gattclient/wire/gatt"
	"github.com/user/gattclient/wire/gatt/gatttest"
	"github.com/user/gattclient/wire/wsconn"
)

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestSessionOverWebSocket(t *testing.T) {
	db := gatttest.NewDatabase()
	gatttest.Build(db, []gatttest.Service{gatttest.NewGenericAccessService("ws-peer", 0x0340)})
	peer := gatttest.NewPeer(db)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsconn.Accept(w, r)
		if err != nil {
			return
		}
		defer conn.Close()
		peer.Serve(conn)
	}))
	defer srv.Close()

	dev := wire.NewDevice("ws-peer", wire.WithTimeout(2*time.Second))
	require.NoError(t, dev.Connect(context.Background(), wsconn.Dialer(wsURL(srv))))
	defer dev.Disconnect()

	ctx := context.Background()
	services, err := gatt.DiscoverAllPrimaryServices(ctx, dev)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.True(t, services[0].UUID.Equal(att.UUID16(0x1800)))

	name, err := gatt.ReadCharacteristicValue(ctx, dev, 0x0003)
	require.NoError(t, err)
	assert.Equal(t, "ws-peer", string(name))
}

func TestReadSeesNormalClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsconn.Accept(w, r)
		if err != nil {
			return
		}
		conn.Write([]byte{0x1B, 0x03, 0x00, 0xAA})
		conn.Close()
	}))
	defer srv.Close()

	raw, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	c := wsconn.Wrap(raw)
	defer c.Close()

	buf := make([]byte, att.MinMTU)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1B, 0x03, 0x00, 0xAA}, buf[:n])

	_, err = c.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestReadShortBuffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.WriteMessage(websocket.TextMessage, []byte("hello"))
		ws.WriteMessage(websocket.BinaryMessage, make([]byte, 64))
		ws.ReadMessage()
	}))
	defer srv.Close()

	c, err := wsconn.Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Read(make([]byte, att.MinMTU))
	assert.Equal(t, io.ErrShortBuffer, errors.Cause(err))
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := wsconn.Dial(context.Background(), wsURL(srv), nil)
	assert.Error(t, err)
}
