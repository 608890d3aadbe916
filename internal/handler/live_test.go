package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pizza-delivery/internal/domain/order"
	"github.com/xenking/pizza-delivery/internal/events"
)

func dialLive(t *testing.T, srv *httptest.Server, key string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/orders/live"
	if key != "" {
		url += "?api_key=" + key
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestLiveOrders(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	conn, _, err := dialLive(t, srv, customerKey)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.bus.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	other := testOrder("o9")
	other.UserID = "someone-else"
	require.NoError(t, f.bus.PublishStatusChange(t.Context(), &other))

	mine := testOrder("o1")
	mine.Status = order.StatusDispatched
	require.NoError(t, f.bus.PublishStatusChange(t.Context(), &mine))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	ev, err := events.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "o1", ev.OrderID)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, order.StatusDispatched, ev.Status)
}

func TestLiveOrders_ClientCloseUnsubscribes(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	conn, _, err := dialLive(t, srv, customerKey)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.bus.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return f.bus.Subscribers("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLiveOrders_Unauthorized(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	_, resp, err := dialLive(t, srv, "")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
