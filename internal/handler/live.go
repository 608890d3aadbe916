package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xenking/pizza-delivery/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Clients only send control frames.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware and the API key.
	CheckOrigin: func(*http.Request) bool { return true },
}

// LiveOrders handles GET /api/orders/live: a websocket streaming status
// changes of the caller's orders as {"orderId", "userId", "status", "at"}.
func (h *Handler) LiveOrders(w http.ResponseWriter, r *http.Request) {
	userID := principal(r).UserID
	lg := zctx.From(r.Context())

	// The subscription outlives the handler, so it must not use the request
	// context directly.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	sub, err := h.events.Subscribe(ctx, userID)
	if err != nil {
		cancel()
		writeError(w, r, err, "Failed to subscribe to order updates")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		lg.Debug("Websocket upgrade failed", zap.Error(err))
		sub.Close()
		cancel()
		return
	}
	lg.Debug("Live updates subscribed")

	go writePump(conn, sub, cancel, lg)
	go readPump(ctx, conn, cancel, lg)
}

// readPump discards client frames and detects disconnects via pong
// deadlines. It cancels the subscription when the peer goes away.
func readPump(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, lg *zap.Logger) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for ctx.Err() == nil {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				lg.Debug("Websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

// writePump forwards subscription events and keeps the connection alive
// with pings. It owns the connection and closes it on exit.
func writePump(conn *websocket.Conn, sub *events.Subscription, cancel context.CancelFunc, lg *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		cancel()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, ev.Marshal()); err != nil {
				lg.Debug("Websocket write failed", zap.Error(err))
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
