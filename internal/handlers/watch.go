package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/voice-match/internal/middleware"
	"github.com/mossy-p/voice-match/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// watchEvent is one push frame on the watch socket.
type watchEvent struct {
	Type    string                   `json:"type"` // "signal-state" or "error"
	Session *models.SignalingSession `json:"session,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

type watchClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Watch pushes signaling-session updates for the caller/peer pair over a
// websocket, so push-capable clients don't have to poll the relay store.
// Browsers can't set headers on websocket dials, so the identity token is
// accepted as a query parameter as well.
func (a *API) Watch(c *gin.Context) {
	token := c.Query("token")
	identity, err := middleware.ParseIdentity(token, a.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}
	peer := c.Param("peer")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("failed to upgrade connection")
		return
	}

	client := &watchClient{
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}

	go client.writePump()
	go client.readPump()
	go a.watchLoop(client, identity, peer)
}

// watchLoop polls the relay store and pushes the session whenever its
// watermark moves.
func (a *API) watchLoop(client *watchClient, identity, peer string) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-client.done:
			return
		case <-ticker.C:
			session, err := a.Signals.State(identity, peer)
			if err != nil {
				client.sendEvent(watchEvent{Type: "error", Error: err.Error()})
				client.conn.Close()
				return
			}
			if session == nil || !session.LastUpdated.After(last) {
				continue
			}
			last = session.LastUpdated
			client.sendEvent(watchEvent{Type: "signal-state", Session: session})
		}
	}
}

func (c *watchClient) sendEvent(ev watchEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logrus.WithError(err).Warn("failed to marshal watch event")
		return
	}
	select {
	case c.send <- data:
	default:
		logrus.Warn("watch client buffer full, dropping update")
	}
}

// readPump discards inbound frames; it exists to notice the close handshake
// and keep the read deadline fresh via pongs.
func (c *watchClient) readPump() {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Debug("watch socket closed")
			}
			return
		}
	}
}

func (c *watchClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
