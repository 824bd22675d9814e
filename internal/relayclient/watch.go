package relayclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/voice-match/internal/models"
)

type watchFrame struct {
	Type    string                   `json:"type"`
	Session *models.SignalingSession `json:"session,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// Watch subscribes to push updates of the signaling session with peer. The
// returned channel delivers each new session snapshot and closes when the
// context is cancelled or the socket drops; callers fall back to polling.
func (c *Client) Watch(ctx context.Context, peer string) (<-chan *models.SignalingSession, error) {
	wsBase := strings.Replace(c.base, "http", "ws", 1)
	dialURL := wsBase + "/ws/watch/" + url.PathEscape(peer) + "?token=" + url.QueryEscape(c.token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial watch socket: %w", err)
	}

	updates := make(chan *models.SignalingSession, 4)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(updates)
		defer conn.Close()
		for {
			var frame watchFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if ctx.Err() == nil {
					logrus.WithError(err).Debug("watch socket closed")
				}
				return
			}
			switch frame.Type {
			case "signal-state":
				select {
				case updates <- frame.Session:
				case <-ctx.Done():
					return
				}
			case "error":
				logrus.WithField("error", frame.Error).Warn("watch stream error")
				return
			}
		}
	}()

	return updates, nil
}
