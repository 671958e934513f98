package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wordduel-zk/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

// wsMessage is one push to the UI. The first message after connecting is the
// current status with origin "status".
type wsMessage struct {
	Origin  string    `json:"origin"`
	Address string    `json:"address,omitempty"`
	Game    *gameView `json:"game"`
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := s.opts.Events.Subscribe()
	defer unsubscribe()

	first := wsMessage{Origin: "status", Address: s.opts.Engine.Address()}
	if gs, err := s.opts.Engine.Status(); err == nil {
		first.Game = viewOf(gs)
	}
	if err := writeMessage(conn, first); err != nil {
		return
	}

	// the client only sends control frames; reading drives pong handling
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeMessage(conn, eventMessage(ev)); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func eventMessage(ev store.Event) wsMessage {
	return wsMessage{Origin: ev.Origin.String(), Game: viewOf(ev.State)}
}

func writeMessage(conn *websocket.Conn, m wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m)
}
