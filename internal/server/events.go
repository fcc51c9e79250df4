package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/smallbiznis/agentdesk/internal/realtime"
	"go.uber.org/zap"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = 30 * time.Second
)

var eventsUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// StreamOrganizationEvents pushes credit, call and lead updates of one
// organization over a websocket. Client messages are read and discarded.
func (s *Server) StreamOrganizationEvents(c *gin.Context) {
	if s.hub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	org, err := s.organizationSvc.Get(c.Request.Context(), c.Param("org"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Subscribe before the upgrade so errors still render as JSON.
	subscription, backlog, err := s.hub.Subscribe(org.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer subscription.Close()

	conn, err := eventsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.log.With(zap.String("org_id", org.ID.String()))
	log.Debug("events subscriber connected")

	for _, event := range backlog {
		if err := writeEvent(conn, event); err != nil {
			return
		}
	}

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ping := time.NewTicker(eventsPingPeriod)
	defer ping.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			log.Debug("events subscriber disconnected")
			return
		case event := <-subscription.Events():
			if err := writeEvent(conn, event); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, event realtime.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
	return conn.WriteJSON(event)
}

// readUntilClosed drains client frames so pongs and close frames are
// processed, and signals closed once the connection fails.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
