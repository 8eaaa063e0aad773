package events

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"callcenter-platform/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Upgrader returns a websocket upgrader restricted to the given origins.
// An empty list or "*" accepts any origin.
func Upgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := map[string]bool{}
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// Handler streams hub events to one websocket client as JSON frames.
// GET /ws/events
func Handler(h *Hub, up websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)
		conn, err := up.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "err", err)
			return
		}
		sub := h.Subscribe()
		log.Debug("websocket connected", "subscriber", sub.ID)

		go readPump(conn, sub)
		writePump(conn, sub)
		log.Debug("websocket disconnected", "subscriber", sub.ID)
	}
}

// readPump only drains control frames; observers never send data.
func readPump(conn *websocket.Conn, sub *Subscriber) {
	defer sub.Close()
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
}

func writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = conn.Close()
	}()

	for {
		select {
		case e, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(e); err != nil {
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
