package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second
)

// client is one connected editor browser.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// event is the envelope pushed to editors over the WebSocket.
type event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}

	go s.writePump(c)
	go s.readPump(c)

	s.register <- c
}

// broadcastEvent fans an event out to all connected editors. Sends never
// block: the hub drops messages for clients whose buffers are full.
func (s *PreviewServer) broadcastEvent(typ string, data interface{}) {
	payload, err := json.Marshal(event{Type: typ, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		s.logger.Warn(context.Background(), err, "encoding websocket event", "type", typ)
		return
	}
	select {
	case s.broadcast <- payload:
	default:
	}
}

func (s *PreviewServer) runHub(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-s.register:
			s.clientsMutex.Lock()
			s.clients[c.conn] = c
			count := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "editor connected", "clients", count)

		case conn := <-s.unregister:
			s.clientsMutex.Lock()
			if c, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(c.send)
			}
			count := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "editor disconnected", "clients", count)

		case msg := <-s.broadcast:
			s.clientsMutex.RLock()
			for conn, c := range s.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer, skip this message.
					_ = conn
				}
			}
			s.clientsMutex.RUnlock()

		case <-ticker.C:
			s.clientsMutex.RLock()
			for conn := range s.clients {
				pingCtx, cancel := context.WithTimeout(ctx, writeWait)
				if err := conn.Ping(pingCtx); err != nil {
					go func(conn *websocket.Conn) { s.unregister <- conn }(conn)
				}
				cancel()
			}
			s.clientsMutex.RUnlock()
		}
	}
}

func (s *PreviewServer) writePump(c *client) {
	for msg := range c.send {
		writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := c.conn.Write(writeCtx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			break
		}
	}
	c.conn.Close(websocket.StatusNormalClosure, "")
}

// readPump drains inbound frames. Editors do not send data; reads only
// surface pings and the close handshake.
func (s *PreviewServer) readPump(c *client) {
	defer func() {
		s.unregister <- c.conn
	}()
	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
