package fanout

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

const (
	clientSendBuf = 256
	writeDeadline = 5 * time.Second
	pongWait      = 30 * time.Second
	pingInterval  = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type streamClient struct {
	venue string // empty receives every venue
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
}

// Server streams execution and breaker events to dashboard WebSocket clients.
type Server struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func NewServer(bus *events.Bus) *Server {
	s := &Server{
		clients: make(map[*streamClient]struct{}),
	}
	bus.Subscribe(events.EventExecution, s.forward)
	bus.Subscribe(events.EventBreaker, s.forward)
	return s
}

// forward is called on the publisher's goroutine. It serializes the event
// and enqueues it to matching clients' send channels (non-blocking).
func (s *Server) forward(evt events.Event) error {
	data, err := MarshalEvent(evt)
	if err != nil {
		telemetry.Warnf("fanout: marshal error: %v", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		if c.venue != "" && c.venue != evt.Venue {
			continue
		}
		select {
		case c.send <- data:
		default:
			telemetry.Warnf("fanout: dropping message for slow client venue=%q", c.venue)
		}
	}
	return nil
}

// Clients returns the number of connected stream clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// HandleWS upgrades GET /ws. An optional ?venue= narrows the stream.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("fanout: upgrade failed: %v", err)
		return
	}

	c := &streamClient{
		venue: r.URL.Query().Get("venue"),
		conn:  conn,
		send:  make(chan []byte, clientSendBuf),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	telemetry.Plainf("Fanout: Client Connected [%s] venue=%q", r.RemoteAddr, c.venue)

	go s.writePump(c)
	go s.readPump(c)
}

// writePump drains the client's send channel and writes to the WS connection.
// It owns the client lifecycle: on exit it removes the client from the map
// (so forward never sends to a stale channel) and closes the connection.
func (s *Server) writePump(c *streamClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.removeClient(c)
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				telemetry.Warnf("fanout: write error: %v", err)
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services pongs and close frames; clients never send data.
// On exit it signals writePump via c.done (never closes c.send).
func (s *Server) readPump(c *streamClient) {
	defer close(c.done)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	telemetry.Plainf("Fanout: Client Disconnected venue=%q", c.venue)
}
