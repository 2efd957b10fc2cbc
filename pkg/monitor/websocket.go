// Package monitor pushes tool activity and the C64 text screen to websocket
// clients so a human can watch what an MCP client does with the machine.
package monitor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antibyte/c64mcp/pkg/auth"
	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/logger"
)

const (
	maxMessageSize = 512
	sendBuffer     = 64
)

var newline = []byte{'\n'}

// ScreenSource reads the current text screen
type ScreenSource interface {
	ReadText(ctx context.Context) (string, error)
}

// Client is one websocket connection
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	ip       string
	hub      *Hub
	shutdown chan struct{}
}

// Hub accepts monitor connections and fans events out to them
type Hub struct {
	clients      *ClientManager
	upgrader     websocket.Upgrader
	screen       ScreenSource
	pollInterval time.Duration
	pingPeriod   time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
	trustProxy   bool

	mu         sync.Mutex
	lastScreen string
}

// NewHub creates a hub configured from the [Monitor] section. screen may be
// nil, which disables screen polling.
func NewHub(screen ScreenSource) *Hub {
	ping := configuration.GetDuration("Monitor", "ping_period", 30*time.Second)
	h := &Hub{
		clients: NewClientManager(
			configuration.GetInt("Monitor", "max_clients", 20),
			configuration.GetInt("Monitor", "max_connects_per_minute", 30),
		),
		screen:       screen,
		pollInterval: configuration.GetDuration("Monitor", "screen_poll_interval", 2*time.Second),
		pingPeriod:   ping,
		pongWait:     (ping * 10) / 9,
		writeWait:    configuration.GetDuration("Monitor", "write_wait", 10*time.Second),
		trustProxy:   configuration.GetBool("Server", "trust_proxy_headers", false),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
	return h
}

// checkOrigin accepts clients without an Origin header and browsers on the
// same host
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	logger.SecurityWarn("Monitor connection with foreign origin %s rejected", origin)
	return false
}

// ClientCount returns the number of connected monitor clients
func (h *Hub) ClientCount() int {
	return h.clients.ClientCount()
}

// Publish sends an event to all clients
func (h *Hub) Publish(ev Event) {
	if h == nil || h.clients.ClientCount() == 0 {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error(logger.AreaMonitor, "Failed to marshal %s event: %v", ev.Type, err)
		return
	}
	h.clients.Broadcast(data)
}

// ToolCall publishes the outcome of a tool invocation
func (h *Hub) ToolCall(ctx context.Context, tool string, callErr error, d time.Duration) {
	ev := Event{
		Type:       EventToolCall,
		Tool:       tool,
		OK:         callErr == nil,
		DurationMS: d.Milliseconds(),
		SessionID:  auth.SessionIDFromContext(ctx),
	}
	if callErr != nil {
		ev.Error = callErr.Error()
	}
	h.Publish(ev)
}

// ServeHTTP upgrades the request and serves the client until it leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, h.trustProxy)
	if err := h.clients.CheckRateLimit(ip); err != nil {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}
	if limit := h.clients.maxClients; limit > 0 && h.clients.ClientCount() >= limit {
		logger.SecurityWarn("Maximum monitor clients reached, connection from %s rejected", ip)
		http.Error(w, "Monitor overloaded", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(logger.AreaMonitor, "Websocket upgrade failed for %s: %v", ip, err)
		return
	}

	client := &Client{
		id:       uuid.New().String(),
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		ip:       ip,
		hub:      h,
		shutdown: make(chan struct{}),
	}
	h.mu.Lock()
	screen := h.lastScreen
	h.mu.Unlock()
	hello, _ := json.Marshal(Event{
		Type:      EventHello,
		Time:      time.Now(),
		OK:        true,
		Content:   screen,
		SessionID: auth.SessionIDFromContext(r.Context()),
	})
	client.send <- hello

	if err := h.clients.AddClient(client); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(h.writeWait))
		conn.Close()
		return
	}
	logger.Info(logger.AreaMonitor, "Monitor client %s connected from %s", client.id, ip)

	go client.writePump()
	client.readPump()
}

// Run polls the screen while clients are connected and publishes changes.
// It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.screen == nil || h.pollInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.clients.ClientCount() > 0 {
				h.pollScreen(ctx, false)
			}
		}
	}
}

// pollScreen reads the screen and publishes it when it changed or force is set
func (h *Hub) pollScreen(ctx context.Context, force bool) {
	text, err := h.screen.ReadText(ctx)
	if err != nil {
		logger.Debug(logger.AreaMonitor, "Screen poll failed: %v", err)
		return
	}
	h.mu.Lock()
	changed := text != h.lastScreen
	h.lastScreen = text
	h.mu.Unlock()
	if changed || force {
		h.Publish(Event{Type: EventScreen, OK: true, Content: text})
	}
}

func (c *Client) readPump() {
	defer func() {
		close(c.shutdown)
		c.hub.clients.RemoveClient(c.id)
		logger.Info(logger.AreaMonitor, "Monitor client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn(logger.AreaMonitor, "Unexpected close for client %s: %v", c.id, err)
			}
			return
		}
		var req request
		if err := json.Unmarshal(message, &req); err != nil {
			logger.SecurityWarn("Invalid monitor message from %s", c.ip)
			continue
		}
		if req.Type == "refresh" && c.hub.screen != nil {
			c.hub.pollScreen(context.Background(), true)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// coalesce queued events into one frame, one JSON document per line
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write(newline)
				w.Write(next)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug(logger.AreaMonitor, "Ping to client %s failed: %v", c.id, err)
				return
			}
		case <-c.shutdown:
			return
		}
	}
}

// clientIP is the peer address. X-Forwarded-For is only honoured behind a
// trusted reverse proxy.
func clientIP(r *http.Request, trustProxy bool) string {
	if xff := r.Header.Get("X-Forwarded-For"); trustProxy && xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
