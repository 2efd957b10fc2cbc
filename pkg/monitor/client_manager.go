package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/antibyte/c64mcp/pkg/logger"
)

var ErrTooManyClients = errors.New("maximum number of monitor clients reached")

// rateLimitInfo counts connection attempts per IP
type rateLimitInfo struct {
	requests  int
	lastReset time.Time
}

// ClientManager tracks connected monitor clients by id
type ClientManager struct {
	clients    map[string]*Client
	rateLimits map[string]*rateLimitInfo
	maxClients int
	maxPerMin  int
	mu         sync.RWMutex
}

// NewClientManager creates a manager; maxClients <= 0 means unlimited
func NewClientManager(maxClients, connectsPerMinute int) *ClientManager {
	return &ClientManager{
		clients:    make(map[string]*Client),
		rateLimits: make(map[string]*rateLimitInfo),
		maxClients: maxClients,
		maxPerMin:  connectsPerMinute,
	}
}

// AddClient registers a client unless the limit is reached
func (cm *ClientManager) AddClient(client *Client) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.maxClients > 0 && len(cm.clients) >= cm.maxClients {
		return ErrTooManyClients
	}
	cm.clients[client.id] = client
	logger.Debug(logger.AreaMonitor, "Client %s added (%d connected)", client.id, len(cm.clients))
	return nil
}

// RemoveClient unregisters a client and closes its send channel
func (cm *ClientManager) RemoveClient(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if client, exists := cm.clients[id]; exists {
		close(client.send)
		delete(cm.clients, id)
		logger.Debug(logger.AreaMonitor, "Client %s removed (%d connected)", id, len(cm.clients))
	}
}

// Broadcast queues data for every client. Clients whose buffer is full
// miss the message.
func (cm *ClientManager) Broadcast(data []byte) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	sent := 0
	for id, client := range cm.clients {
		select {
		case client.send <- data:
			sent++
		default:
			logger.Warn(logger.AreaMonitor, "Send buffer full for client %s, dropping event", id)
		}
	}
	return sent
}

// SendToClient queues data for one client
func (cm *ClientManager) SendToClient(id string, data []byte) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	client, exists := cm.clients[id]
	if !exists {
		return fmt.Errorf("client %s not found", id)
	}
	select {
	case client.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for client %s", id)
	}
}

// ClientCount returns the number of connected clients
func (cm *ClientManager) ClientCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// CheckRateLimit counts a connection attempt from ipAddress
func (cm *ClientManager) CheckRateLimit(ipAddress string) error {
	if cm.maxPerMin <= 0 {
		return nil
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	for ip, info := range cm.rateLimits {
		if now.Sub(info.lastReset) > time.Minute {
			delete(cm.rateLimits, ip)
		}
	}
	rl, exists := cm.rateLimits[ipAddress]
	if !exists {
		rl = &rateLimitInfo{lastReset: now}
		cm.rateLimits[ipAddress] = rl
	}
	rl.requests++
	if rl.requests > cm.maxPerMin {
		logger.SecurityWarn("Monitor rate limit exceeded for IP %s: %d connects in last minute", ipAddress, rl.requests)
		return fmt.Errorf("rate limit exceeded: too many connections from %s", ipAddress)
	}
	return nil
}
