// internal/auth/ratelimit.go
package auth

import (
	"sync"
	"time"
)

const (
	rateWindow      = time.Minute
	idleClientAfter = 5 * time.Minute
)

// ClientLimiter tracks requests for a single client
type ClientLimiter struct {
	requests    []time.Time
	mutex       sync.Mutex
	lastRequest time.Time
}

// RateLimiter is an in-memory sliding-window limiter keyed by client id
type RateLimiter struct {
	clients map[string]*ClientLimiter
	mutex   sync.RWMutex
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a limiter and starts its idle-client cleanup loop
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*ClientLimiter),
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop ends the cleanup loop. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Allow checks if a request should be allowed based on rate limit
func (rl *RateLimiter) Allow(clientID string, limitPerMinute int) bool {
	rl.mutex.Lock()
	client, exists := rl.clients[clientID]
	if !exists {
		client = &ClientLimiter{}
		rl.clients[clientID] = client
	}
	rl.mutex.Unlock()

	return client.allow(rl.now(), limitPerMinute)
}

func (cl *ClientLimiter) allow(now time.Time, limitPerMinute int) bool {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	cl.dropBefore(now.Add(-rateWindow))
	cl.lastRequest = now

	if len(cl.requests) >= limitPerMinute {
		return false
	}

	cl.requests = append(cl.requests, now)
	return true
}

// dropBefore removes requests older than the window. Requests are appended
// in time order so the slice stays sorted.
func (cl *ClientLimiter) dropBefore(windowStart time.Time) {
	i := 0
	for i < len(cl.requests) && !cl.requests[i].After(windowStart) {
		i++
	}
	cl.requests = cl.requests[i:]
}

// cleanup removes clients with no requests in the idle period
func (rl *RateLimiter) cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := rl.now().Add(-idleClientAfter)

	for clientID, client := range rl.clients {
		client.mutex.Lock()
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, clientID)
		}
		client.mutex.Unlock()
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(idleClientAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// GetStats returns rate limiting statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	clientStats := make([]map[string]interface{}, 0, len(rl.clients))
	for clientID, client := range rl.clients {
		client.mutex.Lock()
		clientStats = append(clientStats, map[string]interface{}{
			"client_id":     clientID,
			"request_count": len(client.requests),
			"last_request":  client.lastRequest,
		})
		client.mutex.Unlock()
	}

	return map[string]interface{}{
		"total_clients": len(rl.clients),
		"clients":       clientStats,
	}
}
