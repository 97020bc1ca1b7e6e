package apiclient

import (
	"sync"
	"time"
)

// Cache holds one Client per session id.
type Cache struct {
	baseURL string
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*Client
}

func NewCache(baseURL string, timeout time.Duration) *Cache {
	return &Cache{
		baseURL: baseURL,
		timeout: timeout,
		clients: make(map[string]*Client),
	}
}

// GetOrCreate returns the session's client, creating it on first use. An
// existing client has its token brought up to date in place.
func (c *Cache) GetOrCreate(sessionID, accessToken string, expiry time.Time) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[sessionID]; ok {
		if client.AccessToken() != accessToken {
			client.SetAccessToken(accessToken, expiry)
		}
		return client
	}
	client := New(c.baseURL, c.timeout, accessToken, expiry)
	c.clients[sessionID] = client
	return client
}

// UpdateToken refreshes the cached client's token in place, if one exists.
func (c *Cache) UpdateToken(sessionID, accessToken string, expiry time.Time) bool {
	c.mu.Lock()
	client, ok := c.clients[sessionID]
	c.mu.Unlock()
	if ok {
		client.SetAccessToken(accessToken, expiry)
	}
	return ok
}

func (c *Cache) Remove(sessionID string) {
	c.mu.Lock()
	delete(c.clients, sessionID)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Prune drops clients whose session keep rejects and reports how many went.
func (c *Cache) Prune(keep func(sessionID string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id := range c.clients {
		if !keep(id) {
			delete(c.clients, id)
			removed++
		}
	}
	return removed
}
