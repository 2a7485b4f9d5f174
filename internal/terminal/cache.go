package terminal

import (
	"sync"
	"time"
	"tradebridge/internal/models"
	"tradebridge/internal/terminal/protocol"
)

// Cache holds the latest telemetry push. Every push replaces the previous
// one, so a lost frame only delays freshness.
// Freshness is measured against the local receive time, not the terminal's
// own clock.
type Cache struct {
	mu      sync.RWMutex
	account models.Account
	prices  map[string]models.PriceTick
	updated time.Time
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		prices: make(map[string]models.PriceTick),
		now:    time.Now,
	}
}

func (c *Cache) Update(frame protocol.Telemetry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.account = frame.Account
	for _, tick := range frame.Prices {
		c.prices[tick.Symbol] = tick
	}
	c.updated = c.now()
}

// Account reports false until the first frame has arrived.
func (c *Cache) Account() (models.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account, !c.updated.IsZero()
}

func (c *Cache) Price(symbol string) (models.PriceTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tick, ok := c.prices[symbol]
	return tick, ok
}

func (c *Cache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.updated.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return c.now().Sub(c.updated)
}

// Fresh reports whether the last frame is younger than maxAge.
func (c *Cache) Fresh(maxAge time.Duration) bool {
	return c.Age() <= maxAge
}
