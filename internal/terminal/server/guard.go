package server

import (
	"crypto/subtle"
	"sync"
	"time"
	"tradebridge/internal/errors"
)

// Guard validates the shared token. After threshold consecutive failures it
// rejects everything, the correct token included, until the window passes.
type Guard struct {
	token     []byte
	threshold int
	window    time.Duration
	now       func() time.Time

	mu          sync.Mutex
	failures    int
	lockedUntil time.Time
}

func NewGuard(token string, threshold int, window time.Duration) *Guard {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Guard{
		token:     []byte(token),
		threshold: threshold,
		window:    window,
		now:       time.Now,
	}
}

func (g *Guard) Check(token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Before(g.lockedUntil) {
		return errors.Wrapf(errors.ErrCodeLockedOut, errors.ErrLockedOut, "Доступ заблокирован до %s", g.lockedUntil.Format(time.RFC3339))
	}

	if subtle.ConstantTimeCompare([]byte(token), g.token) == 1 {
		g.failures = 0
		return nil
	}

	g.failures++
	if g.failures >= g.threshold {
		g.failures = 0
		g.lockedUntil = now.Add(g.window)
		return errors.Wrapf(errors.ErrCodeLockedOut, errors.ErrLockedOut, "Превышено число неудачных попыток, блокировка до %s", g.lockedUntil.Format(time.RFC3339))
	}
	return errors.Newf(errors.ErrCodeAuthFailed, "Неверный токен (%d/%d)", g.failures, g.threshold)
}

func (g *Guard) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.lockedUntil)
}

func (g *Guard) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}
