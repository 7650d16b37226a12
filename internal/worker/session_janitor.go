package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/immo-leads/internal/pkg/logger"
)

// Purger drops expired in-memory verification state.
// *verification.LocalProvider satisfies it.
type Purger interface {
	Purge() int
}

// SessionJanitor periodically purges expired local verification codes.
type SessionJanitor struct {
	purgers  []Purger
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewSessionJanitor creates a janitor running every interval (default 5m).
func NewSessionJanitor(interval time.Duration, purgers ...Purger) *SessionJanitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SessionJanitor{purgers: purgers, interval: interval}
}

// Start launches the janitor; calling it twice is a no-op.
func (j *SessionJanitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.RunOnce()
			}
		}
	}()
}

// RunOnce purges every registered store and returns the number removed.
func (j *SessionJanitor) RunOnce() int {
	n := 0
	for _, p := range j.purgers {
		n += p.Purge()
	}
	if n > 0 {
		logger.Debug("session janitor: purged expired codes", "count", n)
	}
	return n
}

func (j *SessionJanitor) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()
	if cancel != nil {
		cancel()
		j.wg.Wait()
	}
}
