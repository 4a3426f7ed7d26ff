package etl

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrRateLimited    = errors.New("trigger rate limited")
	ErrAlreadyRunning = errors.New("a run is already in flight")
)

// TriggerGate is the process-wide accept/reject state for the trigger
// protocol. The cooldown gates acceptance, not completion: a trigger is
// rejected if issued within the cooldown of the previous accepted one,
// regardless of how that run ended. Check and bookkeeping happen under
// one lock so two concurrent triggers can never both pass.
type TriggerGate struct {
	mu           sync.Mutex
	cooldown     time.Duration
	lastAccepted time.Time // zero at startup: the first trigger is always eligible
	running      bool
	clock        func() time.Time
}

func NewTriggerGate(cooldown time.Duration) *TriggerGate {
	return &TriggerGate{
		cooldown: cooldown,
		clock:    time.Now,
	}
}

// TryAcquire atomically decides whether a trigger is accepted. On
// acceptance the caller owns the run and must call Release when done.
func (g *TriggerGate) TryAcquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return ErrAlreadyRunning
	}
	now := g.clock()
	if !g.lastAccepted.IsZero() && now.Sub(g.lastAccepted) < g.cooldown {
		return ErrRateLimited
	}

	g.lastAccepted = now
	g.running = true
	return nil
}

func (g *TriggerGate) Release() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
}
