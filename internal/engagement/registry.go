package engagement

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry keeps one flow per user and forgets flows that sat idle for ttl.
type Registry struct {
	deps Deps
	ttl  time.Duration

	mu    sync.Mutex
	flows map[string]*Flow
}

func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{
		deps:  deps,
		ttl:   ttl,
		flows: make(map[string]*Flow),
	}
}

func (r *Registry) Get(userID string) *Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[userID]
	if !ok {
		f = NewFlow(userID, r.deps)
		r.flows[userID] = f
	}
	return f
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep drops flows idle since before now-ttl. Flows with a submit in flight
// are kept.
func (r *Registry) Sweep(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, f := range r.flows {
		if f.idleSince().Before(cutoff) && !f.busy() {
			delete(r.flows, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(r.deps.Now()); n > 0 {
				r.deps.Logger.Debug("swept idle flows", zap.Int("count", n))
			}
		}
	}
}
