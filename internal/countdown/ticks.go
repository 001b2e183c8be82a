package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickSource fans a single ticker out to every live session.
type TickSource struct {
	interval time.Duration
	log      zerolog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(time.Time)
}

// NewTickSource creates a TickSource; Start must be called to begin ticking.
func NewTickSource(interval time.Duration, log zerolog.Logger) *TickSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickSource{
		interval: interval,
		log:      log.With().Str("component", "tick_source").Logger(),
		subs:     make(map[uint64]func(time.Time)),
	}
}

// Subscribe registers fn for every tick and returns its cancel func.
func (s *TickSource) Subscribe(fn func(time.Time)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered callbacks.
func (s *TickSource) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Start ticks until ctx is cancelled.
func (s *TickSource) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("Tick source started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Tick source stopped")
			return
		case now := <-ticker.C:
			s.Broadcast(now)
		}
	}
}

// Broadcast delivers now to every subscriber.
func (s *TickSource) Broadcast(now time.Time) {
	s.mu.RLock()
	fns := make([]func(time.Time), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(now)
	}
}
