package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryBus delivers events within one process.
type MemoryBus struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

var _ Bus = (*MemoryBus)(nil)

func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	return &MemoryBus{
		logger: logger,
		subs:   make(map[string]map[*memorySub]struct{}),
	}
}

func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs[ev.Username] {
		select {
		case s.ch <- ev:
		default:
			b.logger.Warn("dropping realtime event for slow subscriber",
				slog.String("username", ev.Username),
				slog.String("section", ev.Section.String()),
			)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, username string) (Subscription, error) {
	s := &memorySub{bus: b, username: username, ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[username] == nil {
		b.subs[username] = make(map[*memorySub]struct{})
	}
	b.subs[username][s] = struct{}{}
	return s, nil
}

// Subscribers returns how many subscriptions are open for username.
func (b *MemoryBus) Subscribers(username string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[username])
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for username, set := range b.subs {
		for s := range set {
			s.once.Do(func() { close(s.ch) })
		}
		delete(b.subs, username)
	}
	return nil
}

type memorySub struct {
	bus      *MemoryBus
	username string
	ch       chan Event
	once     sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if set := s.bus.subs[s.username]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(s.bus.subs, s.username)
		}
	}
	s.once.Do(func() { close(s.ch) })
	return nil
}
