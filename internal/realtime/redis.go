package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisBus publishes over Redis pub/sub so every server instance sees every
// save, whichever instance handled it.
type RedisBus struct {
	logger *slog.Logger
	rdb    *goredis.Client
}

var _ Bus = (*RedisBus)(nil)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisBus connects and pings; it fails fast when Redis is unreachable.
func NewRedisBus(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*RedisBus, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("realtime: redis address is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("realtime: redis ping: %w", err)
	}

	return &RedisBus{logger: logger.With(slog.String("component", "redis-bus")), rdb: rdb}, nil
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encoding event: %w", err)
	}
	if err := b.rdb.Publish(ctx, channelName(ev.Username), raw).Err(); err != nil {
		return fmt.Errorf("realtime: publishing to %s: %w", ev.Username, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, username string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channelName(username))

	// Wait for the subscription confirmation so no publish after Subscribe
	// returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("realtime: subscribing to %s: %w", username, err)
	}

	s := &redisSub{ps: ps, ch: make(chan Event, subscriberBuffer), done: make(chan struct{})}
	go s.forward(b.logger)
	return s, nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

type redisSub struct {
	ps   *goredis.PubSub
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *redisSub) forward(logger *slog.Logger) {
	defer close(s.ch)

	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-msgs:
			if !ok || m == nil {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				logger.Warn("bad realtime payload", slog.String("error", err.Error()))
				continue
			}
			select {
			case s.ch <- ev:
			default:
				logger.Warn("dropping realtime event for slow subscriber",
					slog.String("username", ev.Username))
			}
		}
	}
}

func (s *redisSub) Events() <-chan Event { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
