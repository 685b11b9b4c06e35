package syncbus

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"

	redis "github.com/redis/go-redis/v9"

	lockerrors "github.com/mirkobrombin/go-lockset/v1/errors"
)

type redisSubscription struct {
	pubsub *redis.PubSub
	chans  []chan struct{}
}

// RedisBus implements Bus over Redis pub/sub. Each topic maps to one Redis
// channel with a single PubSub connection shared by all local subscribers.
type RedisBus struct {
	client    *redis.Client
	mu        sync.Mutex
	subs      map[string]*redisSubscription
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewRedisBus returns a new RedisBus using the provided client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{
		client: client,
		subs:   make(map[string]*redisSubscription),
	}
}

// Publish implements Bus.Publish.
func (b *RedisBus) Publish(ctx context.Context, topic string) error {
	if err := b.client.Publish(ctx, topic, "1").Err(); err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return lockerrors.ErrTimeout
		}
		return err
	}
	b.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (chan struct{}, error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	if sub, ok := b.subs[topic]; ok {
		sub.chans = append(sub.chans, ch)
		b.mu.Unlock()
	} else {
		b.mu.Unlock()
		ps := b.client.Subscribe(ctx, topic)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			if stdErrors.Is(err, context.DeadlineExceeded) {
				return nil, lockerrors.ErrTimeout
			}
			return nil, err
		}
		b.mu.Lock()
		if existing, ok := b.subs[topic]; ok {
			// Raced with another subscriber; reuse its connection.
			existing.chans = append(existing.chans, ch)
			b.mu.Unlock()
			_ = ps.Close()
		} else {
			sub := &redisSubscription{pubsub: ps, chans: []chan struct{}{ch}}
			b.subs[topic] = sub
			b.mu.Unlock()
			go b.dispatch(topic, sub)
		}
	}

	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), topic, ch)
	}()
	return ch, nil
}

// dispatch fans incoming events out to local subscribers. Sends happen under
// the mutex so Unsubscribe cannot close a channel mid-send; they never block.
func (b *RedisBus) dispatch(topic string, sub *redisSubscription) {
	for range sub.pubsub.Channel() {
		b.mu.Lock()
		for _, ch := range sub.chans {
			select {
			case ch <- struct{}{}:
				b.delivered.Add(1)
			default:
			}
		}
		b.mu.Unlock()
	}
}

// Unsubscribe implements Bus.Unsubscribe. The Redis connection for a topic is
// closed once its last subscriber leaves.
func (b *RedisBus) Unsubscribe(ctx context.Context, topic string, ch chan struct{}) error {
	b.mu.Lock()
	sub := b.subs[topic]
	if sub == nil {
		b.mu.Unlock()
		return nil
	}
	for i, c := range sub.chans {
		if c == ch {
			sub.chans[i] = sub.chans[len(sub.chans)-1]
			sub.chans = sub.chans[:len(sub.chans)-1]
			close(c)
			break
		}
	}
	if len(sub.chans) > 0 {
		b.mu.Unlock()
		return nil
	}
	delete(b.subs, topic)
	b.mu.Unlock()
	if err := sub.pubsub.Close(); err != nil {
		if stdErrors.Is(err, redis.ErrClosed) {
			return lockerrors.ErrClosed
		}
		return err
	}
	return nil
}

// Metrics returns the published and delivered counts.
func (b *RedisBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}
