package pubsub

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broker delivers messages to the live subscribers of a channel.
// Delivery is best-effort: messages published while nobody listens are gone.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) (delivered bool, err error)
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is one live listener on a channel.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// InMemory is a process-local broker for single-node deployments and tests.
type InMemory struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*memSub]struct{}
}

// NewInMemory creates a broker whose subscribers buffer up to size messages.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 16
	}
	return &InMemory{buffer: size, subs: make(map[string]map[*memSub]struct{})}
}

type memSub struct {
	broker  *InMemory
	channel string
	ch      chan []byte
	once    sync.Once
}

func (s *memSub) Messages() <-chan []byte { return s.ch }

func (s *memSub) Close() error {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		delete(b.subs[s.channel], s)
		if len(b.subs[s.channel]) == 0 {
			delete(b.subs, s.channel)
		}
		b.mu.Unlock()
		close(s.ch)
	})
	return nil
}

// Publish fans out to every subscriber. A subscriber whose buffer is full misses the message.
func (b *InMemory) Publish(ctx context.Context, channel string, payload []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := false
	for s := range b.subs[channel] {
		select {
		case s.ch <- payload:
			delivered = true
		default:
		}
	}
	return delivered, nil
}

func (b *InMemory) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memSub{broker: b, channel: channel, ch: make(chan []byte, b.buffer)}
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memSub]struct{})
	}
	b.subs[channel][s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

// Redis implements Broker on Redis Pub/Sub so every API replica sees every message.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a broker publishing on prefix+channel.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "campus:notify:"
	}
	return &Redis{client: client, prefix: prefix}
}

// Publish reports delivered=true when at least one Redis subscriber received the message.
func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) (bool, error) {
	n, err := r.client.Publish(ctx, r.prefix+channel, payload).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, r.prefix+channel)
	// Wait for the subscription confirmation so publishes right after Subscribe are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}
	out := make(chan []byte)
	sub := &redisSub{ps: ps, out: out, done: make(chan struct{})}
	go sub.pump()
	return sub, nil
}

type redisSub struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *redisSub) pump() {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) Messages() <-chan []byte { return s.out }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
