package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "shop-ledger:refresh"

// RedisBus publishes events on a Redis pub/sub channel. Run subscribes to
// the same channel and fans every received event out to local handlers, so
// a write on one server instance refreshes readers on all of them.
type RedisBus struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	local      Bus
	log        *zap.Logger

	mu      sync.Mutex
	running bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisBus connects to Redis and checks the connection.
func NewRedisBus(ctx context.Context, cfg RedisConfig, log *zap.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	b := NewRedisBusWithClient(client, cfg.Channel, log)
	b.ownsClient = true
	return b, nil
}

// NewRedisBusWithClient uses an existing client. The caller keeps ownership.
func NewRedisBusWithClient(client *redis.Client, channel string, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.NewNop()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		local:   NewLocalBus(log),
		log:     log,
	}
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	data, err := encodeEvent(e)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish refresh event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(h Handler) func() {
	return b.local.Subscribe(h)
}

// Run receives events until ctx is cancelled. It blocks.
func (b *RedisBus) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("refresh subscription already running")
	}
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.log.Info("subscribed to refresh channel", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				b.log.Warn("refresh channel closed", zap.String("channel", b.channel))
				return nil
			}
			b.deliver(ctx, msg.Payload)
		}
	}
}

func (b *RedisBus) deliver(ctx context.Context, payload string) {
	e, err := decodeEvent(payload)
	if err != nil {
		b.log.Error("bad refresh payload", zap.String("payload", payload), zap.Error(err))
		return
	}
	if err := b.local.Publish(ctx, e); err != nil {
		b.log.Warn("refresh event not delivered", zap.String("owner_id", string(e.OwnerID)), zap.Error(err))
	}
}

func (b *RedisBus) Close() error {
	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}

func encodeEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode refresh event: %w", err)
	}
	return data, nil
}

func decodeEvent(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, err
	}
	if e.OwnerID == "" {
		return Event{}, fmt.Errorf("refresh event without owner_id")
	}
	return e, nil
}

var _ Bus = (*RedisBus)(nil)
