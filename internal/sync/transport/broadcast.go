package transport

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// BusChannel is the pub/sub channel every StageLink process on the same
// Redis shares. The version suffix keeps an incompatible future protocol
// from cross-talking with this one.
const BusChannel = "stagelink.bus.v1"

// Broadcast relays envelopes through Redis pub/sub. It is the analog of an
// origin-wide broadcast channel: every subscriber sees every message,
// including ones from processes it has no direct link to. Redis acts purely
// as a dumb relay; when it is absent the adapter degrades to a no-op.
type Broadcast struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	log     *log.Logger
}

// NewBroadcast returns an adapter publishing on BusChannel. An empty addr
// yields a permanently-degraded adapter whose Send always reports false.
func NewBroadcast(addr string, logger *log.Logger) *Broadcast {
	b := &Broadcast{channel: BusChannel, log: logger}
	if addr != "" {
		b.client = redis.NewClient(&redis.Options{Addr: addr})
	}
	return b
}

func (b *Broadcast) Name() string { return "broadcast" }

// Start subscribes and forwards every message on the bus to deliver. The
// go-redis PubSub reconnects on its own after transient failures, so a
// Redis restart heals without coordinator involvement.
func (b *Broadcast) Start(ctx context.Context, deliver DeliverFunc) error {
	if b.client == nil {
		return nil
	}
	b.pubsub = b.client.Subscribe(ctx, b.channel)

	ch := b.pubsub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				deliver([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

// Send publishes raw to the bus. Failures (Redis down, timeout) report false
// and are otherwise ignored.
func (b *Broadcast) Send(raw []byte) bool {
	if b.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return false
	}
	return true
}

func (b *Broadcast) Close() error {
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
