package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/tasting/internal/coordinator"
)

const channelPrefix = "tasting:session:"

// resyncPayload asks every node to drop the session's subscribers. It is
// never valid JSON, so it cannot be mistaken for an event.
const resyncPayload = "resync"

func channel(sessionID string) string { return channelPrefix + sessionID }

// RedisPublisher implements coordinator.Publisher over Redis pub/sub so
// that every node's Relay delivers the event to its own subscribers. When
// Redis cannot take an event, the local subscribers of that session are
// dropped so none of them keeps running on a gap.
type RedisPublisher struct {
	rdb     *redis.Client
	local   *Broker
	logger  *slog.Logger
	timeout time.Duration
}

func NewRedisPublisher(rdb *redis.Client, local *Broker, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, local: local, logger: logger.With("component", "redis_publisher"), timeout: 2 * time.Second}
}

func (p *RedisPublisher) Publish(sessionID string, ev coordinator.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("encoding event", "session_id", sessionID, "event", ev.Name, "error", err)
		return
	}
	if err := p.publish(sessionID, data); err != nil {
		n := p.local.DropSession(sessionID)
		p.logger.Error("publishing event", "session_id", sessionID, "event", ev.Name, "dropped", n, "error", err)
	}
}

// Resync asks every node to drop the session's subscribers.
func (p *RedisPublisher) Resync(sessionID string) {
	if err := p.publish(sessionID, []byte(resyncPayload)); err != nil {
		n := p.local.DropSession(sessionID)
		p.logger.Error("publishing resync", "session_id", sessionID, "dropped", n, "error", err)
	}
}

func (p *RedisPublisher) publish(sessionID string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.rdb.Publish(ctx, channel(sessionID), data).Err()
}

// Check pings Redis for the health endpoint.
func (p *RedisPublisher) Check(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Relay feeds events published by any node into the local Broker.
type Relay struct {
	rdb     *redis.Client
	broker  *Broker
	logger  *slog.Logger
	metrics *Metrics
}

func NewRelay(rdb *redis.Client, broker *Broker, logger *slog.Logger, metrics *Metrics) *Relay {
	return &Relay{rdb: rdb, broker: broker, logger: logger.With("component", "relay"), metrics: metrics}
}

// Run blocks until ctx is cancelled. Every subscription confirmation after
// the first means the connection to Redis was lost and re-established, so
// all local subscribers are dropped.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	r.logger.Info("relay subscribed", "pattern", channelPrefix+"*")

	ch := pubsub.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			switch msg := msg.(type) {
			case *redis.Subscription:
				if msg.Kind == "psubscribe" {
					n := r.broker.DropAll()
					r.logger.Warn("relay resubscribed, subscribers dropped", "dropped", n)
				}
			case *redis.Message:
				r.deliver(msg)
			}
		}
	}
}

func (r *Relay) deliver(msg *redis.Message) {
	sessionID := strings.TrimPrefix(msg.Channel, channelPrefix)
	if msg.Payload == resyncPayload {
		r.broker.Resync(sessionID)
		return
	}
	r.metrics.relay()
	r.broker.Deliver(sessionID, []byte(msg.Payload))
}
