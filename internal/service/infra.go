package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/whoami847/topup-payments/internal/models"
)

// RedisLocker implements Locker on a Redis SETNX with TTL.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

// KafkaPublisher implements EventPublisher on a kafka writer. Consumers
// (notification senders, analytics) key on the transaction id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) OrderStateChanged(ctx context.Context, order *models.Order, from, to models.OrderStatus) error {
	event := map[string]interface{}{
		"tran_id":        order.ID,
		"user_id":        order.UserID,
		"kind":           order.Kind,
		"amount":         order.Amount,
		"state":          to,
		"previous_state": from,
		"timestamp":      time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.ID),
		Value: value,
	})
}

// NATSFulfiller implements Fulfiller by publishing to the fulfillment
// subject. Delivery of the top-up itself is another service's job.
type NATSFulfiller struct {
	nc *nats.Conn
}

func NewNATSFulfiller(nc *nats.Conn) *NATSFulfiller {
	return &NATSFulfiller{nc: nc}
}

func (f *NATSFulfiller) RequestFulfillment(_ context.Context, order *models.Order) error {
	payload, err := json.Marshal(map[string]interface{}{
		"tran_id":     order.ID,
		"user_id":     order.UserID,
		"amount":      order.Amount,
		"description": order.Description,
	})
	if err != nil {
		return err
	}
	return f.nc.Publish("fulfillment.requested", payload)
}
