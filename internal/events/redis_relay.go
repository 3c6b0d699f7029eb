package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// relayEnvelope wraps an event with the id of the publishing instance
// so an instance can ignore its own relayed events.
type relayEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay mirrors bus events across service instances over Redis
// pub/sub. Locally published events are forwarded to the channel;
// events received from other instances are handed to the forward
// callback (the realtime bridge), never re-relayed.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	forward    func(context.Context, Event)
	logger     *zap.Logger
}

// NewRedisRelay creates the relay. forward receives foreign events.
func NewRedisRelay(client *redis.Client, channel string, forward func(context.Context, Event), logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		forward:    forward,
		logger:     logger,
	}
}

// RegisterHandlers attaches the relay to every event type on the
// local dispatcher.
func (r *RedisRelay) RegisterHandlers(dispatcher Dispatcher) {
	if dispatcher == nil {
		return
	}
	for _, eventType := range []EventType{
		EventTicketCreated,
		EventTicketAssigned,
		EventTicketMessageAdded,
		EventTicketStatusChanged,
	} {
		dispatcher.Subscribe(eventType, r.publishToChannel)
	}
}

func (r *RedisRelay) publishToChannel(ctx context.Context, event Event) error {
	payload, err := json.Marshal(relayEnvelope{Origin: r.instanceID, Event: event})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("redis relay publish failed", zap.Error(err), zap.String("event_id", event.ID))
		return err
	}
	return nil
}

// Run consumes the relay channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var envelope relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				r.logger.Warn("redis relay decode failed", zap.Error(err))
				continue
			}
			if envelope.Origin == r.instanceID {
				continue
			}
			if r.forward != nil {
				r.forward(ctx, envelope.Event)
			}
		}
	}
}
