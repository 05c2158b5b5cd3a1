package progress

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Broadcaster publishes progress events. Publish never returns an error:
// delivery failures are logged and swallowed so the pipeline is never
// blocked or aborted by an observer-side problem.
type Broadcaster interface {
	Publish(ctx context.Context, jobID uuid.UUID, stage string, percent int)
}

// publisher is the transport seam; *redis.Client satisfies it.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisBroker backs the progress topic with Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	pub    publisher
}

// NewRedisBroker creates a broker with its own Redis connection.
func NewRedisBroker(redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	return &RedisBroker{client: client, pub: client}, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Publish sends one event on the job's topic. Best-effort by contract.
func (b *RedisBroker) Publish(ctx context.Context, jobID uuid.UUID, stage string, percent int) {
	payload, err := json.Marshal(Event{Stage: stage, Percent: percent})
	if err != nil {
		slog.Error("encode progress event", "job_id", jobID, "error", err)
		return
	}
	if err := b.pub.Publish(ctx, Channel(jobID), payload).Err(); err != nil {
		slog.Warn("progress publish failed", "job_id", jobID, "stage", stage, "error", err)
	}
}

// Subscribe returns a channel of events for one job plus a release func.
// The caller must invoke release exactly once; it closes the subscription
// and the event channel.
func (b *RedisBroker) Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan Event, func()) {
	sub := b.client.Subscribe(ctx, Channel(jobID))
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("drop malformed progress event", "job_id", jobID, "error", err)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	release := func() { _ = sub.Close() }
	return events, release
}

var _ Broadcaster = (*RedisBroker)(nil)
