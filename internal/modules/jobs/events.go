package jobs

import (
	"context"
	"encoding/json"

	"github.com/nextconvert/reelmix/internal/api/websocket"
	"github.com/nextconvert/reelmix/internal/shared/database"
)

// EventPublisher delivers run events to listeners
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event websocket.RunEvent) error
}

// RedisPublisher publishes run events on the run's Redis channel so API
// servers can relay them to WebSocket subscribers.
type RedisPublisher struct {
	redis *database.Redis
}

// NewRedisPublisher creates a Redis-backed publisher
func NewRedisPublisher(redis *database.Redis) *RedisPublisher {
	return &RedisPublisher{redis: redis}
}

func (p *RedisPublisher) PublishRunEvent(ctx context.Context, event websocket.RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, websocket.RunChannelPrefix+event.RunID, data)
}
