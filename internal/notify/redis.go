package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/lib/logger/sl"
	"github.com/redis/go-redis/v9"
)

// RedisBus publishes to a per-user Redis channel so every instance holding a
// subscriber for that user can deliver it.
type RedisBus struct {
	rdb    *redis.Client
	prefix string
	log    *slog.Logger
}

func NewRedisBus(rdb *redis.Client, prefix string, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBus{rdb: rdb, prefix: prefix + ":events:", log: log}
}

func (b *RedisBus) Channel(userID string) string {
	return b.prefix + userID
}

func (b *RedisBus) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.Channel(event.UserID), payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Forward relays every user channel into the local hub until ctx is done.
// ready, if non-nil, is closed once the pattern subscription is confirmed.
func (b *RedisBus) Forward(ctx context.Context, hub Publisher, ready chan<- struct{}) error {
	const op = "notify.redis.forward"
	log := b.log.With(slog.String("op", op))

	pubsub := b.rdb.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn("dropping malformed event", sl.Err(err), slog.String("channel", msg.Channel))
				continue
			}
			if event.UserID == "" {
				event.UserID = strings.TrimPrefix(msg.Channel, b.prefix)
			}
			if err := hub.Publish(ctx, event); err != nil {
				log.Warn("local delivery failed", sl.Err(err))
			}
		}
	}
}
