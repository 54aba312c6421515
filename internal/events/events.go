// Package events publishes committed ledger movements on a redis channel.
package events

import (
	"context"
	"encoding/json"

	"wtcoin/internal/ledger"
	"wtcoin/internal/logger"

	"github.com/redis/go-redis/v9"
)

const Channel = "ledger:events"

type RedisSink struct {
	redis *redis.Client
}

func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{redis: rdb}
}

// Publish fans out every event. The ledger has already committed, so errors
// are logged and never returned.
func (s *RedisSink) Publish(ctx context.Context, evts []ledger.Event) {
	for _, e := range evts {
		data, err := json.Marshal(e)
		if err != nil {
			logger.Errorf("Failed to encode ledger event %s: %v", e.OrderID, err)
			continue
		}
		if err := s.redis.Publish(ctx, Channel, string(data)).Err(); err != nil {
			logger.Warn("ledger event not published", "order_id", e.OrderID, "error", err)
		}
	}
}
