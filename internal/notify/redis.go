package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/model"
)

// RedisNotifier publishes campaign updates on the tenant's pub/sub channel
// so the web frontend can refresh progress live. Publishes are fire and
// forget: a Redis hiccup is logged and the pipeline moves on.
type RedisNotifier struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisNotifier(rdb *redis.Client, log *zap.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, log: log}
}

type campaignUpdate struct {
	Action string          `json:"action"`
	Record *model.Campaign `json:"record"`
}

func (n *RedisNotifier) CampaignUpdated(ctx context.Context, c *model.Campaign) {
	payload, err := json.Marshal(campaignUpdate{Action: "update", Record: c})
	if err != nil {
		n.log.Error("notify: marshal campaign update", zap.Error(err))
		return
	}

	channel := fmt.Sprintf("company-%d-campaign", c.TenantID)
	if err := n.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		n.log.Warn("notify: publish campaign update",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}
