package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain/interfaces"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
)

// RedisNotifier publishes user notifications on a redis channel consumed by
// the notification service. Delivery is best effort: publish failures are
// logged and dropped, never returned, so a broken notifier can't abort a
// settlement.
type RedisNotifier struct {
	client        *redis.Client
	channelPrefix string
	logger        zerolog.Logger
}

func NewRedis(cfg config.NotifierConfig, logger zerolog.Logger) interfaces.Notifier {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &RedisNotifier{
		client:        client,
		channelPrefix: cfg.ChannelPrefix,
		logger:        logger,
	}
}

type notification struct {
	UserID  string      `json:"user_id"`
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

func (n *RedisNotifier) Notify(ctx context.Context, userID, kind string, payload interface{}) {
	body, err := json.Marshal(notification{
		UserID:  userID,
		Kind:    kind,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		n.logger.Err(err).Str("user_id", userID).Str("kind", kind).Msg("Failed to encode notification")
		return
	}

	channel := n.channelPrefix + ":" + kind
	if err := n.client.Publish(ctx, channel, body).Err(); err != nil {
		n.logger.Warn().Err(err).Str("channel", channel).Str("user_id", userID).Msg("Failed to publish notification")
	}
}

// NopNotifier is used when notifications are disabled in config.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, interface{}) {}
