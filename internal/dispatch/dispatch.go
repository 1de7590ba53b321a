// Package dispatch hands a cycle's recommended actions to the action
// executor, either through a Redis list or a webhook.
package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/engine"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/pkg/httpretry"
)

var (
	_ engine.Dispatcher = Noop{}
	_ engine.Dispatcher = (*Queue)(nil)
	_ engine.Dispatcher = (*Webhook)(nil)
)

// Noop drops every payload. Used when no executor is configured.
type Noop struct{}

func (Noop) Dispatch(context.Context, []face.ActionPayload) error { return nil }

// New returns the dispatcher for cfg.Type. rdb is only used by the redis
// dispatcher and may be nil otherwise.
func New(cfg config.DispatchConfig, rdb redis.UniversalClient) (engine.Dispatcher, error) {
	switch cfg.Type {
	case "", "none":
		return Noop{}, nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis dispatcher requires a redis connection")
		}
		return NewQueue(rdb, cfg.RedisQueue), nil
	case "webhook":
		client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, cfg.MaxRetries)
		return NewWebhook(cfg.WebhookURL, client), nil
	default:
		return nil, fmt.Errorf("unknown dispatch type %q", cfg.Type)
	}
}
