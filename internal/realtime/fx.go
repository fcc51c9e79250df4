package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/agentdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("realtime",
	fx.Provide(NewHub),
	fx.Provide(NewPublisher),
)

type PublisherParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Hub       *Hub
	Config    config.Config
	Log       *zap.Logger
	Redis     *redis.Client `optional:"true"`
}

// NewPublisher bridges through Redis when a client is available and
// publishes in-process otherwise.
func NewPublisher(p PublisherParams) Publisher {
	if p.Redis == nil {
		return NewLocalPublisher(p.Hub)
	}

	bridge := NewRedisBridge(p.Redis, p.Hub, p.Config.Redis.ChannelPrefix, p.Log)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return bridge.Start(ctx)
		},
		OnStop: func(context.Context) error {
			return bridge.Close()
		},
	})
	return bridge
}
