package bundle

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// InvalidateChannel carries license ids whose cached bundles must be dropped.
// The wildcard payload "*" clears everything.
const InvalidateChannel = "bundle:invalidate"

// Invalidator drops stale cache entries locally and broadcasts the
// invalidation to peer instances over redis.
type Invalidator struct {
	cache *Cache
	rdb   *redis.Client
}

type InvalidatorParams struct {
	fx.In
	Cache *Cache
	Redis *redis.Client `optional:"true"`
}

func NewInvalidator(p InvalidatorParams) *Invalidator {
	return &Invalidator{
		cache: p.Cache,
		rdb:   p.Redis,
	}
}

func (i *Invalidator) InvalidateLicense(ctx context.Context, licenseID string) {
	i.cache.Invalidate(licenseID)

	if i.rdb == nil {
		return
	}
	if err := i.rdb.Publish(ctx, InvalidateChannel, licenseID).Err(); err != nil {
		zap.L().Warn("failed to broadcast bundle invalidation",
			zap.String("license_id", licenseID),
			zap.Error(err),
		)
	}
}

// Subscribe listens for invalidations broadcast by peer instances.
func Subscribe(lc fx.Lifecycle, p InvalidatorParams) {
	if p.Redis == nil {
		return
	}

	var pubsub *redis.PubSub

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pubsub = p.Redis.Subscribe(ctx, InvalidateChannel)

			go func() {
				for msg := range pubsub.Channel() {
					if msg.Payload == "*" {
						p.Cache.Clear()
						continue
					}
					p.Cache.Invalidate(msg.Payload)
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if pubsub != nil {
				return pubsub.Close()
			}
			return nil
		},
	})
}
