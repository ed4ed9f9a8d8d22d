package contentful

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const limiterPrefix = "gamesync:contentful"

// NewMemoryStore keeps the request quota inside the current process.
func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          limiterPrefix,
		CleanUpInterval: time.Minute,
	})
}

// NewRedisStore shares the request quota between processes syncing the same space.
func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   limiterPrefix,
		MaxRetry: 3,
	})
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis limiter store")
	}
	return store, nil
}

type rateGate struct {
	lim *limiter.Limiter
	key string
}

func newRateGate(store limiter.Store, perSecond int64, key string) *rateGate {
	if store == nil || perSecond <= 0 {
		return nil
	}
	return &rateGate{
		lim: limiter.New(store, limiter.Rate{Period: time.Second, Limit: perSecond}),
		key: key,
	}
}

// wait blocks until the shared quota admits one more request.
func (g *rateGate) wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	for {
		lctx, err := g.lim.Get(ctx, g.key)
		if err != nil {
			return errors.Wrap(err, "rate limiter")
		}
		if !lctx.Reached {
			return nil
		}
		delay := time.Until(time.Unix(lctx.Reset, 0))
		if delay <= 0 {
			delay = 50 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
