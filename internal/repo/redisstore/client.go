package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

type ConnOptions struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds dialing and each read or write. Defaults to 2s.
	Timeout time.Duration
}

// Connect dials redis and fails unless it answers a PING. The caller owns
// the returned client.
func Connect(ctx context.Context, opts ConnOptions) (*redis.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, oops.In("redis_resets").Code("REDIS_UNAVAILABLE").With("addr", opts.Addr).Wrap(err)
	}
	return rdb, nil
}

// Ping reports whether the backing redis answers. It doubles as a readiness
// check.
func (r *PasswordResetsRepo) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
