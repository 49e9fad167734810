package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/beststore/accounts/internal/domain/reset"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const (
	tokenPrefix = "reset:token:"
	emailPrefix = "reset:email:"
	seqKey      = "reset:seq"
)

// deleteToken removes a token record and, if it is still the current one for
// its email, the email index entry. Returns 1 when the record existed.
var deleteToken = redis.NewScript(`
local email = redis.call('HGET', KEYS[1], 'email')
if not email then
	return 0
end
redis.call('DEL', KEYS[1])
local ek = ARGV[1] .. email
if redis.call('GET', ek) == ARGV[2] then
	redis.call('DEL', ek)
end
return 1
`)

// PasswordResetsRepo keeps reset requests in redis. Records are keyed by token
// hash, with a per-email index pointing at the current one. When ttl is set
// both keys expire natively.
type PasswordResetsRepo struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewPasswordResetsRepo(rdb *redis.Client, ttl time.Duration) *PasswordResetsRepo {
	return &PasswordResetsRepo{rdb: rdb, ttl: ttl, now: time.Now}
}

func tokenKey(hash string) string  { return tokenPrefix + hash }
func emailKey(email string) string { return emailPrefix + email }

// Issue supersedes any outstanding request for email. The email index is
// WATCHed so concurrent issues for one email serialize; the loser retries.
func (r *PasswordResetsRepo) Issue(ctx context.Context, email string) (string, error) {
	id, err := r.rdb.Incr(ctx, seqKey).Result()
	if err != nil {
		return "", oops.In("redis_resets").Code("RESET_ISSUE_FAILED").Wrap(err)
	}

	req := reset.New(email, r.now())
	req.ID = id
	hash := reset.HashToken(req.Token)
	ek := emailKey(email)

	b := retry.WithMaxRetries(5, retry.NewExponential(5*time.Millisecond))

	err = retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			old, err := tx.Get(ctx, ek).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if old != "" {
					pipe.Del(ctx, tokenKey(old))
				}
				pipe.HSet(ctx, tokenKey(hash),
					"id", req.ID,
					"email", req.Email,
					"created_at", req.CreatedAt.UnixNano(),
				)
				pipe.Set(ctx, ek, hash, r.ttl)
				if r.ttl > 0 {
					pipe.Expire(ctx, tokenKey(hash), r.ttl)
				}
				return nil
			})
			return err
		}, ek)

		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", oops.In("redis_resets").Code("RESET_ISSUE_FAILED").With("operation", "supersede").Wrap(err)
	}

	return req.Token, nil
}

func (r *PasswordResetsRepo) Find(ctx context.Context, token string) (reset.Request, error) {
	fields, err := r.rdb.HGetAll(ctx, tokenKey(reset.HashToken(token))).Result()
	if err != nil {
		return reset.Request{}, oops.In("redis_resets").Code("RESET_LOOKUP_FAILED").Wrap(err)
	}
	if len(fields) == 0 {
		return reset.Request{}, reset.ErrNotFound
	}

	return decode(fields, token)
}

// Delete is the single-use gate; the script runs atomically so exactly one
// caller observes the record.
func (r *PasswordResetsRepo) Delete(ctx context.Context, token string) error {
	hash := reset.HashToken(token)

	n, err := deleteToken.Run(ctx, r.rdb, []string{tokenKey(hash)}, emailPrefix, hash).Int()
	if err != nil {
		return oops.In("redis_resets").Code("RESET_DELETE_FAILED").Wrap(err)
	}
	if n == 0 {
		return reset.ErrNotFound
	}
	return nil
}

// PurgeOlderThan scans the token records and removes those created at or
// before cutoff. With a ttl configured redis usually gets there first.
func (r *PasswordResetsRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64

	iter := r.rdb.Scan(ctx, 0, tokenPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		raw, err := r.rdb.HGet(ctx, key, "created_at").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return purged, oops.In("redis_resets").Code("RESET_PURGE_FAILED").Wrap(err)
		}

		ns, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || time.Unix(0, ns).After(cutoff) {
			continue
		}

		hash := key[len(tokenPrefix):]
		n, err := deleteToken.Run(ctx, r.rdb, []string{key}, emailPrefix, hash).Int()
		if err != nil {
			return purged, oops.In("redis_resets").Code("RESET_PURGE_FAILED").Wrap(err)
		}
		purged += int64(n)
	}
	if err := iter.Err(); err != nil {
		return purged, oops.In("redis_resets").Code("RESET_PURGE_FAILED").Wrap(err)
	}

	return purged, nil
}

func decode(fields map[string]string, token string) (reset.Request, error) {
	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return reset.Request{}, oops.In("redis_resets").Code("RESET_DECODE_FAILED").Wrap(err)
	}
	ns, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return reset.Request{}, oops.In("redis_resets").Code("RESET_DECODE_FAILED").Wrap(err)
	}

	return reset.Request{
		ID:        id,
		Email:     fields["email"],
		Token:     token,
		CreatedAt: time.Unix(0, ns).UTC(),
	}, nil
}
