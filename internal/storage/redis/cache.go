// Package redis caches recommendation rankings in Redis.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/recommend"
)

// DefaultTTL bounds how stale a cached ranking can get when no settlement
// invalidates it.
const DefaultTTL = 10 * time.Minute

var _ recommend.Cache = (*Cache)(nil)

// storeRanking writes a ranking only while the generation read before
// computing it is still current.
var storeRanking = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// Cache stores every ranking of a user as one hash keyed by limit, so a
// single DEL invalidates them all. A per-user generation counter, bumped on
// every invalidation, keeps rankings computed before it from being stored.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewClient parses url and verifies the server answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// New returns a Cache on client. A non-positive ttl means DefaultTTL.
func New(client redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, prefix: "loyalty:reco:", ttl: ttl}
}

func (c *Cache) key(userID string) string {
	return c.prefix + userID
}

func (c *Cache) genKey(userID string) string {
	return c.prefix + userID + ":gen"
}

func (c *Cache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.AsTransient(errors.Wrap(err, "get generation"))
	}
	return gen, nil
}

func (c *Cache) Get(ctx context.Context, userID string, limit int) ([]string, bool, error) {
	raw, err := c.client.HGet(ctx, c.key(userID), strconv.Itoa(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.AsTransient(errors.Wrap(err, "hget"))
	}

	ids := []string{}
	if err := jx.DecodeBytes(raw).Arr(func(d *jx.Decoder) error {
		id, err := d.Str()
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	}); err != nil {
		return nil, false, errors.Wrap(err, "decode cached ids")
	}
	return ids, true, nil
}

func (c *Cache) Set(ctx context.Context, userID string, limit int, gen int64, ids []string) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ArrStart()
	for _, id := range ids {
		e.Str(id)
	}
	e.ArrEnd()

	keys := []string{c.key(userID), c.genKey(userID)}
	err := storeRanking.Run(ctx, c.client, keys,
		strconv.FormatInt(gen, 10), strconv.Itoa(limit), e.Bytes(), c.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return apperr.AsTransient(errors.Wrap(err, "store ranking"))
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	gen := c.genKey(userID)
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, gen)
	pipe.Expire(ctx, gen, c.ttl)
	pipe.Del(ctx, c.key(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.AsTransient(errors.Wrap(err, "invalidate"))
	}
	return nil
}
