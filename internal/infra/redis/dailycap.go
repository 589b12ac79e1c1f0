package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/report-dispatch/internal/quota"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultDailyCeiling int64 = 10000
	// Keys outlive their day by a margin so a run straddling midnight still
	// reads yesterday's counter correctly before switching keys.
	capKeyTTLSeconds = 2 * 24 * 60 * 60
)

// reserveScript grants min(requested, remaining) sends atomically.
var reserveScript = goredis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
local wanted = tonumber(ARGV[2])
local remaining = limit - used
if remaining <= 0 then
  return 0
end
local granted = math.min(wanted, remaining)
redis.call("INCRBY", KEYS[1], granted)
redis.call("EXPIRE", KEYS[1], ARGV[3])
return granted
`)

var _ quota.DailyQuota = (*RedisDailyQuota)(nil)

// RedisDailyQuota is a distributed daily dispatch ceiling backed by Redis.
// The counter is shared process-wide, so multiple dispatchers respect one budget.
type RedisDailyQuota struct {
	client  *goredis.Client
	ceiling int64
	now     func() time.Time
	script  *goredis.Script
}

func NewRedisDailyQuota(client *goredis.Client, ceiling int) (*RedisDailyQuota, error) {
	return newRedisDailyQuota(client, int64(ceiling), time.Now)
}

func newRedisDailyQuota(client *goredis.Client, ceiling int64, nowFn func() time.Time) (*RedisDailyQuota, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ceiling <= 0 {
		ceiling = defaultDailyCeiling
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &RedisDailyQuota{
		client:  client,
		ceiling: ceiling,
		now:     nowFn,
		script:  reserveScript,
	}, nil
}

func (q *RedisDailyQuota) Reserve(ctx context.Context, n int) (int, error) {
	if q == nil || q.client == nil || q.script == nil {
		return 0, fmt.Errorf("daily quota is not initialized")
	}
	if n <= 0 {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	granted, err := q.script.Run(ctx, q.client, []string{q.key()}, q.ceiling, n, capKeyTTLSeconds).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to reserve dispatch quota: %w", err)
	}

	return granted, nil
}

// releaseScript refunds unused reservations without going below zero.
var releaseScript = goredis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
local refund = math.min(tonumber(ARGV[1]), used)
if refund > 0 then
  redis.call("DECRBY", KEYS[1], refund)
end
return refund
`)

func (q *RedisDailyQuota) Release(ctx context.Context, n int) error {
	if q == nil || q.client == nil {
		return fmt.Errorf("daily quota is not initialized")
	}
	if n <= 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := releaseScript.Run(ctx, q.client, []string{q.key()}, n).Err(); err != nil {
		return fmt.Errorf("failed to release dispatch quota: %w", err)
	}
	return nil
}

func (q *RedisDailyQuota) Remaining(ctx context.Context) (int, error) {
	if q == nil || q.client == nil {
		return 0, fmt.Errorf("daily quota is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	used, err := q.client.Get(ctx, q.key()).Int64()
	if err != nil && err != goredis.Nil {
		return 0, fmt.Errorf("failed to read dispatch quota: %w", err)
	}

	remaining := q.ceiling - used
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining), nil
}

func (q *RedisDailyQuota) key() string {
	return fmt.Sprintf("dispatchcap:%s", q.now().UTC().Format("2006-01-02"))
}
