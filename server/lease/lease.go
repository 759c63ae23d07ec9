// Package lease keeps a redelivered match request from being played twice:
// a short-lived per-match lock while a worker plays it, and a completion
// marker once its outcome has been published.
package lease

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL   = 10 * time.Minute
	completedTTL = 24 * time.Hour
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Leaser struct {
	rdb   *redis.Client
	owner string
	ttl   time.Duration
}

// New returns a Leaser that holds locks as owner.
func New(rdb *redis.Client, owner string, ttl time.Duration) *Leaser {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Leaser{rdb: rdb, owner: owner, ttl: ttl}
}

func keyLease(id string) string { return "match:lease:" + strings.TrimSpace(id) }
func keyDone(id string) string  { return "match:done:" + strings.TrimSpace(id) }

// Acquire takes the lock for a match. It reports false if another owner
// holds it.
func (l *Leaser) Acquire(ctx context.Context, id string) (bool, error) {
	return l.rdb.SetNX(ctx, keyLease(id), l.owner, l.ttl).Result()
}

// Release drops the lock if this owner still holds it.
func (l *Leaser) Release(ctx context.Context, id string) error {
	return releaseScript.Run(ctx, l.rdb, []string{keyLease(id)}, l.owner).Err()
}

func (l *Leaser) MarkCompleted(ctx context.Context, id string) error {
	return l.rdb.Set(ctx, keyDone(id), l.owner, completedTTL).Err()
}

func (l *Leaser) Completed(ctx context.Context, id string) (bool, error) {
	n, err := l.rdb.Exists(ctx, keyDone(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Open parses a redis:// URL and pings the server.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}
