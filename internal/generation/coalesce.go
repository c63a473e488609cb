package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Coalescer collapses concurrent calls that share a key into one execution.
// Every waiter observes the leader's value and error; shared reports whether
// the caller received another caller's result.
type Coalescer interface {
	Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (value any, shared bool, err error)
}

// CoalesceKey is the key under which quiz generation for one content item,
// requester and difficulty is coalesced.
func CoalesceKey(contentID, requester, difficulty string) string {
	return strings.Join([]string{"quiz", contentID, requester, difficulty}, ":")
}

// LocalCoalescer coalesces within the process. The key is released as soon
// as the leader settles, so a later call starts a fresh execution.
type LocalCoalescer struct {
	group singleflight.Group
}

// NewLocalCoalescer returns an in-process coalescer.
func NewLocalCoalescer() *LocalCoalescer {
	return &LocalCoalescer{}
}

// Do runs fn once per in-flight key. fn receives a context detached from the
// leader's cancellation so one waiter giving up does not fail the others; a
// waiter whose own context ends returns early with its context error.
func (c *LocalCoalescer) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			generationCoalesced.Inc()
		}
		return res.Val, res.Shared, res.Err
	}
}

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisCoalescer extends LocalCoalescer with a Redis mutex so executions for
// a key are serialized across processes.
type RedisCoalescer struct {
	local  *LocalCoalescer
	client redis.UniversalClient
	ttl    time.Duration
	poll   time.Duration
	prefix string
}

// NewRedisCoalescer builds a distributed coalescer. ttl bounds how long a
// crashed holder can block others.
func NewRedisCoalescer(client redis.UniversalClient, ttl time.Duration) *RedisCoalescer {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisCoalescer{
		local:  NewLocalCoalescer(),
		client: client,
		ttl:    ttl,
		poll:   200 * time.Millisecond,
		prefix: "studyforge:coalesce:",
	}
}

// Do coalesces locally, then holds the distributed lock for key while fn runs.
func (c *RedisCoalescer) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, bool, error) {
	return c.local.Do(ctx, key, func(ctx context.Context) (any, error) {
		release, err := c.acquire(ctx, c.prefix+key)
		if err != nil {
			return nil, err
		}
		defer release()
		return fn(ctx)
	})
}

func (c *RedisCoalescer) acquire(ctx context.Context, lockKey string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(c.ttl)
	for {
		ok, err := c.client.SetNX(ctx, lockKey, token, c.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire coalescing lock: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, c.client, []string{lockKey}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, errors.New("acquire coalescing lock: timed out waiting for holder")
		}
		timer := time.NewTimer(c.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
