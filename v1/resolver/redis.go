package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-lockset/v1/acquire"
	lockerrors "github.com/mirkobrombin/go-lockset/v1/errors"
	"github.com/mirkobrombin/go-lockset/v1/lockset"
	"github.com/mirkobrombin/go-lockset/v1/syncbus"
)

// Writer key holds the owner's token; readers key holds the shared-hold count.
// A write lock needs no writer and no readers; a read lock needs no writer.
var acquireReadScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
    return 0
end
redis.call("INCR", KEYS[2])
if tonumber(ARGV[1]) > 0 then
    redis.call("PEXPIRE", KEYS[2], ARGV[1])
end
return 1
`)

var releaseReadScript = redis.NewScript(`
local n = redis.call("DECR", KEYS[1])
if n <= 0 then
    redis.call("DEL", KEYS[1])
end
return n
`)

var acquireWriteScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
    return 0
end
local readers = tonumber(redis.call("GET", KEYS[2]) or "0")
if readers > 0 then
    return 0
end
if tonumber(ARGV[2]) > 0 then
    redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
    redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

var releaseWriteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements acquire.Resolver with distributed read/write locks on a
// Redis backend. Write holds are fenced by a random token so a lock that
// expired and was re-acquired elsewhere cannot be released by the old holder.
// Blocked acquirers wait for "unlock:<name>" bus events instead of polling.
type Redis struct {
	client *redis.Client
	bus    syncbus.Bus
	ttl    time.Duration
}

// NewRedis returns a Redis resolver using the provided client. A zero ttl
// means holds never expire; a positive ttl guards against crashed holders.
// A nil bus falls back to a process-local one.
func NewRedis(client *redis.Client, bus syncbus.Bus, ttl time.Duration) *Redis {
	if bus == nil {
		bus = syncbus.NewInMemoryBus()
	}
	return &Redis{client: client, bus: bus, ttl: ttl}
}

func writerKey(name string) string  { return "lockset:w:" + name }
func readersKey(name string) string { return "lockset:r:" + name }

// Acquire implements acquire.Resolver. It subscribes to the lock's unlock
// topic before the first attempt so a release between attempts cannot be
// missed, then retries on every wake-up until it wins or ctx ends.
func (r *Redis) Acquire(ctx context.Context, name string, mode lockset.Mode) (acquire.Guard, error) {
	topic := "unlock:" + name
	ch, err := r.bus.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.bus.Unsubscribe(context.Background(), topic, ch) }()

	for {
		g, err := r.tryAcquire(ctx, name, mode)
		if err != nil {
			return nil, err
		}
		if g != nil {
			return g, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *Redis) tryAcquire(ctx context.Context, name string, mode lockset.Mode) (acquire.Guard, error) {
	ttlMillis := r.ttl.Milliseconds()
	if mode == lockset.Read {
		ok, err := acquireReadScript.Run(ctx, r.client,
			[]string{writerKey(name), readersKey(name)}, ttlMillis).Int()
		if err != nil {
			return nil, err
		}
		if ok == 0 {
			return nil, nil
		}
		return &redisGuard{r: r, name: name, mode: mode}, nil
	}

	token := uuid.NewString()
	ok, err := acquireWriteScript.Run(ctx, r.client,
		[]string{writerKey(name), readersKey(name)}, token, ttlMillis).Int()
	if err != nil {
		return nil, err
	}
	if ok == 0 {
		return nil, nil
	}
	return &redisGuard{r: r, name: name, mode: mode, token: token}, nil
}

type redisGuard struct {
	r     *Redis
	name  string
	mode  lockset.Mode
	token string

	mu       sync.Mutex
	released bool
}

// Release frees the lock and publishes the unlock event once no holder
// remains. Releasing twice, or releasing a write hold whose TTL already
// expired, returns ErrNotHeld.
func (g *redisGuard) Release(ctx context.Context) error {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return lockerrors.ErrNotHeld
	}
	g.released = true
	g.mu.Unlock()

	if g.mode == lockset.Read {
		n, err := releaseReadScript.Run(ctx, g.r.client, []string{readersKey(g.name)}).Int()
		if err != nil {
			return err
		}
		if n <= 0 {
			_ = g.r.bus.Publish(ctx, "unlock:"+g.name)
		}
		return nil
	}

	deleted, err := releaseWriteScript.Run(ctx, g.r.client, []string{writerKey(g.name)}, g.token).Int()
	if err != nil && err != redis.Nil {
		return err
	}
	if deleted == 0 {
		return lockerrors.ErrNotHeld
	}
	_ = g.r.bus.Publish(ctx, "unlock:"+g.name)
	return nil
}
