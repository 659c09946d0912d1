package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// BumpChannel carries version bumps to other processes.
const BumpChannel = "refeitorio:cache.bump"

// Versioned caches JSON values under keys suffixed with a global version.
// Bumping the version makes every previous key unreachable; old entries
// expire through their TTL. A nil Versioned or nil client disables caching.
type Versioned struct {
	client     *redis.Client
	ttl        time.Duration
	versionKey string
}

// NewVersioned builds a cache whose version counter lives at namespace:version.
func NewVersioned(client *redis.Client, namespace string, ttl time.Duration) *Versioned {
	return &Versioned{client: client, ttl: ttl, versionKey: namespace + ":version"}
}

func (c *Versioned) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current version, initialising it when missing.
func (c *Versioned) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey).Int64()
	if errors.Is(err, redis.Nil) || (err == nil && ver <= 0) {
		if err := c.client.SetNX(ctx, c.versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.versionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key joins parts and appends the current version.
func (c *Versioned) Key(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if !c.enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// ErrDegraded reports that FetchJSON served a freshly loaded value because
// redis could not be read or written. dest is populated when it is returned.
var ErrDegraded = errors.New("platform/cache: served without cache")

// FetchJSON decodes the cached value at key into dest, or runs loader,
// stores its result and decodes that. When redis fails around a successful
// load, dest is still filled and the redis error is wrapped in ErrDegraded.
func (c *Versioned) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("platform/cache: loader required")
	}
	var cacheErr error
	if c.enabled() {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			cacheErr = err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.enabled() && cacheErr == nil {
		cacheErr = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return err
	}
	if cacheErr != nil {
		return fmt.Errorf("%w: %w", ErrDegraded, cacheErr)
	}
	return nil
}

// Bump invalidates every cached value and announces the new version.
func (c *Versioned) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, c.versionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// Listen follows version bumps published by other processes until ctx ends.
// onBump, when set, is called with each announced version.
func (c *Versioned) Listen(ctx context.Context, onBump func(version int64)) {
	if !c.enabled() {
		return
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				if onBump != nil {
					onBump(ver)
				}
			}
		}
	}()
}
