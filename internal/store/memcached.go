package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/hkealoha/town-weather-service/internal/models"
)

const readingKeyPrefix = "reading:"

// MemcachedReadingCache implements ReadingCache using memcached. Freshness
// falls out of memcached's native item expiration: every write re-sets the
// item with the configured TTL, so a stale record simply disappears.
// Read-modify-write operations are last-writer-wins, consistent with the
// no-transaction design.
type MemcachedReadingCache struct {
	client *memcache.Client
	ttl    time.Duration
}

// NewMemcachedReadingCache creates a MemcachedReadingCache. addrs is a
// comma-separated list (e.g. "localhost:11211" or "host1:11211,host2:11211").
// timeout and maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedReadingCache(addrs string, ttl, timeout time.Duration, maxIdleConns int) (*MemcachedReadingCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedReadingCache{client: client, ttl: ttl}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedReadingCache) key(location string) string {
	return readingKeyPrefix + location
}

// expiration returns the relative expiry in seconds for memcached items.
func (c *MemcachedReadingCache) expiration() int32 {
	expSec := int32(c.ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	return expSec
}

// get fetches and decodes the stored reading. ok is false on cache miss.
func (c *MemcachedReadingCache) get(location string) (models.WeatherReading, bool, error) {
	item, err := c.client.Get(c.key(location))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.WeatherReading{}, false, nil
		}
		return models.WeatherReading{}, false, err
	}
	var r models.WeatherReading
	if err := json.Unmarshal(item.Value, &r); err != nil {
		return models.WeatherReading{}, false, err
	}
	return r, true, nil
}

// set encodes and stores the reading with the configured TTL.
func (c *MemcachedReadingCache) set(r models.WeatherReading) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(r.Location),
		Value:      raw,
		Expiration: c.expiration(),
	})
}

// Get implements ReadingCache.Get.
func (c *MemcachedReadingCache) Get(ctx context.Context, location string) (models.WeatherReading, bool, error) {
	if ctx.Err() != nil {
		return models.WeatherReading{}, false, ctx.Err()
	}
	return c.get(location)
}

// Put implements ReadingCache.Put.
func (c *MemcachedReadingCache) Put(ctx context.Context, reading models.WeatherReading) (models.WeatherReading, error) {
	if ctx.Err() != nil {
		return models.WeatherReading{}, ctx.Err()
	}
	now := time.Now()
	prev, ok, err := c.get(reading.Location)
	if err != nil {
		return models.WeatherReading{}, err
	}
	if ok {
		reading.CreatedAt = prev.CreatedAt
		if reading.Rank == 0 {
			reading.Rank = prev.Rank
		}
	} else {
		reading.CreatedAt = now
		if reading.Rank == 0 {
			reading.Rank = 1
		}
	}
	reading.UpdatedAt = now
	if err := c.set(reading); err != nil {
		return models.WeatherReading{}, err
	}
	return reading, nil
}

// Promote implements ReadingCache.Promote.
func (c *MemcachedReadingCache) Promote(ctx context.Context, location, condition string, rank int) (models.WeatherReading, error) {
	if ctx.Err() != nil {
		return models.WeatherReading{}, ctx.Err()
	}
	now := time.Now()
	r, ok, err := c.get(location)
	if err != nil {
		return models.WeatherReading{}, err
	}
	if !ok {
		r = models.WeatherReading{Location: location, CreatedAt: now}
	}
	r.Condition = condition
	r.Rank = rank
	r.Source = models.SourceCommunity
	r.UpdatedAt = now
	if err := c.set(r); err != nil {
		return models.WeatherReading{}, err
	}
	return r, nil
}

// BumpRank implements ReadingCache.BumpRank.
func (c *MemcachedReadingCache) BumpRank(ctx context.Context, location string) (models.WeatherReading, error) {
	if ctx.Err() != nil {
		return models.WeatherReading{}, ctx.Err()
	}
	r, ok, err := c.get(location)
	if err != nil {
		return models.WeatherReading{}, err
	}
	if !ok {
		return models.WeatherReading{}, ErrNotFound
	}
	r.Rank++
	r.UpdatedAt = time.Now()
	if err := c.set(r); err != nil {
		return models.WeatherReading{}, err
	}
	return r, nil
}

// SelectCondition implements ReadingCache.SelectCondition.
func (c *MemcachedReadingCache) SelectCondition(ctx context.Context, location, condition string) (models.WeatherReading, error) {
	if ctx.Err() != nil {
		return models.WeatherReading{}, ctx.Err()
	}
	r, ok, err := c.get(location)
	if err != nil {
		return models.WeatherReading{}, err
	}
	if !ok {
		return models.WeatherReading{}, ErrNotFound
	}
	r.Condition = condition
	r.Rank++
	r.Source = models.SourceCommunity
	r.UpdatedAt = time.Now()
	if err := c.set(r); err != nil {
		return models.WeatherReading{}, err
	}
	return r, nil
}

// Flush implements ReadingCache.Flush by flushing all memcached items.
func (c *MemcachedReadingCache) Flush(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.client.FlushAll()
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedReadingCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedReadingCache) Close() error {
	return c.client.Close()
}
