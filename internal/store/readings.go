package store

import (
	"context"
	"sync"
	"time"

	"github.com/hkealoha/town-weather-service/internal/models"
)

// InMemoryReadingCache implements ReadingCache using a map with read-time
// expiry filtering. Stale entries are removed on access rather than swept.
type InMemoryReadingCache struct {
	mu       sync.RWMutex
	readings map[string]models.WeatherReading
	ttl      time.Duration
}

// NewInMemoryReadingCache creates a cache whose records go stale ttl after
// their last UpdatedAt refresh.
func NewInMemoryReadingCache(ttl time.Duration) *InMemoryReadingCache {
	return &InMemoryReadingCache{
		readings: make(map[string]models.WeatherReading),
		ttl:      ttl,
	}
}

// fresh reports whether the reading's UpdatedAt is within the TTL.
func (c *InMemoryReadingCache) fresh(r models.WeatherReading) bool {
	return time.Since(r.UpdatedAt) <= c.ttl
}

// Get returns the fresh reading for the location. Expired records are
// dropped and reported as absent. Reads never refresh UpdatedAt.
func (c *InMemoryReadingCache) Get(ctx context.Context, location string) (models.WeatherReading, bool, error) {
	c.mu.RLock()
	r, ok := c.readings[location]
	c.mu.RUnlock()
	if !ok {
		return models.WeatherReading{}, false, nil
	}
	if !c.fresh(r) {
		c.mu.Lock()
		// Re-check under the write lock in case a concurrent write refreshed it.
		if cur, still := c.readings[location]; still && !c.fresh(cur) {
			delete(c.readings, location)
		}
		c.mu.Unlock()
		return models.WeatherReading{}, false, nil
	}
	return r, true, nil
}

// Put stores a complete reading, preserving CreatedAt and rank history when a
// record (fresh or not) already exists for the location.
func (c *InMemoryReadingCache) Put(ctx context.Context, reading models.WeatherReading) (models.WeatherReading, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.readings[reading.Location]; ok && c.fresh(prev) {
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
	c.readings[reading.Location] = reading
	return reading, nil
}

// Promote writes a community-resolved condition and rank, keeping existing
// numeric fields when a fresh record is present and creating one otherwise.
func (c *InMemoryReadingCache) Promote(ctx context.Context, location, condition string, rank int) (models.WeatherReading, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.readings[location]
	if !ok || !c.fresh(r) {
		r = models.WeatherReading{
			Location:  location,
			CreatedAt: now,
		}
	}
	r.Condition = condition
	r.Rank = rank
	r.Source = models.SourceCommunity
	r.UpdatedAt = now
	c.readings[location] = r
	return r, nil
}

// BumpRank increments the rank of a fresh record and refreshes UpdatedAt.
func (c *InMemoryReadingCache) BumpRank(ctx context.Context, location string) (models.WeatherReading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.readings[location]
	if !ok || !c.fresh(r) {
		return models.WeatherReading{}, ErrNotFound
	}
	r.Rank++
	r.UpdatedAt = time.Now()
	c.readings[location] = r
	return r, nil
}

// SelectCondition overrides the condition of a fresh record, bumps its rank,
// and refreshes UpdatedAt.
func (c *InMemoryReadingCache) SelectCondition(ctx context.Context, location, condition string) (models.WeatherReading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.readings[location]
	if !ok || !c.fresh(r) {
		return models.WeatherReading{}, ErrNotFound
	}
	r.Condition = condition
	r.Rank++
	r.Source = models.SourceCommunity
	r.UpdatedAt = time.Now()
	c.readings[location] = r
	return r, nil
}

// Flush clears every record.
func (c *InMemoryReadingCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings = make(map[string]models.WeatherReading)
	return nil
}
