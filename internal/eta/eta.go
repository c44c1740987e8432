package eta

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Pratikk2op/Mechiee-sub000/internal/geo"
	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

// Client is a routing backend returning travel time in seconds.
type Client interface {
	EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error)
}

// Cache is a small TTL cache for routed ETAs keyed by coordinates.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f", a.Lat, a.Lon, b.Lat, b.Lon)
}

func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

func (c *Cache) Set(a, b models.Coord, v float64) {
	c.mu.Lock()
	c.store[keyFor(a, b)] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Estimator turns a garage and booking position into an ETA. It prefers the
// routing client and falls back to straight-line distance over SpeedMps.
type Estimator struct {
	SpeedMps float64
	Client   Client
	Cache    *Cache
}

// Estimate is the straight-line ETA in seconds, reusing the dispatch distance.
func Estimate(from, to models.Coord, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = 6.0 // ~21.6 km/h, two-wheeler in city traffic
	}
	return geo.DistanceKm(from, to) * 1000 / speedMps
}

func (e *Estimator) Seconds(ctx context.Context, from, to models.Coord) float64 {
	if e.Cache != nil {
		if v, ok := e.Cache.Get(from, to); ok {
			return v
		}
	}
	if e.Client != nil {
		if v, err := e.Client.EstimateSeconds(ctx, from, to); err == nil {
			if e.Cache != nil {
				e.Cache.Set(from, to, v)
			}
			return v
		}
	}
	return Estimate(from, to, e.SpeedMps)
}

// Minutes rounds Seconds up to whole minutes for display.
func (e *Estimator) Minutes(ctx context.Context, from, to models.Coord) int {
	s := e.Seconds(ctx, from, to)
	m := int(s / 60)
	if float64(m*60) < s {
		m++
	}
	return m
}
