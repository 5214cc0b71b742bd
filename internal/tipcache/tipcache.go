// Package tipcache implements the 30-minute validator tip-account cache
// shared by the Action Materializer (C5) and the Bundle Lifecycle (C6):
// both need the current tip-account set, and both tolerate a stale read
// over a failed refresh.
package tipcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quietledger/sniper-core/internal/adapters"
	"github.com/quietledger/sniper-core/internal/domain"
)

const DefaultTTL = 30 * time.Minute

// Cache holds one tip-account set per cluster, refreshed on demand.
type Cache struct {
	mu        sync.Mutex
	clients   map[domain.Cluster]adapters.BlockEngineClient
	ttl       time.Duration
	now       func() time.Time
	accounts  map[domain.Cluster][]string
	fetchedAt map[domain.Cluster]time.Time
}

func New(clients map[domain.Cluster]adapters.BlockEngineClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		clients:   clients,
		ttl:       ttl,
		now:       time.Now,
		accounts:  make(map[domain.Cluster][]string),
		fetchedAt: make(map[domain.Cluster]time.Time),
	}
}

// Get returns the tip-account set for cluster, refreshing it iff the cache
// is empty or older than ttl. On a refresh failure, a previously cached
// set is returned instead of the error (stale-on-error).
func (c *Cache) Get(ctx context.Context, cluster domain.Cluster) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if accts, ok := c.accounts[cluster]; ok && c.now().Sub(c.fetchedAt[cluster]) < c.ttl {
		return accts, nil
	}

	client, ok := c.clients[cluster]
	if !ok {
		return nil, fmt.Errorf("tipcache: no block-engine client for cluster %s", cluster)
	}

	accts, err := client.GetTipAccounts(ctx, string(cluster))
	if err != nil {
		if stale, ok := c.accounts[cluster]; ok {
			return stale, nil
		}
		return nil, fmt.Errorf("tipcache: refresh failed and no cached set: %w", err)
	}

	c.accounts[cluster] = accts
	c.fetchedAt[cluster] = c.now()
	return accts, nil
}
