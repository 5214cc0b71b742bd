package tipcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quietledger/sniper-core/internal/adapters"
	"github.com/quietledger/sniper-core/internal/domain"
)

type fakeBlockEngine struct {
	accounts []string
	err      error
	calls    int
}

func (f *fakeBlockEngine) GetTipAccounts(ctx context.Context, cluster string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts, nil
}
func (f *fakeBlockEngine) SimulateBundle(ctx context.Context, cluster string, txsBase58 []string) (any, error) {
	return nil, nil
}
func (f *fakeBlockEngine) SendBundle(ctx context.Context, cluster string, txsBase58 []string) (any, error) {
	return nil, nil
}
func (f *fakeBlockEngine) GetBundleStatuses(ctx context.Context, cluster string, ids []string) (any, error) {
	return nil, nil
}

func TestCacheDoesNotRefetchWithinTTL(t *testing.T) {
	be := &fakeBlockEngine{accounts: []string{"tipA", "tipB"}}
	c := New(map[domain.Cluster]adapters.BlockEngineClient{domain.ClusterMainnet: be}, time.Hour)
	fixed := time.Unix(0, 0)
	c.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		accts, err := c.Get(context.Background(), domain.ClusterMainnet)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(accts) != 2 {
			t.Fatalf("expected 2 accounts, got %v", accts)
		}
	}
	if be.calls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", be.calls)
	}
}

func TestCacheRefreshesAfterTTLExpires(t *testing.T) {
	be := &fakeBlockEngine{accounts: []string{"tipA"}}
	c := New(map[domain.Cluster]adapters.BlockEngineClient{domain.ClusterMainnet: be}, time.Hour)
	tick := time.Unix(0, 0)
	c.now = func() time.Time { return tick }

	if _, err := c.Get(context.Background(), domain.ClusterMainnet); err != nil {
		t.Fatal(err)
	}
	tick = tick.Add(2 * time.Hour)
	if _, err := c.Get(context.Background(), domain.ClusterMainnet); err != nil {
		t.Fatal(err)
	}
	if be.calls != 2 {
		t.Fatalf("expected a refresh after TTL expiry, got %d calls", be.calls)
	}
}

func TestCacheStaleOnError(t *testing.T) {
	be := &fakeBlockEngine{accounts: []string{"tipA"}}
	c := New(map[domain.Cluster]adapters.BlockEngineClient{domain.ClusterMainnet: be}, time.Hour)
	tick := time.Unix(0, 0)
	c.now = func() time.Time { return tick }

	if _, err := c.Get(context.Background(), domain.ClusterMainnet); err != nil {
		t.Fatal(err)
	}

	tick = tick.Add(2 * time.Hour)
	be.err = errors.New("block engine unavailable")
	accts, err := c.Get(context.Background(), domain.ClusterMainnet)
	if err != nil {
		t.Fatalf("expected stale cache to mask the error, got %v", err)
	}
	if len(accts) != 1 || accts[0] != "tipA" {
		t.Fatalf("expected stale tipA, got %v", accts)
	}
}
