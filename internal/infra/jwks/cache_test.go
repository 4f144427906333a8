package jwks_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/astro-web3/permission-filter/internal/infra/jwks"
)

type countingSource struct {
	calls  atomic.Int64
	keySet *jwks.KeySet
	err    error
}

func (s *countingSource) Resolve(context.Context) (*jwks.KeySet, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.keySet, nil
}

func TestCachingSource_CachesAcrossCalls(t *testing.T) {
	source := &countingSource{keySet: &jwks.KeySet{Keys: []jwks.Key{{Kid: "key-1"}}}}
	caching := jwks.NewCachingSource(source, jwks.NewMemoryKeySetCache(), "test", time.Minute)

	for range 3 {
		keySet, err := caching.Resolve(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, found := keySet.Lookup("key-1"); !found {
			t.Fatal("expected key-1 in resolved set")
		}
	}

	if got := source.calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream fetch, got %d", got)
	}
}

func TestCachingSource_ServesLastKnownOnFailure(t *testing.T) {
	source := &countingSource{keySet: &jwks.KeySet{Keys: []jwks.Key{{Kid: "key-1"}}}}
	cache := jwks.NewMemoryKeySetCache()
	caching := jwks.NewCachingSource(source, cache, "test", time.Millisecond)

	if _, err := caching.Resolve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Expire the cache entry, then make the upstream fail.
	time.Sleep(5 * time.Millisecond)
	source.err = jwks.ErrSourceUnreachable

	keySet, err := caching.Resolve(context.Background())
	if err != nil {
		t.Fatalf("expected last known key set, got error: %v", err)
	}
	if _, found := keySet.Lookup("key-1"); !found {
		t.Error("expected key-1 from last known set")
	}
}

func TestCachingSource_FailureWithoutBackupPropagates(t *testing.T) {
	source := &countingSource{err: jwks.ErrSourceUnreachable}
	caching := jwks.NewCachingSource(source, jwks.NewMemoryKeySetCache(), "test", time.Minute)

	if _, err := caching.Resolve(context.Background()); err == nil {
		t.Fatal("expected error when no key set was ever resolved")
	}
}

func TestMemoryKeySetCache_TTL(t *testing.T) {
	cache := jwks.NewMemoryKeySetCache()
	keySet := &jwks.KeySet{Keys: []jwks.Key{{Kid: "key-1"}}}

	if err := cache.Set(context.Background(), "k", keySet, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := cache.Get(context.Background(), "k"); err != nil {
		t.Fatalf("expected cache hit, got %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, err := cache.Get(context.Background(), "k"); err != jwks.ErrCacheMiss {
		t.Errorf("expected ErrCacheMiss after TTL, got %v", err)
	}
}
