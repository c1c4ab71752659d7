package cart

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tournetwork/storefront/internal/cache"
)

// Persister saves JSON documents under string keys.
type Persister interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Save(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
	// Take loads key and removes it in one step.
	Take(ctx context.Context, key string, dst any) (bool, error)
}

// RedisPersister keeps documents in Redis with the cache's TTL.
type RedisPersister struct {
	Cache *cache.JSON
}

func (p RedisPersister) Load(ctx context.Context, key string, dst any) (bool, error) {
	return p.Cache.Get(ctx, key, dst)
}

func (p RedisPersister) Save(ctx context.Context, key string, v any) error {
	return p.Cache.Set(ctx, key, v)
}

func (p RedisPersister) Delete(ctx context.Context, key string) error {
	return p.Cache.Delete(ctx, key)
}

func (p RedisPersister) Take(ctx context.Context, key string, dst any) (bool, error) {
	return p.Cache.Take(ctx, key, dst)
}

// MemoryPersister is a process local Persister for tests and single node runs.
type MemoryPersister struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// NewMemoryPersister returns an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{docs: make(map[string][]byte)}
}

func (p *MemoryPersister) Load(_ context.Context, key string, dst any) (bool, error) {
	p.mu.Lock()
	data, ok := p.docs[key]
	p.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (p *MemoryPersister) Save(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.docs[key] = data
	p.mu.Unlock()
	return nil
}

func (p *MemoryPersister) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.docs, key)
	p.mu.Unlock()
	return nil
}

func (p *MemoryPersister) Take(_ context.Context, key string, dst any) (bool, error) {
	p.mu.Lock()
	data, ok := p.docs[key]
	delete(p.docs, key)
	p.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}
