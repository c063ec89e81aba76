// Package schema implements the Field Schema Cache (C4): per-project
// tracker field metadata, cached with a TTL, with single-flight fetch.
package schema

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FieldType compresses tracker-specific custom types into a small set.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeNumber   FieldType = "number"
	TypeArray    FieldType = "array"
	TypeOption   FieldType = "option"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
)

// FieldSchema describes one tracker field, keyed by both id and name.
type FieldSchema struct {
	ID             string
	Name           string
	Type           FieldType
	Required       bool
	AllowedValues  []string // empty means unconstrained
}

// Fetcher retrieves the full field list for a project from the tracker.
// The schema cache is agnostic to transport; the engine wires a tracker.Client-backed
// implementation.
type Fetcher interface {
	FetchFields(ctx context.Context, projectKey string) ([]FieldSchema, error)
}

type projectEntry struct {
	byID      map[string]*FieldSchema
	byName    map[string]*FieldSchema
	fetchedAt time.Time
}

// Cache is the per-project field schema cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*projectEntry
	ttl     time.Duration
	fetcher Fetcher

	inflightMu sync.Mutex
	inflight   map[string]chan struct{}

	hits   atomic.Int64
	misses atomic.Int64
}

func New(fetcher Fetcher, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		entries:  make(map[string]*projectEntry),
		ttl:      ttl,
		fetcher:  fetcher,
		inflight: make(map[string]chan struct{}),
	}
}

// GetField returns the cached field by id or name, fetching (at most once
// per project concurrently) on a cache miss or expiry.
func (c *Cache) GetField(ctx context.Context, nameOrID, projectKey string) (*FieldSchema, error) {
	entry, err := c.projectEntry(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	if f, ok := entry.byID[nameOrID]; ok {
		return f, nil
	}
	if f, ok := entry.byName[nameOrID]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("field %q not found in project %q", nameOrID, projectKey)
}

func (c *Cache) projectEntry(ctx context.Context, projectKey string) (*projectEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[projectKey]
	fresh := ok && time.Since(entry.fetchedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		c.hits.Add(1)
		return entry, nil
	}
	c.misses.Add(1)
	return c.fetchSingleFlight(ctx, projectKey)
}

// HitRate returns the fraction of projectEntry lookups served from a fresh
// cache entry, used by the health monitor's cache hit-rate probe. Returns
// 1 (no evidence of a problem) until any lookup has occurred.
func (c *Cache) HitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 1
	}
	return float64(hits) / float64(total)
}

// fetchSingleFlight ensures at most one in-flight fetch per project: the
// first caller for a stale/missing project fetches; concurrent callers wait
// on a channel instead of issuing duplicate tracker calls.
func (c *Cache) fetchSingleFlight(ctx context.Context, projectKey string) (*projectEntry, error) {
	c.inflightMu.Lock()
	if ch, inFlight := c.inflight[projectKey]; inFlight {
		c.inflightMu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.RLock()
		entry, ok := c.entries[projectKey]
		c.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("schema fetch for project %q failed", projectKey)
		}
		return entry, nil
	}
	done := make(chan struct{})
	c.inflight[projectKey] = done
	c.inflightMu.Unlock()

	defer func() {
		c.inflightMu.Lock()
		delete(c.inflight, projectKey)
		c.inflightMu.Unlock()
		close(done)
	}()

	fields, err := c.fetcher.FetchFields(ctx, projectKey)
	if err != nil {
		return nil, err
	}

	entry := &projectEntry{
		byID:      make(map[string]*FieldSchema),
		byName:    make(map[string]*FieldSchema),
		fetchedAt: time.Now(),
	}
	for i := range fields {
		f := &fields[i]
		entry.byID[f.ID] = f
		entry.byName[f.Name] = f
	}

	c.mu.Lock()
	c.entries[projectKey] = entry
	c.mu.Unlock()

	return entry, nil
}

// Validate checks value against the field's required/type/allowed-values
// constraints.
func (c *Cache) Validate(ctx context.Context, nameOrID, projectKey string, value any) error {
	f, err := c.GetField(ctx, nameOrID, projectKey)
	if err != nil {
		return err
	}
	if f.Required && (value == nil || value == "") {
		return fmt.Errorf("field %q is required", f.Name)
	}
	if value == nil {
		return nil
	}
	if err := checkType(f, value); err != nil {
		return err
	}
	if len(f.AllowedValues) > 0 {
		s, ok := value.(string)
		if ok {
			for _, allowed := range f.AllowedValues {
				if allowed == s {
					return nil
				}
			}
			return fmt.Errorf("value %q not in allowed values for field %q", s, f.Name)
		}
	}
	return nil
}

func checkType(f *FieldSchema, value any) error {
	switch f.Type {
	case TypeNumber:
		switch value.(type) {
		case int, int64, float64, float32:
			return nil
		default:
			return fmt.Errorf("field %q expects a number", f.Name)
		}
	case TypeArray:
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("field %q expects an array", f.Name)
		}
		return nil
	case TypeString, TypeOption, TypeDate, TypeDateTime:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q expects a string", f.Name)
		}
		return nil
	default:
		return nil
	}
}

// Invalidate drops the cached entry for a project, forcing the next lookup
// to refetch.
func (c *Cache) Invalidate(projectKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, projectKey)
}
