package vfs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kanbang/xdesktop/internal/infrastructure/logging"
)

// DefaultCacheCapacity bounds the number of principals kept in memory.
const DefaultCacheCapacity = 1024

// AdapterSet is the ordered set of adapters owned by one principal.
type AdapterSet struct {
	principal Principal
	order     []string
	byKey     map[string]*Adapter
}

// Keys returns the adapter keys in registration order.
func (s *AdapterSet) Keys() []string {
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys
}

// Get returns the adapter registered under key.
func (s *AdapterSet) Get(key string) (*Adapter, bool) {
	a, ok := s.byKey[key]
	return a, ok
}

// Select returns the adapter for key, falling back to the first registered
// adapter when key is empty or unknown. The returned adapter's Key is the
// one actually selected.
func (s *AdapterSet) Select(key string) *Adapter {
	if a, ok := s.byKey[key]; ok {
		return a
	}
	return s.byKey[s.order[0]]
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	StorageRoot   string
	Adapters      []AdapterSpec
	CacheCapacity uint64
	Logger        *zap.Logger
}

// Registry maps principals to their adapter sets, creating backing storage
// on first use. Entries are cached with least-recently-used eviction; an
// evicted principal is rebuilt on the same directories.
type Registry struct {
	root   string
	specs  []AdapterSpec
	cache  *ttlcache.Cache[Principal, *AdapterSet]
	group  singleflight.Group
	logger *zap.Logger
}

// NewRegistry creates a registry rooted at cfg.StorageRoot.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if len(cfg.Adapters) == 0 {
		return nil, ErrNoAdapters
	}

	seen := make(map[string]bool, len(cfg.Adapters))
	specs := make([]AdapterSpec, 0, len(cfg.Adapters))
	for _, spec := range cfg.Adapters {
		if !SafeSegmentPattern.MatchString(spec.Key) {
			return nil, fmt.Errorf("invalid adapter key %q", spec.Key)
		}
		if seen[spec.Key] {
			return nil, fmt.Errorf("duplicate adapter key %q", spec.Key)
		}
		seen[spec.Key] = true
		if spec.Dir == "" {
			spec.Dir = spec.Key
		}
		if !filepath.IsLocal(spec.Dir) {
			return nil, fmt.Errorf("adapter %q: dir %q must be relative to the principal directory", spec.Key, spec.Dir)
		}
		specs = append(specs, spec)
	}

	capacity := cfg.CacheCapacity
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := ttlcache.New[Principal, *AdapterSet](
		ttlcache.WithCapacity[Principal, *AdapterSet](capacity),
	)
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[Principal, *AdapterSet]) {
		if reason == ttlcache.EvictionReasonCapacityReached {
			logger.Debug("Evicted adapter set", logging.Principal(item.Key().String()))
		}
	})

	return &Registry{
		root:   cfg.StorageRoot,
		specs:  specs,
		cache:  cache,
		logger: logger,
	}, nil
}

// Keys returns the configured adapter keys in order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.specs))
	for i, spec := range r.specs {
		keys[i] = spec.Key
	}
	return keys
}

// Adapters returns the adapter set for p, creating it on first reference.
// Concurrent first references share a single creation.
func (r *Registry) Adapters(p Principal) (*AdapterSet, error) {
	if err := ValidatePrincipal(p); err != nil {
		return nil, err
	}

	if item := r.cache.Get(p); item != nil {
		return item.Value(), nil
	}

	v, err, _ := r.group.Do(string(p), func() (interface{}, error) {
		if item := r.cache.Get(p); item != nil {
			return item.Value(), nil
		}
		set, err := r.create(p)
		if err != nil {
			return nil, err
		}
		r.cache.Set(p, set, ttlcache.NoTTL)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AdapterSet), nil
}

// Adapter returns the adapter of p matching key, or p's first adapter when
// key does not match any.
func (r *Registry) Adapter(p Principal, key string) (*Adapter, *AdapterSet, error) {
	set, err := r.Adapters(p)
	if err != nil {
		return nil, nil, err
	}
	return set.Select(key), set, nil
}

// Len returns the number of cached principals.
func (r *Registry) Len() int {
	return r.cache.Len()
}

func (r *Registry) create(p Principal) (*AdapterSet, error) {
	set := &AdapterSet{
		principal: p,
		order:     make([]string, 0, len(r.specs)),
		byKey:     make(map[string]*Adapter, len(r.specs)),
	}
	for _, spec := range r.specs {
		a, err := NewAdapter(spec.Key, filepath.Join(r.root, string(p), spec.Dir))
		if err != nil {
			return nil, fmt.Errorf("adapter %s for %s: %w", spec.Key, p, err)
		}
		set.order = append(set.order, spec.Key)
		set.byKey[spec.Key] = a
	}

	r.logger.Info("Created adapter set",
		logging.Principal(p.String()),
		zap.Strings("adapters", set.order),
	)
	return set, nil
}
