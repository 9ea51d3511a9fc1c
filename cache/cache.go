package cache

import (
	"encoding/json"
	stderrors "errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/errors"
)

// Option configures a Cache.
type Option[T any] func(*Cache[T])

// WithVersion namespaces keys by producer version, so payloads written by a
// different producer are never read.
func WithVersion[T any](v string) Option[T] {
	return func(c *Cache[T]) { c.version = v }
}

// WithSchemaCheck installs a check run on every stored payload. A non-nil
// result marks the payload as written by an older schema; it is recomputed
// and stored again.
func WithSchemaCheck[T any](check func(T) error) Option[T] {
	return func(c *Cache[T]) { c.check = check }
}

// WithLogger sets the logger; the package logger is used otherwise.
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(c *Cache[T]) { c.logger = l }
}

// Stats counts lookup outcomes.
type Stats struct {
	Hits      int64
	Misses    int64
	Backfills int64
}

// Cache is a typed view over a Store.
type Cache[T any] struct {
	store   Store
	version string
	check   func(T) error
	logger  *zap.Logger

	hits, misses, backfills atomic.Int64
}

// New creates a cache over store.
func New[T any](store Store, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{store: store}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = Logger()
	}
	return c
}

func (c *Cache[T]) Store() Store { return c.store }

func (c *Cache[T]) storeKey(key string) string {
	if c.version == "" {
		return key
	}
	return c.version + "/" + key
}

// CachingLookup returns the payload stored under key, or computes, stores
// and returns it. compute runs at most once per call. An unreadable or
// outdated payload is treated as a miss. A failed write is logged and the
// computed payload is still returned.
func (c *Cache[T]) CachingLookup(key string, compute func() (T, error)) (T, error) {
	k := c.storeKey(key)

	data, ok, err := c.store.Get(k)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		ok = false
	}
	backfill := false
	if ok {
		v, err := decode[T](k, data)
		if err == nil && c.check != nil {
			err = c.check(v)
		}
		if err == nil {
			c.hits.Add(1)
			c.logger.Debug("cache hit", zap.String("key", key))
			return v, nil
		}
		if !stderrors.Is(err, errors.ErrSchemaMismatch) {
			err = errors.SchemaMismatch(k, err.Error())
		}
		backfill = true
		c.backfills.Add(1)
		c.logger.Debug("cache backfill", zap.String("key", key), zap.Error(err))
	} else {
		c.misses.Add(1)
		c.logger.Debug("cache miss", zap.String("key", key))
	}

	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.put(k, v); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Bool("backfill", backfill), zap.Error(err))
	}
	return v, nil
}

// Get returns the stored payload without computing.
func (c *Cache[T]) Get(key string) (T, bool, error) {
	var zero T
	k := c.storeKey(key)
	data, ok, err := c.store.Get(k)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := decode[T](k, data)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Put stores a payload unconditionally.
func (c *Cache[T]) Put(key string, v T) error {
	return c.put(c.storeKey(key), v)
}

// Invalidate removes the entry. A missing entry is not an error.
func (c *Cache[T]) Invalidate(key string) error {
	c.logger.Debug("cache invalidate", zap.String("key", key))
	return c.store.Delete(c.storeKey(key))
}

func (c *Cache[T]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Backfills: c.backfills.Load()}
}

func (c *Cache[T]) put(k string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "encode payload")
	}
	return c.store.Put(k, data)
}

func decode[T any](key string, data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.SchemaMismatch(key, err.Error())
	}
	return v, nil
}
