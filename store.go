package pantry

import (
	"context"
	"fmt"
	"time"

	"pantry/kv"
	"pantry/logger"
)

// Keys under which each collection is persisted.
const (
	KeyStock      = "stock"
	KeyRecipes    = "recipes"
	KeyShopping   = "shoppingList"
	KeyCategories = "categories"
)

type Option func(*options)

type options struct {
	log       *logger.Logger
	codec     Codec
	metrics   *Metrics
	now       func() time.Time
	converter *UnitConverter
}

func WithLogger(log *logger.Logger) Option { return func(o *options) { o.log = log } }
func WithCodec(c Codec) Option             { return func(o *options) { o.codec = c } }
func WithMetrics(m *Metrics) Option        { return func(o *options) { o.metrics = m } }
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
func WithConverter(uc *UnitConverter) Option {
	return func(o *options) { o.converter = uc }
}

func buildOptions(opts []Option) options {
	o := options{
		log:       logger.Nop(),
		codec:     MsgpackCodec{},
		now:       time.Now,
		converter: defaultConverter,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// collection reads and writes one key holding a whole []T.
type collection[T any] struct {
	store kv.Store
	key   string
	opts  *options
}

// load reads the collection. A missing or malformed payload is read as an
// empty collection; only a failed store read is returned as an error, so
// writers never save over records they could not see.
func (c collection[T]) load(ctx context.Context) ([]T, error) {
	raw, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.opts.log.Error("read %s: %v", c.key, err)
		c.opts.metrics.persistError(c.key)
		return []T{}, fmt.Errorf("read %s: %w", c.key, err)
	}
	if !ok || len(raw) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := c.opts.codec.Unmarshal(raw, &items); err != nil {
		c.opts.log.Warn("decode %s (%s): %v", c.key, c.opts.codec.Name(), err)
		c.opts.metrics.persistError(c.key)
		return []T{}, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// view is load for readers: a failed read degrades to an empty collection.
func (c collection[T]) view(ctx context.Context) []T {
	items, _ := c.load(ctx)
	return items
}

// exists reports whether the key was ever written.
func (c collection[T]) exists(ctx context.Context) (bool, error) {
	_, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.opts.log.Error("read %s: %v", c.key, err)
		c.opts.metrics.persistError(c.key)
		return false, fmt.Errorf("read %s: %w", c.key, err)
	}
	return ok, nil
}

func (c collection[T]) save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := c.opts.codec.Marshal(items)
	if err != nil {
		c.opts.log.Error("encode %s: %v", c.key, err)
		c.opts.metrics.persistError(c.key)
		return err
	}
	if err := c.store.Set(ctx, c.key, raw); err != nil {
		c.opts.log.Error("write %s: %v", c.key, err)
		c.opts.metrics.persistError(c.key)
		return err
	}
	c.opts.log.Debug("saved %s (%d records, %d bytes)", c.key, len(items), len(raw))
	return nil
}
