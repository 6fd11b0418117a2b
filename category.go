package pantry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"pantry/kv"
)

type Category struct {
	ID   string `msgpack:"id" json:"id"`
	Name string `msgpack:"name" json:"name"`
}

// DefaultCategories seed an empty catalog.
var DefaultCategories = []Category{
	{ID: "default-outros", Name: "Outros"},
	{ID: "graos", Name: "Grãos"},
	{ID: "carnes", Name: "Carnes"},
	{ID: "legumes", Name: "Legumes"},
	{ID: "laticinios", Name: "Laticínios"},
}

// CategoryCatalog is the user-editable list of stock categories.
type CategoryCatalog struct {
	mu    sync.Mutex
	opts  options
	items collection[Category]
}

func NewCategoryCatalog(store kv.Store, opts ...Option) *CategoryCatalog {
	c := &CategoryCatalog{opts: buildOptions(opts)}
	c.items = collection[Category]{store: store, key: KeyCategories, opts: &c.opts}
	return c
}

// load must be called with mu held. The seed is written the first time the
// key is found absent; a failed read never seeds.
func (c *CategoryCatalog) load(ctx context.Context) ([]Category, error) {
	ok, err := c.items.exists(ctx)
	if err != nil {
		return []Category{}, fmt.Errorf("load categories: %w", err)
	}
	if !ok {
		seed := append([]Category(nil), DefaultCategories...)
		if err := c.items.save(ctx, seed); err != nil {
			c.opts.log.Warn("seed categories: %v", err)
		}
		return seed, nil
	}
	list, err := c.items.load(ctx)
	if err != nil {
		return list, fmt.Errorf("load categories: %w", err)
	}
	return list, nil
}

// All degrades to an empty catalog when the store cannot be read.
func (c *CategoryCatalog) All(ctx context.Context) []Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, _ := c.load(ctx)
	return list
}

func (c *CategoryCatalog) Add(ctx context.Context, name string) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, invalid("name", "category name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cat := Category{ID: uuid.NewString(), Name: name}
	list, err := c.load(ctx)
	if err != nil {
		return cat, err
	}
	list = append(list, cat)
	if err := c.items.save(ctx, list); err != nil {
		return cat, fmt.Errorf("save categories: %w", err)
	}
	return cat, nil
}

func (c *CategoryCatalog) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("name", "category name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.load(ctx)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == id {
			list[i].Name = name
			if err := c.items.save(ctx, list); err != nil {
				return fmt.Errorf("save categories: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("category %s: %w", id, ErrNotFound)
}

func (c *CategoryCatalog) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.load(ctx)
	if err != nil {
		return err
	}
	kept := make([]Category, 0, len(list))
	for _, cat := range list {
		if cat.ID != id {
			kept = append(kept, cat)
		}
	}
	if err := c.items.save(ctx, kept); err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	return nil
}
