package pantry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pantry/kv"
)

// RecipeRepository keeps the recipe collection and an in-memory copy of it.
// The copy is filled on first read and replaced on every successful write.
// Invalidate drops it; Refresh reloads it from the store.
type RecipeRepository struct {
	mu     sync.Mutex
	opts   options
	items  collection[Recipe]
	cache  []Recipe
	cached bool
}

func NewRecipeRepository(store kv.Store, opts ...Option) *RecipeRepository {
	r := &RecipeRepository{opts: buildOptions(opts)}
	r.items = collection[Recipe]{store: store, key: KeyRecipes, opts: &r.opts}
	return r
}

func (r *RecipeRepository) Invalidate() {
	r.mu.Lock()
	r.cache, r.cached = nil, false
	r.mu.Unlock()
}

// Refresh reloads the collection from the store. On a failed read the cache
// stays empty and unfilled.
func (r *RecipeRepository) Refresh(ctx context.Context) ([]Recipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache, r.cached = nil, false
	cur, err := r.load(ctx)
	return cloneRecipes(cur), err
}

// load must be called with mu held. The cache is only filled by a
// successful read.
func (r *RecipeRepository) load(ctx context.Context) ([]Recipe, error) {
	if r.cached {
		return r.cache, nil
	}
	cur, err := r.items.load(ctx)
	if err != nil {
		return cur, fmt.Errorf("load recipes: %w", err)
	}
	r.cache, r.cached = cur, true
	return cur, nil
}

// view must be called with mu held.
func (r *RecipeRepository) view(ctx context.Context) []Recipe {
	cur, _ := r.load(ctx)
	return cur
}

// store must be called with mu held. A failed write leaves the cache
// invalidated so the next read sees what is actually persisted.
func (r *RecipeRepository) store(ctx context.Context, recipes []Recipe) error {
	if err := r.items.save(ctx, recipes); err != nil {
		r.cache, r.cached = nil, false
		return fmt.Errorf("save recipes: %w", err)
	}
	r.cache, r.cached = recipes, true
	return nil
}

func (r *RecipeRepository) List(ctx context.Context) []Recipe {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRecipes(r.view(ctx))
}

func (r *RecipeRepository) Get(ctx context.Context, id string) (Recipe, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rc := range r.view(ctx) {
		if rc.ID == id {
			return cloneRecipe(rc), true
		}
	}
	return Recipe{}, false
}

// Add puts recipe at the front of the collection, filling ID and CreatedAt
// when they are empty.
func (r *RecipeRepository) Add(ctx context.Context, recipe Recipe) (Recipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if recipe.ID == "" {
		recipe.ID = uuid.NewString()
	}
	if recipe.CreatedAt.IsZero() {
		recipe.CreatedAt = r.opts.now()
	}
	recipe = cloneRecipe(recipe)

	cur, err := r.load(ctx)
	if err != nil {
		return recipe, err
	}
	next := make([]Recipe, 0, len(cur)+1)
	next = append(next, recipe)
	next = append(next, cur...)
	if err := r.store(ctx, next); err != nil {
		return recipe, err
	}
	r.opts.log.Info("recipe %s (%s) added", recipe.ID, recipe.Name)
	return cloneRecipe(recipe), nil
}

func (r *RecipeRepository) Update(ctx context.Context, recipe Recipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(ctx, recipe.ID, func(rc *Recipe) { *rc = cloneRecipe(recipe) })
}

func (r *RecipeRepository) MarkPrepared(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(ctx, id, func(rc *Recipe) { rc.PreparedAt = &at })
}

func (r *RecipeRepository) update(ctx context.Context, id string, fn func(*Recipe)) error {
	cur, err := r.load(ctx)
	if err != nil {
		return err
	}
	next := cloneRecipes(cur)
	for i := range next {
		if next[i].ID == id {
			fn(&next[i])
			return r.store(ctx, next)
		}
	}
	return fmt.Errorf("recipe %s: %w", id, ErrNotFound)
}

func (r *RecipeRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.load(ctx)
	if err != nil {
		return err
	}
	next := make([]Recipe, 0, len(cur))
	for _, rc := range cur {
		if rc.ID != id {
			next = append(next, rc)
		}
	}
	if len(next) == len(cur) {
		return fmt.Errorf("recipe %s: %w", id, ErrNotFound)
	}
	return r.store(ctx, next)
}

// Search matches term case-insensitively against name, description and
// ingredient names.
func (r *RecipeRepository) Search(ctx context.Context, term string) []Recipe {
	term = strings.ToLower(term)
	var out []Recipe
	for _, rc := range r.List(ctx) {
		if matchRecipe(rc, term) {
			out = append(out, rc)
		}
	}
	return out
}

func matchRecipe(rc Recipe, term string) bool {
	if strings.Contains(strings.ToLower(rc.Name), term) ||
		strings.Contains(strings.ToLower(rc.Description), term) {
		return true
	}
	for _, in := range rc.Ingredients {
		if strings.Contains(strings.ToLower(in.Name), term) {
			return true
		}
	}
	return false
}

// PreparedFeed pages through prepared recipes, most recently prepared first.
// Pages start at 1.
func (r *RecipeRepository) PreparedFeed(ctx context.Context, page, size int) []Recipe {
	if page < 1 || size < 1 {
		return nil
	}
	var prepared []Recipe
	for _, rc := range r.List(ctx) {
		if rc.Prepared() {
			prepared = append(prepared, rc)
		}
	}
	sort.SliceStable(prepared, func(i, j int) bool {
		return prepared[i].PreparedAt.After(*prepared[j].PreparedAt)
	})
	start := (page - 1) * size
	if start >= len(prepared) {
		return nil
	}
	end := start + size
	if end > len(prepared) {
		end = len(prepared)
	}
	return prepared[start:end]
}

func cloneRecipe(rc Recipe) Recipe {
	rc.Ingredients = append([]IngredientLine(nil), rc.Ingredients...)
	if rc.PreparedAt != nil {
		at := *rc.PreparedAt
		rc.PreparedAt = &at
	}
	return rc
}

func cloneRecipes(in []Recipe) []Recipe {
	out := make([]Recipe, len(in))
	for i, rc := range in {
		out[i] = cloneRecipe(rc)
	}
	return out
}
