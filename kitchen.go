package pantry

import (
	"context"
	"fmt"

	"pantry/kv"
	"pantry/logger"
)

// Kitchen ties the stock ledger, recipes, shopping list and categories to
// one store.
type Kitchen struct {
	Stock      *Ledger
	Recipes    *RecipeRepository
	Shopping   *ShoppingList
	Categories *CategoryCatalog

	opts  []Option
	built options
}

func New(store kv.Store, opts ...Option) *Kitchen {
	k := &Kitchen{
		Stock:      NewLedger(store, opts...),
		Recipes:    NewRecipeRepository(store, opts...),
		Shopping:   NewShoppingList(store, opts...),
		Categories: NewCategoryCatalog(store, opts...),
		opts:       opts,
		built:      buildOptions(opts),
	}
	k.Stock.OnChange(k.warnLow)
	return k
}

func (k *Kitchen) warnLow(_ context.Context, before, after StockItem) {
	if !before.BelowMinimum() && after.BelowMinimum() {
		k.built.log.Warn("%s is below minimum: %v %s left, minimum %v",
			after.Name, after.Quantity, after.Unit, after.MinQuantity)
	}
}

func (k *Kitchen) Logger() *logger.Logger { return k.built.log }

// NewPicker returns a picker sharing the kitchen's converter, clock and
// metrics.
func (k *Kitchen) NewPicker() *Picker {
	return NewPicker(k.opts...)
}

// SaveRecipe validates draft, deducts its ingredients from stock and stores
// it as prepared. Ingredients missing from stock are listed in the report;
// they do not fail the save. Stock is deducted first and is not restored when
// storing the recipe fails; that case is logged at error level.
func (k *Kitchen) SaveRecipe(ctx context.Context, draft Recipe) (Recipe, ConsumeReport, error) {
	if err := draft.Validate(); err != nil {
		return Recipe{}, ConsumeReport{}, err
	}
	report, err := k.Stock.Consume(ctx, draft.ConsumeLines())
	if err != nil {
		return Recipe{}, report, err
	}
	if !report.Complete() {
		k.built.log.Warn("recipe %q: %d ingredients not found in stock", draft.Name, len(report.Skipped))
	}
	now := k.built.now()
	draft.PreparedAt = &now
	saved, err := k.Recipes.Add(ctx, draft)
	if err != nil {
		k.built.log.Error("recipe %q: stock deducted (%d lines) but recipe not saved: %v",
			draft.Name, len(report.Consumed), err)
		return saved, report, err
	}
	return saved, report, nil
}

// PrepareRecipe cooks a stored recipe again.
func (k *Kitchen) PrepareRecipe(ctx context.Context, id string) (ConsumeReport, error) {
	rc, ok := k.Recipes.Get(ctx, id)
	if !ok {
		return ConsumeReport{}, fmt.Errorf("recipe %s: %w", id, ErrNotFound)
	}
	report, err := k.Stock.Consume(ctx, rc.ConsumeLines())
	if err != nil {
		return report, err
	}
	if err := k.Recipes.MarkPrepared(ctx, id, k.built.now()); err != nil {
		return report, err
	}
	return report, nil
}

// RefreshShopping regenerates the shopping list from the items below their
// minimum. The stored list is left alone when nothing is missing.
func (k *Kitchen) RefreshShopping(ctx context.Context) ([]ShoppingNeed, error) {
	low := k.Stock.BelowMinimum(ctx)
	if len(low) == 0 {
		return []ShoppingNeed{}, nil
	}
	return k.Shopping.Generate(ctx, low)
}
