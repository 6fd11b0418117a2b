package pantry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"pantry/kv"
	"pantry/logger"
)

func newTestKitchen(t *testing.T) (*Kitchen, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	k := New(kv.NewMemory(), WithClock(fixedClock), WithLogger(logger.New(logger.LevelNormal, &buf)))
	ctx := context.Background()
	for _, it := range []StockItem{
		farinha(),
		{ID: "ovos", Name: "Ovos", Category: "Outros", Unit: UnitPiece, Quantity: 12, MinQuantity: 6, Cost: 0.5},
	} {
		if _, err := k.Stock.Upsert(ctx, it); err != nil {
			t.Fatal(err)
		}
	}
	return k, &buf
}

func draftFromPicker(t *testing.T, k *Kitchen) Recipe {
	t.Helper()
	ctx := context.Background()
	draft := Recipe{Name: "Pão", Description: "Pão caseiro", Portions: 4, PortionSize: 100}
	picks := []struct {
		id  string
		qty float64
	}{{"farinha", 3}, {"ovos", 4}}
	for _, pk := range picks {
		item, ok := k.Stock.Get(ctx, pk.id)
		if !ok {
			t.Fatalf("stock %s missing", pk.id)
		}
		p := k.NewPicker()
		if err := p.Open(item); err != nil {
			t.Fatal(err)
		}
		p.SetQuantity(pk.qty)
		if _, err := p.Confirm(&draft); err != nil {
			t.Fatal(err)
		}
	}
	return draft
}

func TestKitchenSaveAndPrepare(t *testing.T) {
	ctx := context.Background()
	k, logs := newTestKitchen(t)
	draft := draftFromPicker(t, k)

	if got := CostPerPortion(&draft); got != 4.25 {
		t.Fatalf("expected 4.25 per portion, got %v", got)
	}

	saved, report, err := k.SaveRecipe(ctx, draft)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Complete() || len(report.Consumed) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if saved.PreparedAt == nil || !saved.PreparedAt.Equal(testNow) {
		t.Fatalf("expected PreparedAt stamped, got %v", saved.PreparedAt)
	}
	if f, _ := k.Stock.Get(ctx, "farinha"); f.Quantity != 7 {
		t.Fatalf("expected 7 kg flour left, got %v", f.Quantity)
	}

	if got, _ := k.RefreshShopping(ctx); len(got) != 0 {
		t.Fatalf("nothing should be missing yet, got %+v", got)
	}

	if _, err := k.PrepareRecipe(ctx, saved.ID); err != nil {
		t.Fatal(err)
	}
	if o, _ := k.Stock.Get(ctx, "ovos"); o.Quantity != 4 {
		t.Fatalf("expected 4 eggs left, got %v", o.Quantity)
	}
	if !strings.Contains(logs.String(), "Ovos is below minimum") {
		t.Fatalf("expected low-stock warning, logs:\n%s", logs)
	}

	needs, err := k.RefreshShopping(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(needs) != 1 || needs[0].ID != "ovos" || needs[0].Quantity != 2 || needs[0].EstimatedCost != 1 {
		t.Fatalf("unexpected needs %+v", needs)
	}
	if feed := k.Recipes.PreparedFeed(ctx, 1, 10); len(feed) != 1 || feed[0].ID != saved.ID {
		t.Fatalf("recipe missing from prepared feed: %+v", feed)
	}
}

func TestKitchenCostSnapshotIsFrozen(t *testing.T) {
	ctx := context.Background()
	k, _ := newTestKitchen(t)
	saved, _, err := k.SaveRecipe(ctx, draftFromPicker(t, k))
	if err != nil {
		t.Fatal(err)
	}
	before := TotalCost(&saved)

	f, _ := k.Stock.Get(ctx, "farinha")
	f.Cost = 50
	if _, err := k.Stock.Upsert(ctx, f); err != nil {
		t.Fatal(err)
	}
	again, _ := k.Recipes.Get(ctx, saved.ID)
	if got := TotalCost(&again); got != before {
		t.Fatalf("stock cost change leaked into saved recipe: %v != %v", got, before)
	}
}

func TestKitchenSaveReportsUnmatched(t *testing.T) {
	ctx := context.Background()
	k, _ := newTestKitchen(t)
	draft := draftFromPicker(t, k)
	draft.Ingredients = append(draft.Ingredients, IngredientLine{ID: "acucar", Name: "Açúcar", Quantity: 1, Unit: UnitKilogram, Cost: 4})

	saved, report, err := k.SaveRecipe(ctx, draft)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Name != "Açúcar" {
		t.Fatalf("expected sugar to be reported as skipped, got %+v", report)
	}
	if _, ok := k.Recipes.Get(ctx, saved.ID); !ok {
		t.Fatal("recipe should be saved despite the unmatched ingredient")
	}
}

func TestKitchenSaveRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	k, _ := newTestKitchen(t)
	draft := draftFromPicker(t, k)
	draft.Portions = 0

	if _, _, err := k.SaveRecipe(ctx, draft); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f, _ := k.Stock.Get(ctx, "farinha"); f.Quantity != 10 {
		t.Fatalf("stock must be untouched, got %v", f.Quantity)
	}
	if got := k.Recipes.List(ctx); len(got) != 0 {
		t.Fatalf("nothing should be stored, got %d", len(got))
	}
	if _, err := k.PrepareRecipe(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// recipesReadOnly refuses writes to the recipe key only.
type recipesReadOnly struct {
	kv.Store
}

func (s recipesReadOnly) Set(ctx context.Context, key string, value []byte) error {
	if key == KeyRecipes {
		return errors.New("recipes are read-only")
	}
	return s.Store.Set(ctx, key, value)
}

func TestKitchenSaveLogsPartialState(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	k := New(recipesReadOnly{kv.NewMemory()}, WithClock(fixedClock), WithLogger(logger.New(logger.LevelNormal, &buf)))
	if _, err := k.Stock.Upsert(ctx, farinha()); err != nil {
		t.Fatal(err)
	}

	_, report, err := k.SaveRecipe(ctx, bolo())
	if err == nil {
		t.Fatal("expected the recipe write to fail")
	}
	if len(report.Consumed) != 1 {
		t.Fatalf("expected the report of the deduction, got %+v", report)
	}
	if f, _ := k.Stock.Get(ctx, "farinha"); f.Quantity != 9.5 {
		t.Fatalf("deduction stays applied, got %v", f.Quantity)
	}
	if !strings.Contains(buf.String(), `recipe "Bolo simples": stock deducted`) {
		t.Fatalf("expected an error log naming the recipe, got %q", buf.String())
	}
}
