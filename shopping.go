package pantry

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"pantry/kv"
)

// ShoppingNeed is a replenishment record derived from a stock item. ID is
// the stock item's id.
type ShoppingNeed struct {
	ID            string  `msgpack:"id" json:"id"`
	Name          string  `msgpack:"name" json:"name"`
	Category      string  `msgpack:"category" json:"category"`
	Quantity      float64 `msgpack:"quantity" json:"quantity"`
	Unit          string  `msgpack:"unit" json:"unit"`
	EstimatedCost float64 `msgpack:"estimatedCost" json:"estimatedCost"`
	Purchased     bool    `msgpack:"purchased" json:"purchased"`
}

// NeedsFor emits one need per item whose minimum exceeds its quantity.
// Items without a deficit are left out.
func NeedsFor(items []StockItem) []ShoppingNeed {
	needs := []ShoppingNeed{}
	for _, it := range items {
		deficit := decimal.NewFromFloat(it.MinQuantity).Sub(decimal.NewFromFloat(it.Quantity))
		if !deficit.IsPositive() {
			continue
		}
		qty := deficit.InexactFloat64()
		needs = append(needs, ShoppingNeed{
			ID:            it.ID,
			Name:          it.Name,
			Category:      it.Category,
			Quantity:      qty,
			Unit:          it.Unit,
			EstimatedCost: Mul(qty, it.Cost),
		})
	}
	return needs
}

// ShoppingList is the persisted list produced by the last Generate.
type ShoppingList struct {
	mu    sync.Mutex
	opts  options
	items collection[ShoppingNeed]
}

func NewShoppingList(store kv.Store, opts ...Option) *ShoppingList {
	s := &ShoppingList{opts: buildOptions(opts)}
	s.items = collection[ShoppingNeed]{store: store, key: KeyShopping, opts: &s.opts}
	return s
}

// Generate replaces the stored list with the needs of items. Purchased
// flags of the previous list are not carried over.
func (s *ShoppingList) Generate(ctx context.Context, items []StockItem) ([]ShoppingNeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needs := NeedsFor(items)
	s.opts.metrics.shoppingNeeds(len(needs))
	if err := s.items.save(ctx, needs); err != nil {
		return needs, fmt.Errorf("save shopping list: %w", err)
	}
	s.opts.log.Info("shopping list generated with %d needs", len(needs))
	return needs, nil
}

func (s *ShoppingList) Items(ctx context.Context) []ShoppingNeed {
	return s.items.view(ctx)
}

// MarkPurchased flags the need for stock item id. Unknown ids are ignored.
func (s *ShoppingList) MarkPurchased(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.items.load(ctx)
	if err != nil {
		return fmt.Errorf("load shopping list: %w", err)
	}
	for i := range list {
		if list[i].ID == id {
			list[i].Purchased = true
			if err := s.items.save(ctx, list); err != nil {
				return fmt.Errorf("save shopping list: %w", err)
			}
			return nil
		}
	}
	return nil
}

// ClearPurchased drops every purchased need.
func (s *ShoppingList) ClearPurchased(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.items.load(ctx)
	if err != nil {
		return fmt.Errorf("load shopping list: %w", err)
	}
	kept := list[:0]
	for _, n := range list {
		if !n.Purchased {
			kept = append(kept, n)
		}
	}
	if err := s.items.save(ctx, kept); err != nil {
		return fmt.Errorf("save shopping list: %w", err)
	}
	return nil
}

// PendingTotal sums the estimated cost of needs not yet purchased.
func (s *ShoppingList) PendingTotal(ctx context.Context) float64 {
	total := 0.0
	for _, n := range s.items.view(ctx) {
		if !n.Purchased {
			total = Add(total, n.EstimatedCost)
		}
	}
	return total
}

func (s *ShoppingList) Categories(ctx context.Context) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, n := range s.items.view(ctx) {
		if !seen[n.Category] {
			seen[n.Category] = true
			out = append(out, n.Category)
		}
	}
	return out
}
