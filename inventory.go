package pantry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pantry/kv"
)

// StockItem is one pantry entry. Quantity, Cost and MinQuantity are all
// expressed in Unit, the item's canonical unit.
type StockItem struct {
	ID          string    `msgpack:"id" json:"id"`
	Name        string    `msgpack:"name" json:"name"`
	Category    string    `msgpack:"category" json:"category"`
	Quantity    float64   `msgpack:"quantity" json:"quantity"`
	Unit        string    `msgpack:"unit" json:"unit"`
	Cost        float64   `msgpack:"cost" json:"cost"`
	MinQuantity float64   `msgpack:"minQuantity" json:"minQuantity"`
	LastUpdated time.Time `msgpack:"lastUpdated" json:"lastUpdated"`
}

type Health string

const (
	HealthGood      Health = "good"
	HealthAttention Health = "attention"
	HealthLow       Health = "low"
)

// Health grades an item against its minimum: low at or under the minimum,
// attention up to twice the minimum.
func (s StockItem) Health() Health {
	switch {
	case s.Quantity <= s.MinQuantity:
		return HealthLow
	case s.Quantity <= 2*s.MinQuantity:
		return HealthAttention
	default:
		return HealthGood
	}
}

// Progress is the fill level against three times the minimum, capped at 1.
func (s StockItem) Progress() float64 {
	if s.MinQuantity == 0 {
		return 1
	}
	p := s.Quantity / (s.MinQuantity * 3)
	if p > 1 {
		return 1
	}
	return p
}

func (s StockItem) BelowMinimum() bool { return s.Quantity < s.MinQuantity }

// HookFunc runs after a consumption was persisted, once per touched item.
type HookFunc func(ctx context.Context, before, after StockItem)

// Ledger owns the stock collection. Read-modify-write cycles are serialized
// by mu; every read deserializes the whole collection from the store.
type Ledger struct {
	mu    sync.Mutex
	opts  options
	items collection[StockItem]
	hooks []HookFunc
}

func NewLedger(store kv.Store, opts ...Option) *Ledger {
	l := &Ledger{opts: buildOptions(opts)}
	l.items = collection[StockItem]{store: store, key: KeyStock, opts: &l.opts}
	return l
}

// OnChange registers a hook. Not safe to call concurrently with Consume.
func (l *Ledger) OnChange(h HookFunc) {
	l.hooks = append(l.hooks, h)
}

func (l *Ledger) All(ctx context.Context) []StockItem {
	return l.items.view(ctx)
}

func (l *Ledger) Get(ctx context.Context, id string) (StockItem, bool) {
	for _, it := range l.items.view(ctx) {
		if it.ID == id {
			return it, true
		}
	}
	return StockItem{}, false
}

// Available lists items that still have something to pick from.
func (l *Ledger) Available(ctx context.Context) []StockItem {
	var out []StockItem
	for _, it := range l.items.view(ctx) {
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return out
}

// Upsert replaces the item sharing item.ID or appends it. Quantities are
// stored as given: manual restocking may set any value.
func (l *Ledger) Upsert(ctx context.Context, item StockItem) (StockItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.LastUpdated = l.opts.now()

	stock, err := l.items.load(ctx)
	if err != nil {
		return item, fmt.Errorf("load stock: %w", err)
	}
	replaced := false
	for i := range stock {
		if stock[i].ID == item.ID {
			stock[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		stock = append(stock, item)
	}
	if err := l.items.save(ctx, stock); err != nil {
		return item, fmt.Errorf("save stock: %w", err)
	}
	l.opts.log.Debug("upsert stock %s (%s) qty=%v %s", item.ID, item.Name, item.Quantity, item.Unit)
	return item, nil
}

// Categories returns the distinct categories in first-seen order.
func (l *Ledger) Categories(ctx context.Context) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, it := range l.items.view(ctx) {
		if !seen[it.Category] {
			seen[it.Category] = true
			out = append(out, it.Category)
		}
	}
	return out
}

// BelowMinimum lists items whose quantity is under their minimum, in ledger
// order.
func (l *Ledger) BelowMinimum(ctx context.Context) []StockItem {
	var out []StockItem
	for _, it := range l.items.view(ctx) {
		if it.BelowMinimum() {
			out = append(out, it)
		}
	}
	return out
}

// Consume deducts every line from stock, clamping at zero. Lines that
// resolve to no item are reported in Skipped and otherwise ignored. Lines
// with a zero or negative quantity are skipped too: consumption never adds
// stock, restocking goes through Upsert. The returned error is only ever a
// persistence failure. When the stock could not be read nothing is
// consumed and the report is empty.
func (l *Ledger) Consume(ctx context.Context, lines []ConsumeLine) (ConsumeReport, error) {
	l.mu.Lock()

	stock, err := l.items.load(ctx)
	if err != nil {
		l.mu.Unlock()
		return ConsumeReport{}, fmt.Errorf("load stock: %w", err)
	}
	var report ConsumeReport
	var before []StockItem
	var touched []int

	for _, line := range lines {
		if line.Quantity <= 0 {
			report.Skipped = append(report.Skipped, line)
			continue
		}
		idx, by, qty := l.resolve(stock, line)
		if idx < 0 {
			l.opts.log.Debug("consume: no stock for %q (%s), skipped", line.Name, line.Unit)
			report.Skipped = append(report.Skipped, line)
			continue
		}
		prev := stock[idx]
		after := Sub(prev.Quantity, qty)
		if after < 0 {
			after = 0
		}
		stock[idx].Quantity = after
		stock[idx].LastUpdated = l.opts.now()

		report.Consumed = append(report.Consumed, ConsumedLine{
			Line:       line,
			ItemID:     prev.ID,
			ResolvedBy: by,
			Before:     prev.Quantity,
			After:      after,
		})
		before = append(before, prev)
		touched = append(touched, idx)
	}
	l.opts.metrics.consumed(len(report.Consumed), len(report.Skipped))

	if len(touched) == 0 {
		l.mu.Unlock()
		return report, nil
	}
	err = l.items.save(ctx, stock)
	l.mu.Unlock()
	if err != nil {
		return report, fmt.Errorf("save stock: %w", err)
	}
	for i, idx := range touched {
		for _, h := range l.hooks {
			h(ctx, before[i], stock[idx])
		}
	}
	return report, nil
}

// resolve maps a line onto a stock index. The stock id wins when present and
// its unit is compatible; otherwise the first item with a case-insensitive
// name and identical unit is used. qty is the line quantity in the item's
// unit.
func (l *Ledger) resolve(stock []StockItem, line ConsumeLine) (idx int, by Resolution, qty float64) {
	if line.StockID != "" {
		for i, it := range stock {
			if it.ID != line.StockID {
				continue
			}
			if line.Unit == "" || line.Unit == it.Unit {
				return i, ResolvedByID, line.Quantity
			}
			if l.opts.converter.Convertible(line.Unit, it.Unit) {
				return i, ResolvedByID, l.opts.converter.Convert(line.Quantity, line.Unit, it.Unit)
			}
			break
		}
	}
	for i, it := range stock {
		if strings.EqualFold(it.Name, line.Name) && it.Unit == line.Unit {
			return i, ResolvedByName, line.Quantity
		}
	}
	return -1, ResolvedNone, 0
}
