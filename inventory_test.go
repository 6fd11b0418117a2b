package pantry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pantry/kv"
)

var testNow = time.Date(2025, 8, 7, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// failingStore reads from an inner store and refuses every write.
type failingStore struct {
	kv.Store
	err error
}

func (f failingStore) Set(context.Context, string, []byte) error { return f.err }

// flakyReads fails the next n reads and then recovers.
type flakyReads struct {
	kv.Store
	err error

	mu sync.Mutex
	n  int
}

func (f *flakyReads) failNext(n int) {
	f.mu.Lock()
	f.n = n
	f.mu.Unlock()
}

func (f *flakyReads) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	if f.n > 0 {
		f.n--
		f.mu.Unlock()
		return nil, false, f.err
	}
	f.mu.Unlock()
	return f.Store.Get(ctx, key)
}

func newTestLedger(t *testing.T, items ...StockItem) (*Ledger, *kv.Memory) {
	t.Helper()
	mem := kv.NewMemory()
	l := NewLedger(mem, WithClock(fixedClock))
	for _, it := range items {
		if _, err := l.Upsert(context.Background(), it); err != nil {
			t.Fatalf("upsert %s: %v", it.Name, err)
		}
	}
	return l, mem
}

func farinha() StockItem {
	return StockItem{ID: "farinha", Name: "Farinha", Category: "Grãos", Unit: UnitKilogram, Quantity: 10, Cost: 5, MinQuantity: 2}
}

func TestConsumeScenario(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, farinha())

	report, err := l.Consume(ctx, []ConsumeLine{{Name: "Farinha", Unit: UnitKilogram, Quantity: 3}})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !report.Complete() || len(report.Consumed) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if c := report.Consumed[0]; c.Before != 10 || c.After != 7 || c.ResolvedBy != ResolvedByName {
		t.Fatalf("unexpected consumed line %+v", c)
	}
	if it, _ := l.Get(ctx, "farinha"); it.Quantity != 7 {
		t.Fatalf("expected 7 left, got %v", it.Quantity)
	}

	if _, err := l.Consume(ctx, []ConsumeLine{{Name: "Farinha", Unit: UnitKilogram, Quantity: 20}}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if it, _ := l.Get(ctx, "farinha"); it.Quantity != 0 {
		t.Fatalf("expected clamp to 0, got %v", it.Quantity)
	}
}

func TestConsumeResolution(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		line     ConsumeLine
		want     float64
		resolved Resolution
	}{
		{"name is case-insensitive", ConsumeLine{Name: "fARINHA", Unit: UnitKilogram, Quantity: 1}, 9, ResolvedByName},
		{"unit must match exactly", ConsumeLine{Name: "Farinha", Unit: UnitGram, Quantity: 500}, 10, ResolvedNone},
		{"unit is case-sensitive", ConsumeLine{Name: "Farinha", Unit: "KG", Quantity: 1}, 10, ResolvedNone},
		{"id wins over name", ConsumeLine{StockID: "farinha", Name: "Trigo", Unit: UnitKilogram, Quantity: 2.5}, 7.5, ResolvedByID},
		{"id converts compatible units", ConsumeLine{StockID: "farinha", Name: "Farinha", Unit: UnitGram, Quantity: 250}, 9.75, ResolvedByID},
		{"unknown id falls back to name", ConsumeLine{StockID: "gone", Name: "Farinha", Unit: UnitKilogram, Quantity: 1}, 9, ResolvedByName},
		{"id with foreign unit falls back", ConsumeLine{StockID: "farinha", Name: "Farinha", Unit: UnitPiece, Quantity: 1}, 10, ResolvedNone},
		{"zero quantity is skipped", ConsumeLine{StockID: "farinha", Name: "Farinha", Unit: UnitKilogram, Quantity: 0}, 10, ResolvedNone},
		{"negative quantity never adds stock", ConsumeLine{StockID: "farinha", Name: "Farinha", Unit: UnitKilogram, Quantity: -3}, 10, ResolvedNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(t, farinha())
			report, err := l.Consume(ctx, []ConsumeLine{tt.line})
			if err != nil {
				t.Fatalf("consume: %v", err)
			}
			it, _ := l.Get(ctx, "farinha")
			if it.Quantity != tt.want {
				t.Fatalf("expected %v left, got %v", tt.want, it.Quantity)
			}
			if tt.resolved == ResolvedNone {
				if len(report.Skipped) != 1 || len(report.Consumed) != 0 {
					t.Fatalf("expected line to be skipped, got %+v", report)
				}
				return
			}
			if len(report.Consumed) != 1 || report.Consumed[0].ResolvedBy != tt.resolved {
				t.Fatalf("expected resolution %v, got %+v", tt.resolved, report)
			}
		})
	}
}

func TestConsumeFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	a := StockItem{ID: "a", Name: "Leite", Unit: UnitLiter, Quantity: 2}
	b := StockItem{ID: "b", Name: "leite", Unit: UnitLiter, Quantity: 5}
	l, _ := newTestLedger(t, a, b)

	if _, err := l.Consume(ctx, []ConsumeLine{{Name: "LEITE", Unit: UnitLiter, Quantity: 1}}); err != nil {
		t.Fatal(err)
	}
	gotA, _ := l.Get(ctx, "a")
	gotB, _ := l.Get(ctx, "b")
	if gotA.Quantity != 1 || gotB.Quantity != 5 {
		t.Fatalf("expected only the first match to change, got a=%v b=%v", gotA.Quantity, gotB.Quantity)
	}
}

func TestConsumeNeverNegative(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, farinha(), StockItem{ID: "sal", Name: "Sal", Unit: UnitGram, Quantity: 12.5})

	seq := []float64{0.3, 4.44, 7, 0.01, 100}
	for _, q := range seq {
		_, err := l.Consume(ctx, []ConsumeLine{
			{Name: "Farinha", Unit: UnitKilogram, Quantity: q},
			{Name: "sal", Unit: UnitGram, Quantity: q * 2},
		})
		if err != nil {
			t.Fatal(err)
		}
		for _, it := range l.All(ctx) {
			if it.Quantity < 0 {
				t.Fatalf("%s went negative: %v", it.Name, it.Quantity)
			}
		}
	}
}

func TestConsumeHooksAndMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	l := NewLedger(kv.NewMemory(), WithMetrics(m))
	if _, err := l.Upsert(ctx, farinha()); err != nil {
		t.Fatal(err)
	}

	var calls []StockItem
	l.OnChange(func(_ context.Context, before, after StockItem) {
		if before.Quantity != 10 {
			t.Errorf("hook saw before=%v", before.Quantity)
		}
		calls = append(calls, after)
	})

	_, err := l.Consume(ctx, []ConsumeLine{
		{Name: "Farinha", Unit: UnitKilogram, Quantity: 9},
		{Name: "Açúcar", Unit: UnitKilogram, Quantity: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 || calls[0].Quantity != 1 {
		t.Fatalf("expected one hook call with quantity 1, got %+v", calls)
	}
	if got := testutil.ToFloat64(m.ConsumeLines.WithLabelValues("matched")); got != 1 {
		t.Fatalf("matched counter: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConsumeLines.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("skipped counter: expected 1, got %v", got)
	}
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	created, err := l.Upsert(ctx, StockItem{Name: "Arroz", Unit: UnitKilogram, Quantity: 5})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	if !created.LastUpdated.Equal(testNow) {
		t.Fatalf("expected LastUpdated %v, got %v", testNow, created.LastUpdated)
	}

	created.Quantity = 8
	if _, err := l.Upsert(ctx, created); err != nil {
		t.Fatal(err)
	}
	all := l.All(ctx)
	if len(all) != 1 || all[0].Quantity != 8 {
		t.Fatalf("expected replacement in place, got %+v", all)
	}
}

func TestCategoriesFirstSeenOrder(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t,
		StockItem{ID: "1", Category: "Grãos"},
		StockItem{ID: "2", Category: "Carnes"},
		StockItem{ID: "3", Category: "Grãos"},
		StockItem{ID: "4", Category: "carnes"},
	)
	got := l.Categories(ctx)
	want := []string{"Grãos", "Carnes", "carnes"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestBelowMinimumAndAvailable(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t,
		StockItem{ID: "ovos", Name: "Ovos", Unit: UnitPiece, Quantity: 2, MinQuantity: 6},
		StockItem{ID: "sal", Name: "Sal", Unit: UnitKilogram, Quantity: 1, MinQuantity: 1},
		StockItem{ID: "oleo", Name: "Óleo", Unit: UnitLiter, Quantity: 0, MinQuantity: 1},
	)

	low := l.BelowMinimum(ctx)
	if len(low) != 2 || low[0].ID != "ovos" || low[1].ID != "oleo" {
		t.Fatalf("unexpected below-minimum list %+v", low)
	}
	avail := l.Available(ctx)
	if len(avail) != 2 || avail[0].ID != "ovos" || avail[1].ID != "sal" {
		t.Fatalf("unexpected available list %+v", avail)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		qty, min float64
		health   Health
		progress float64
	}{
		{1, 2, HealthLow, 1.0 / 6},
		{2, 2, HealthLow, 2.0 / 6},
		{4, 2, HealthAttention, 4.0 / 6},
		{7, 2, HealthGood, 1},
		{3, 0, HealthGood, 1},
	}
	for _, tt := range tests {
		it := StockItem{Quantity: tt.qty, MinQuantity: tt.min}
		if got := it.Health(); got != tt.health {
			t.Errorf("q=%v min=%v: expected %s, got %s", tt.qty, tt.min, tt.health, got)
		}
		if got := it.Progress(); got != tt.progress {
			t.Errorf("q=%v min=%v: expected progress %v, got %v", tt.qty, tt.min, tt.progress, got)
		}
	}
}

func TestLedgerMalformedData(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	_ = mem.Set(ctx, KeyStock, []byte{0xc1, 0x00})
	m := NewMetrics(nil)
	l := NewLedger(mem, WithMetrics(m))

	if got := l.All(ctx); len(got) != 0 {
		t.Fatalf("expected empty collection, got %+v", got)
	}
	if got := testutil.ToFloat64(m.PersistErrors.WithLabelValues(KeyStock)); got != 1 {
		t.Fatalf("expected one persist error, got %v", got)
	}
	report, err := l.Consume(ctx, []ConsumeLine{{Name: "Farinha", Unit: UnitKilogram, Quantity: 1}})
	if err != nil || len(report.Skipped) != 1 {
		t.Fatalf("expected skipped line without error, got %+v %v", report, err)
	}
}

func TestLedgerPersistFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	mem := kv.NewMemory()
	seed := NewLedger(mem)
	if _, err := seed.Upsert(ctx, farinha()); err != nil {
		t.Fatal(err)
	}

	l := NewLedger(failingStore{Store: mem, err: boom})
	report, err := l.Consume(ctx, []ConsumeLine{{Name: "Farinha", Unit: UnitKilogram, Quantity: 1}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
	if len(report.Consumed) != 1 {
		t.Fatalf("report should still describe the attempt, got %+v", report)
	}
	if it, _ := l.Get(ctx, "farinha"); it.Quantity != 10 {
		t.Fatalf("stored quantity should be unchanged, got %v", it.Quantity)
	}
	if _, err := l.Upsert(ctx, StockItem{Name: "Sal"}); !errors.Is(err, boom) {
		t.Fatalf("expected upsert to fail with %v, got %v", boom, err)
	}
}

func TestLedgerReadFailureKeepsStock(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	store := &flakyReads{Store: kv.NewMemory(), err: boom}
	m := NewMetrics(nil)
	l := NewLedger(store, WithClock(fixedClock), WithMetrics(m))
	for _, it := range []StockItem{farinha(), {ID: "ovo", Name: "Ovo", Unit: UnitPiece, Quantity: 6}} {
		if _, err := l.Upsert(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	store.failNext(1)
	if got := l.All(ctx); len(got) != 0 {
		t.Fatalf("a failed read should degrade to an empty view, got %+v", got)
	}
	if got := l.All(ctx); len(got) != 2 {
		t.Fatalf("expected both items after recovery, got %+v", got)
	}

	store.failNext(1)
	if _, err := l.Upsert(ctx, StockItem{Name: "Sal", Unit: UnitKilogram, Quantity: 1}); !errors.Is(err, boom) {
		t.Fatalf("expected upsert to fail with %v, got %v", boom, err)
	}
	store.failNext(1)
	report, err := l.Consume(ctx, []ConsumeLine{{StockID: "farinha", Unit: UnitKilogram, Quantity: 1}})
	if !errors.Is(err, boom) || len(report.Consumed) != 0 {
		t.Fatalf("expected consume to fail untouched, got %+v %v", report, err)
	}

	got := l.All(ctx)
	if len(got) != 2 || got[0].Quantity != 10 || got[1].Name != "Ovo" {
		t.Fatalf("stored stock must survive failed reads, got %+v", got)
	}
	if n := testutil.ToFloat64(m.PersistErrors.WithLabelValues(KeyStock)); n != 3 {
		t.Fatalf("expected three persist errors, got %v", n)
	}
}
