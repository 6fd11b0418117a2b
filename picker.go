package pantry

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type PickerState int

const (
	PickerIdle PickerState = iota
	PickerPicking
)

func (s PickerState) String() string {
	if s == PickerPicking {
		return "picking"
	}
	return "idle"
}

// Picker turns a fraction of one stock item into a recipe ingredient line.
// It only reads the stock item it was opened with. A Picker belongs to a
// single editing session and is not safe for concurrent use.
type Picker struct {
	state PickerState
	item  StockItem
	unit  string  // display unit
	qty   float64 // display quantity
	max   float64 // canonical, the item's quantity when opened

	converter *UnitConverter
	metrics   *Metrics
	now       func() time.Time
}

func NewPicker(opts ...Option) *Picker {
	o := buildOptions(opts)
	return &Picker{converter: o.converter, metrics: o.metrics, now: o.now}
}

func (p *Picker) State() PickerState { return p.state }
func (p *Picker) Item() StockItem    { return p.item }
func (p *Picker) Unit() string       { return p.unit }
func (p *Picker) Quantity() float64  { return p.qty }

// Max is the available quantity expressed in the current display unit.
func (p *Picker) Max() float64 {
	if p.state != PickerPicking {
		return 0
	}
	return p.converter.ToDisplay(p.max, p.item.Unit, p.unit)
}

func (p *Picker) Step() float64 { return StepSize(p.unit) }

// Open starts picking from item. Items without stock are refused and the
// picker stays idle.
func (p *Picker) Open(item StockItem) error {
	if item.Quantity <= 0 {
		return invalid("quantity", fmt.Sprintf("%s has no stock left", item.Name))
	}
	p.state = PickerPicking
	p.item = item
	p.unit = item.Unit
	p.max = item.Quantity
	p.qty = math.Min(Round(math.Max(p.Step(), p.max*0.1)), p.max)
	return nil
}

// SelectUnit shows the quantity in another unit of the same family.
func (p *Picker) SelectUnit(unit string) error {
	if p.state != PickerPicking {
		return ErrNotPicking
	}
	if !p.converter.Convertible(unit, p.item.Unit) {
		return fmt.Errorf("%s to %s: %w", unit, p.item.Unit, ErrUnitNotConvertible)
	}
	q := p.converter.Convert(p.qty, p.unit, unit)
	p.unit = unit
	p.qty = clamp(Round(q), 0, p.Max())
	return nil
}

// Adjust moves the quantity by delta, clamped to [0, Max].
func (p *Picker) Adjust(delta float64) {
	if p.state != PickerPicking {
		return
	}
	p.qty = clamp(Add(p.qty, delta), 0, p.Max())
}

// SetQuantity replaces the quantity, clamped to [0, Max].
func (p *Picker) SetQuantity(v float64) {
	if p.state != PickerPicking {
		return
	}
	p.qty = clamp(Round(v), 0, p.Max())
}

// Increase adds one step unless that would pass Max.
func (p *Picker) Increase() {
	if p.state != PickerPicking {
		return
	}
	if q := Add(p.qty, p.Step()); q <= p.Max() {
		p.qty = q
	}
}

// Decrease removes one step unless that would go below zero.
func (p *Picker) Decrease() {
	if p.state != PickerPicking {
		return
	}
	if q := Sub(p.qty, p.Step()); q >= 0 {
		p.qty = q
	}
}

// Percentage is the share of Max currently selected, 0..100.
func (p *Picker) Percentage() int {
	m := p.Max()
	if m == 0 {
		return 0
	}
	return int(math.Round(p.qty / m * 100))
}

// Confirm writes the selection into recipe. A second pick of the same stock
// item is added to its existing line. On error the picker keeps its state
// and recipe is untouched.
func (p *Picker) Confirm(recipe *Recipe) (IngredientLine, error) {
	if p.state != PickerPicking {
		return IngredientLine{}, ErrNotPicking
	}
	if p.qty <= 0 {
		p.metrics.pickerConfirm("rejected")
		return IngredientLine{}, invalid("quantity", "select a quantity greater than zero")
	}
	if p.qty > p.Max() {
		p.metrics.pickerConfirm("rejected")
		return IngredientLine{}, fmt.Errorf("%w: %w", ErrInsufficientStock,
			invalid("quantity", "selected quantity exceeds available stock"))
	}

	canonical := decimal.NewFromFloat(p.converter.ToCanonical(p.qty, p.unit, p.item.Unit))
	if canonical.Round(DecimalPrecision).IsZero() {
		p.metrics.pickerConfirm("rejected")
		return IngredientLine{}, invalid("quantity", fmt.Sprintf("%v %s is too small to record in %s", p.qty, p.unit, p.item.Unit))
	}

	var line IngredientLine
	result := "added"
	if i := recipe.Line(p.item.ID); i >= 0 {
		existing := recipe.Ingredients[i]
		total := decimal.NewFromFloat(existing.Quantity).Add(canonical)
		if total.GreaterThan(decimal.NewFromFloat(p.item.Quantity)) {
			p.metrics.pickerConfirm("rejected")
			return IngredientLine{}, fmt.Errorf("%w: %w", ErrInsufficientStock,
				invalid("quantity", "total for this ingredient would exceed available stock"))
		}
		existing.Quantity = total.Round(DecimalPrecision).InexactFloat64()
		existing.DisplayUnit = p.unit
		existing.DisplayQuantity = Round(p.converter.ToDisplay(existing.Quantity, p.item.Unit, p.unit))
		recipe.Ingredients[i] = existing
		line = existing
		result = "merged"
	} else {
		line = IngredientLine{
			ID:              p.item.ID,
			Name:            p.item.Name,
			Quantity:        canonical.Round(DecimalPrecision).InexactFloat64(),
			Unit:            p.item.Unit,
			Cost:            p.item.Cost,
			CostSnapshotAt:  p.now(),
			DisplayQuantity: Round(p.qty),
			DisplayUnit:     p.unit,
		}
		recipe.Ingredients = append(recipe.Ingredients, line)
	}
	p.metrics.pickerConfirm(result)
	p.Cancel()
	return line, nil
}

// Cancel drops the selection and returns to idle.
func (p *Picker) Cancel() {
	p.state = PickerIdle
	p.item = StockItem{}
	p.unit = ""
	p.qty = 0
	p.max = 0
}
