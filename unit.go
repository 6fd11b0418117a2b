package pantry

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	UnitMilligram  = "mg"
	UnitGram       = "g"
	UnitKilogram   = "kg"
	UnitMilliliter = "mL"
	UnitLiter      = "L"
	UnitPiece      = "un"
	UnitBox        = "cx"
	UnitPack       = "pacote"
)

type UnitConversionRule struct {
	FromUnit string
	ToUnit   string
	Factor   float64 // 1 FromUnit = Factor ToUnit
}

// UnitConverter converts between a display unit and a canonical stock unit.
// Pairs without a rule pass the quantity through unchanged.
type UnitConverter struct {
	mu    sync.RWMutex
	rules map[string]map[string]float64 // from -> to -> factor
}

func NewUnitConverter(rules ...UnitConversionRule) *UnitConverter {
	uc := &UnitConverter{rules: make(map[string]map[string]float64)}
	for _, r := range rules {
		uc.AddRule(r)
	}
	return uc
}

// AddRule registers rule and its inverse.
func (uc *UnitConverter) AddRule(rule UnitConversionRule) {
	if rule.Factor == 0 {
		return
	}
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.set(rule.FromUnit, rule.ToUnit, rule.Factor)
	uc.set(rule.ToUnit, rule.FromUnit, 1/rule.Factor)
}

func (uc *UnitConverter) set(from, to string, factor float64) {
	if uc.rules[from] == nil {
		uc.rules[from] = make(map[string]float64)
	}
	uc.rules[from][to] = factor
}

func (uc *UnitConverter) factor(from, to string) (float64, bool) {
	if from == to {
		return 1, true
	}
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	f, ok := uc.rules[from][to]
	return f, ok
}

// Convertible reports whether qty can be moved between the two units,
// identity included.
func (uc *UnitConverter) Convertible(a, b string) bool {
	_, ok := uc.factor(a, b)
	return ok
}

// Convert moves qty from one unit to another. The product is exact decimal
// arithmetic and is not rounded; callers round when they store the value.
func (uc *UnitConverter) Convert(qty float64, from, to string) float64 {
	f, ok := uc.factor(from, to)
	if !ok || f == 1 {
		return qty
	}
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(f)).InexactFloat64()
}

func (uc *UnitConverter) ToCanonical(qty float64, displayUnit, canonicalUnit string) float64 {
	return uc.Convert(qty, displayUnit, canonicalUnit)
}

func (uc *UnitConverter) ToDisplay(qty float64, canonicalUnit, displayUnit string) float64 {
	return uc.Convert(qty, canonicalUnit, displayUnit)
}

// StepSize is the increment used by quantity controls for unit.
func StepSize(unit string) float64 {
	if s, ok := unitSteps[strings.ToLower(unit)]; ok {
		return s
	}
	return defaultStep
}
