package pantry

// DefaultUnitRules are the only conversions the engine knows about. Every
// other pair (mg<->g, g<->un, ...) passes through unchanged.
var DefaultUnitRules = []UnitConversionRule{
	{FromUnit: UnitKilogram, ToUnit: UnitGram, Factor: 1000},
	{FromUnit: UnitLiter, ToUnit: UnitMilliliter, Factor: 1000},
}

var defaultConverter = NewUnitConverter(DefaultUnitRules...)

const defaultStep = 0.01

// keys are lower-case; lookups fold case so "mL" and "L" find their steps.
var unitSteps = map[string]float64{
	"mg":      10,
	"g":       5,
	"kg":      0.01,
	"ml":      10,
	"l":       0.01,
	"un":      1,
	"uni":     1,
	"unidade": 1,
	"cx":      1,
	"pacote":  1,
}

// DefaultConverter returns the converter loaded with DefaultUnitRules.
func DefaultConverter() *UnitConverter { return defaultConverter }

func ToCanonical(qty float64, displayUnit, canonicalUnit string) float64 {
	return defaultConverter.ToCanonical(qty, displayUnit, canonicalUnit)
}

func ToDisplay(qty float64, canonicalUnit, displayUnit string) float64 {
	return defaultConverter.ToDisplay(qty, canonicalUnit, displayUnit)
}

func Convertible(a, b string) bool {
	return defaultConverter.Convertible(a, b)
}
