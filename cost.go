package pantry

// Subtotal is the line's cost at its snapshot unit price.
func (l IngredientLine) Subtotal() float64 {
	return Mul(l.Quantity, l.Cost)
}

// TotalCost sums quantity*cost over the ingredient lines. It is recomputed
// on every call.
func TotalCost(r *Recipe) float64 {
	total := 0.0
	for _, in := range r.Ingredients {
		total = Add(total, in.Subtotal())
	}
	return total
}

// CostPerPortion divides TotalCost by the portion count, or returns the
// total when there are no portions.
func CostPerPortion(r *Recipe) float64 {
	total := TotalCost(r)
	if r.Portions <= 0 {
		return total
	}
	return Div(total, float64(r.Portions))
}
