package pantry

import (
	"strings"
	"time"
)

// IngredientLine is one stock item used by a recipe. ID is the stock item's
// id, not a line id. Quantity and Cost are in the item's canonical Unit;
// DisplayQuantity and DisplayUnit only remember what the user picked.
type IngredientLine struct {
	ID              string    `msgpack:"id" json:"id"`
	Name            string    `msgpack:"name" json:"name"`
	Quantity        float64   `msgpack:"quantity" json:"quantity"`
	Unit            string    `msgpack:"unit" json:"unit"`
	Cost            float64   `msgpack:"cost" json:"cost"`
	CostSnapshotAt  time.Time `msgpack:"costSnapshotAt" json:"costSnapshotAt"`
	DisplayQuantity float64   `msgpack:"displayQuantity,omitempty" json:"displayQuantity,omitempty"`
	DisplayUnit     string    `msgpack:"displayUnit,omitempty" json:"displayUnit,omitempty"`
}

type Recipe struct {
	ID          string           `msgpack:"id" json:"id"`
	Name        string           `msgpack:"name" json:"name"`
	Description string           `msgpack:"description" json:"description"`
	Notes       string           `msgpack:"notes" json:"notes"`
	Preparation string           `msgpack:"preparation,omitempty" json:"preparation,omitempty"`
	PrepTime    int              `msgpack:"prepTime,omitempty" json:"prepTime,omitempty"` // minutes
	Ingredients []IngredientLine `msgpack:"ingredients" json:"ingredients"`
	Portions    int              `msgpack:"portions" json:"portions"`
	PortionSize float64          `msgpack:"portionSize" json:"portionSize"` // grams
	CreatedAt   time.Time        `msgpack:"createdAt" json:"createdAt"`
	PreparedAt  *time.Time       `msgpack:"preparedAt,omitempty" json:"preparedAt,omitempty"`
}

// Validate checks the fields a recipe needs before it can be saved.
func (r *Recipe) Validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return invalid("name", "recipe name is required")
	case strings.TrimSpace(r.Description) == "":
		return invalid("description", "recipe description is required")
	case r.Portions <= 0:
		return invalid("portions", "portions must be greater than zero")
	case r.PortionSize <= 0:
		return invalid("portionSize", "portion size must be greater than zero")
	case len(r.Ingredients) == 0:
		return invalid("ingredients", "add at least one ingredient")
	}
	return nil
}

// Line returns the index of the line for stock item id, or -1.
func (r *Recipe) Line(id string) int {
	for i := range r.Ingredients {
		if r.Ingredients[i].ID == id {
			return i
		}
	}
	return -1
}

// RemoveLine drops the line for stock item id, if any.
func (r *Recipe) RemoveLine(id string) bool {
	i := r.Line(id)
	if i < 0 {
		return false
	}
	r.Ingredients = append(r.Ingredients[:i], r.Ingredients[i+1:]...)
	return true
}

// ConsumeLines turns the ingredient list into stock consumption requests.
func (r *Recipe) ConsumeLines() []ConsumeLine {
	lines := make([]ConsumeLine, 0, len(r.Ingredients))
	for _, in := range r.Ingredients {
		lines = append(lines, ConsumeLine{
			StockID:  in.ID,
			Name:     in.Name,
			Quantity: in.Quantity,
			Unit:     in.Unit,
		})
	}
	return lines
}

func (r *Recipe) Prepared() bool { return r.PreparedAt != nil }
