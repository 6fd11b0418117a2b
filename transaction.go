package pantry

// ConsumeLine asks the ledger to take Quantity (in Unit) of an ingredient.
// StockID is optional; lines written before ids were carried through only
// have Name and Unit.
type ConsumeLine struct {
	StockID  string  `msgpack:"stockId,omitempty" json:"stockId,omitempty"`
	Name     string  `msgpack:"name" json:"name"`
	Quantity float64 `msgpack:"quantity" json:"quantity"`
	Unit     string  `msgpack:"unit" json:"unit"`
}

type Resolution int

const (
	ResolvedNone Resolution = iota
	ResolvedByID
	ResolvedByName
)

func (r Resolution) String() string {
	switch r {
	case ResolvedByID:
		return "id"
	case ResolvedByName:
		return "name"
	default:
		return "none"
	}
}

type ConsumedLine struct {
	Line       ConsumeLine `msgpack:"line" json:"line"`
	ItemID     string      `msgpack:"itemId" json:"itemId"`
	ResolvedBy Resolution  `msgpack:"resolvedBy" json:"resolvedBy"`
	Before     float64     `msgpack:"before" json:"before"`
	After      float64     `msgpack:"after" json:"after"`
}

// ConsumeReport tells the caller which lines reached stock and which could
// not be matched to any item.
type ConsumeReport struct {
	Consumed []ConsumedLine `msgpack:"consumed" json:"consumed"`
	Skipped  []ConsumeLine  `msgpack:"skipped" json:"skipped"`
}

// Complete is true when no line was skipped.
func (r ConsumeReport) Complete() bool { return len(r.Skipped) == 0 }
