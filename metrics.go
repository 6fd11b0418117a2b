package pantry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the engine's Prometheus collectors.
type Metrics struct {
	ConsumeLines   *prometheus.CounterVec
	PersistErrors  *prometheus.CounterVec
	ShoppingNeeds  prometheus.Gauge
	PickerConfirms *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConsumeLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pantry",
			Name:      "consume_lines_total",
			Help:      "Ingredient lines handed to stock consumption, by outcome.",
		}, []string{"result"}),
		PersistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pantry",
			Name:      "persist_errors_total",
			Help:      "Failed reads or writes of a persisted collection.",
		}, []string{"key"}),
		ShoppingNeeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pantry",
			Name:      "shopping_needs",
			Help:      "Records in the last generated shopping list.",
		}),
		PickerConfirms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pantry",
			Name:      "picker_confirms_total",
			Help:      "Picker confirmations, by outcome.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.ConsumeLines, m.PersistErrors, m.ShoppingNeeds, m.PickerConfirms)
	}
	return m
}

func (m *Metrics) consumed(matched, skipped int) {
	if m == nil {
		return
	}
	m.ConsumeLines.WithLabelValues("matched").Add(float64(matched))
	m.ConsumeLines.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) persistError(key string) {
	if m == nil {
		return
	}
	m.PersistErrors.WithLabelValues(key).Inc()
}

func (m *Metrics) shoppingNeeds(n int) {
	if m == nil {
		return
	}
	m.ShoppingNeeds.Set(float64(n))
}

func (m *Metrics) pickerConfirm(result string) {
	if m == nil {
		return
	}
	m.PickerConfirms.WithLabelValues(result).Inc()
}
