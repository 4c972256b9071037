package manager

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// managerMetrics is owned by one Manager. Every Manager has its own set so
// several managers (and tests) can live in one process.
type managerMetrics struct {
	set         *metrics.Set
	openCalls   *metrics.Counter
	openHits    *metrics.Counter
	engineOpens *metrics.Counter
	openErrors  *metrics.Counter
	getCalls    *metrics.Counter
}

func newManagerMetrics(m *Manager) *managerMetrics {
	set := metrics.NewSet()
	mm := &managerMetrics{
		set:         set,
		openCalls:   set.NewCounter("kvenv_manager_open_calls_total"),
		openHits:    set.NewCounter("kvenv_manager_open_hits_total"),
		engineOpens: set.NewCounter("kvenv_manager_engine_opens_total"),
		openErrors:  set.NewCounter("kvenv_manager_open_errors_total"),
		getCalls:    set.NewCounter("kvenv_manager_get_calls_total"),
	}
	set.NewGauge("kvenv_manager_stores", func() float64 {
		return float64(m.Len())
	})
	return mm
}

// WriteMetrics writes the metrics of the Manager in Prometheus text format.
func (m *Manager) WriteMetrics(w io.Writer) {
	m.metrics.set.WritePrometheus(w)
}

// EngineOpens returns how often Open reached the engine.
func (m *Manager) EngineOpens() uint64 {
	return m.metrics.engineOpens.Get()
}
