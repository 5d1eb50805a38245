// Package metrics exposes the Prometheus counters of the generate/settle loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the engine writes to. A nil *Metrics is
// valid and records nothing, which keeps tests and tools free of registries.
type Metrics struct {
	Ticks           prometheus.Counter
	TickSkips       *prometheus.CounterVec // by reason: busy | invalid_config
	OutcomesDrawn   *prometheus.CounterVec // by source: draw | override
	DrawConflicts   prometheus.Counter
	PeriodsSettled  prometheus.Counter
	WagersSettled   prometheus.Counter
	RewardsCredited prometheus.Counter
	ItemErrors      *prometheus.CounterVec // by stage: generate | settle
	WagersPlaced    prometheus.Counter
	ItemPanics      prometheus.Counter
}

// NewMetrics builds the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "periodsettle", Subsystem: "scheduler", Name: "ticks_total",
			Help: "Scheduler ticks started.",
		}),
		TickSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "periodsettle", Subsystem: "scheduler", Name: "item_skips_total",
			Help: "Items skipped for a tick.",
		}, []string{"reason"}),
		OutcomesDrawn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "periodsettle", Subsystem: "outcomes", Name: "written_total",
			Help: "Outcome records written, by source.",
		}, []string{"source"}),
		DrawConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "periodsettle", Subsystem: "outcomes", Name: "draw_conflicts_total",
			Help: "Draws that lost the insert race to another writer.",
		}),
		PeriodsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "periodsettle", Subsystem: "settlement", Name: "periods_total",
			Help: "Outcome records settled.",
		}),
		WagersSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "periodsettle", Subsystem: "settlement", Name: "wagers_total",
			Help: "Wagers whose settlement columns were written.",
		}),
		RewardsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "periodsettle", Subsystem: "settlement", Name: "credits_total",
			Help: "Ledger credits issued for winning wagers.",
		}),
		ItemErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "periodsettle", Subsystem: "scheduler", Name: "item_errors_total",
			Help: "Per-item failures, retried on the next tick.",
		}, []string{"stage"}),
		WagersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "periodsettle", Subsystem: "wagers", Name: "placed_total",
			Help: "Wagers accepted.",
		}),
		ItemPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "periodsettle", Subsystem: "scheduler", Name: "item_panics_total",
			Help: "Recovered panics inside an item's unit of work.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Ticks, m.TickSkips, m.OutcomesDrawn, m.DrawConflicts,
			m.PeriodsSettled, m.WagersSettled, m.RewardsCredited,
			m.ItemErrors, m.WagersPlaced, m.ItemPanics,
		)
	}
	return m
}

func (m *Metrics) Tick() {
	if m != nil {
		m.Ticks.Inc()
	}
}

func (m *Metrics) Skip(reason string) {
	if m != nil {
		m.TickSkips.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Drawn(source string) {
	if m != nil {
		m.OutcomesDrawn.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) DrawConflict() {
	if m != nil {
		m.DrawConflicts.Inc()
	}
}

// Settled records one committed settlement.
func (m *Metrics) Settled(wagers, credits int) {
	if m != nil {
		m.PeriodsSettled.Inc()
		m.WagersSettled.Add(float64(wagers))
		m.RewardsCredited.Add(float64(credits))
	}
}

func (m *Metrics) ItemError(stage string) {
	if m != nil {
		m.ItemErrors.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) WagerPlaced() {
	if m != nil {
		m.WagersPlaced.Inc()
	}
}

func (m *Metrics) Panic() {
	if m != nil {
		m.ItemPanics.Inc()
	}
}
