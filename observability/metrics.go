package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"vaultcore/core/types"
	"vaultcore/native/vault"
)

type vaultMetrics struct {
	events      *prometheus.CounterVec
	deposited   prometheus.Counter
	withdrawn   prometheus.Counter
	gains       prometheus.Counter
	losses      prometheus.Counter
	feeShares   prometheus.Counter
	totalAssets prometheus.Gauge
	totalIdle   prometheus.Gauge
	totalDebt   prometheus.Gauge
}

var (
	vaultMetricsOnce sync.Once
	vaultRegistry    *vaultMetrics
)

// Vault returns the metrics registry tracking vault accounting events.
func Vault() *vaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &vaultMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of emitted vault events segmented by type.",
			}, []string{"type"}),
			deposited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "flows",
				Name:      "deposited_assets_total",
				Help:      "Cumulative assets deposited, in the asset's smallest unit.",
			}),
			withdrawn: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "flows",
				Name:      "withdrawn_assets_total",
				Help:      "Cumulative assets withdrawn, in the asset's smallest unit.",
			}),
			gains: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "reports",
				Name:      "gain_assets_total",
				Help:      "Cumulative reported strategy gains.",
			}),
			losses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "reports",
				Name:      "loss_assets_total",
				Help:      "Cumulative reported strategy losses.",
			}),
			feeShares: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "reports",
				Name:      "fee_shares_total",
				Help:      "Cumulative fee shares minted across reports.",
			}),
			totalAssets: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Subsystem: "accounting",
				Name:      "total_assets",
				Help:      "Current total assets under management.",
			}),
			totalIdle: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Subsystem: "accounting",
				Name:      "total_idle",
				Help:      "Current idle assets held by the vault.",
			}),
			totalDebt: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Subsystem: "accounting",
				Name:      "total_debt",
				Help:      "Current assets allocated across strategies.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.events,
			vaultRegistry.deposited,
			vaultRegistry.withdrawn,
			vaultRegistry.gains,
			vaultRegistry.losses,
			vaultRegistry.feeShares,
			vaultRegistry.totalAssets,
			vaultRegistry.totalIdle,
			vaultRegistry.totalDebt,
		)
	})
	return vaultRegistry
}

func attrFloat(ev *types.Event, key string) (float64, bool) {
	raw := ev.Attribute(key)
	if raw == "" {
		return 0, false
	}
	value, ok := new(big.Float).SetString(raw)
	if !ok {
		return 0, false
	}
	out, _ := value.Float64()
	return out, true
}

// Emit updates metrics from a vault event, making the registry usable as an
// engine event sink.
func (m *vaultMetrics) Emit(ev *types.Event) {
	if m == nil || ev == nil {
		return
	}
	m.events.WithLabelValues(ev.Type).Inc()
	switch ev.Type {
	case vault.EventTypeDeposit:
		if v, ok := attrFloat(ev, "assets"); ok {
			m.deposited.Add(v)
		}
		if v, ok := attrFloat(ev, "totalAssetsAfter"); ok {
			m.totalAssets.Set(v)
		}
	case vault.EventTypeWithdraw:
		if v, ok := attrFloat(ev, "assets"); ok {
			m.withdrawn.Add(v)
		}
		if v, ok := attrFloat(ev, "totalAssetsAfter"); ok {
			m.totalAssets.Set(v)
		}
	case vault.EventTypeStrategyReported:
		if v, ok := attrFloat(ev, "gain"); ok {
			m.gains.Add(v)
		}
		if v, ok := attrFloat(ev, "loss"); ok {
			m.losses.Add(v)
		}
		if v, ok := attrFloat(ev, "totalFeeShares"); ok {
			m.feeShares.Add(v)
		}
		if v, ok := attrFloat(ev, "totalAssetsAfter"); ok {
			m.totalAssets.Set(v)
		}
	case vault.EventTypeDebtUpdated:
		if v, ok := attrFloat(ev, "totalIdle"); ok {
			m.totalIdle.Set(v)
		}
		if v, ok := attrFloat(ev, "totalDebt"); ok {
			m.totalDebt.Set(v)
		}
	}
}

// MultiSink fans a single event out to several sinks in order.
type MultiSink []vault.EventSink

func (s MultiSink) Emit(ev *types.Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ev)
		}
	}
}
