package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/claim/ext"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/job"
	"github.com/xraph/claim/lock"
	"github.com/xraph/claim/transaction"
)

var (
	_ ext.Extension               = (*PrometheusExtension)(nil)
	_ ext.LockAcquired            = (*PrometheusExtension)(nil)
	_ ext.LockContended           = (*PrometheusExtension)(nil)
	_ ext.LockReleased            = (*PrometheusExtension)(nil)
	_ ext.LocksExpired            = (*PrometheusExtension)(nil)
	_ ext.JobTransitioned         = (*PrometheusExtension)(nil)
	_ ext.TransactionTransitioned = (*PrometheusExtension)(nil)
)

// PrometheusExtension exports claim lifecycle counters and item gauges to
// a Prometheus registry.
type PrometheusExtension struct {
	Acquired    *prometheus.CounterVec
	Contended   *prometheus.CounterVec
	Released    *prometheus.CounterVec
	Expired     *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Items       *prometheus.GaugeVec
	ActiveLocks *prometheus.GaugeVec
}

// NewPrometheusExtension creates the collectors and registers them on reg.
func NewPrometheusExtension(reg prometheus.Registerer) (*PrometheusExtension, error) {
	p := &PrometheusExtension{
		Acquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_lock_acquired_total",
			Help: "Total number of successful claims",
		}, []string{"kind"}),
		Contended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_lock_contended_total",
			Help: "Total number of claim attempts that changed nothing",
		}, []string{"kind"}),
		Released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_lock_released_total",
			Help: "Total number of explicit releases",
		}, []string{"kind", "released"}),
		Expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_lock_expired_total",
			Help: "Total number of stale locks cleared by the sweeper",
		}, []string{"kind"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_transitions_total",
			Help: "Total number of status change requests",
		}, []string{"kind", "status", "ok"}),
		Items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "claim_items",
			Help: "Number of items per kind and status at the last snapshot",
		}, []string{"kind", "status"}),
		ActiveLocks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "claim_active_locks",
			Help: "Number of held locks per kind at the last snapshot",
		}, []string{"kind", "stale"}),
	}

	for _, c := range []prometheus.Collector{p.Acquired, p.Contended, p.Released, p.Expired, p.Transitions, p.Items, p.ActiveLocks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Name implements ext.Extension.
func (p *PrometheusExtension) Name() string { return "observability-prometheus" }

// OnLockAcquired implements ext.LockAcquired.
func (p *PrometheusExtension) OnLockAcquired(_ context.Context, kind lock.Kind, _ id.ID, _ string) error {
	p.Acquired.WithLabelValues(string(kind)).Inc()
	return nil
}

// OnLockContended implements ext.LockContended.
func (p *PrometheusExtension) OnLockContended(_ context.Context, kind lock.Kind, _ id.ID, _ string) error {
	p.Contended.WithLabelValues(string(kind)).Inc()
	return nil
}

// OnLockReleased implements ext.LockReleased.
func (p *PrometheusExtension) OnLockReleased(_ context.Context, kind lock.Kind, _ id.ID, _ string, released bool) error {
	p.Released.WithLabelValues(string(kind), strconv.FormatBool(released)).Inc()
	return nil
}

// OnLocksExpired implements ext.LocksExpired.
func (p *PrometheusExtension) OnLocksExpired(_ context.Context, kind lock.Kind, count int64) error {
	p.Expired.WithLabelValues(string(kind)).Add(float64(count))
	return nil
}

// OnJobTransitioned implements ext.JobTransitioned.
func (p *PrometheusExtension) OnJobTransitioned(_ context.Context, _ id.JobID, to job.Status, _ string, ok bool) error {
	p.Transitions.WithLabelValues(string(lock.KindJob), string(to), strconv.FormatBool(ok)).Inc()
	return nil
}

// OnTransactionTransitioned implements ext.TransactionTransitioned.
func (p *PrometheusExtension) OnTransactionTransitioned(_ context.Context, _ id.TransactionID, to transaction.Status, _ string, ok bool) error {
	p.Transitions.WithLabelValues(string(lock.KindTransaction), string(to), strconv.FormatBool(ok)).Inc()
	return nil
}

// SetItems records the number of items of kind in status.
func (p *PrometheusExtension) SetItems(kind lock.Kind, status string, n int64) {
	p.Items.WithLabelValues(string(kind), status).Set(float64(n))
}

// SetActiveLocks records the number of held locks of kind, split by
// whether they are already stale.
func (p *PrometheusExtension) SetActiveLocks(kind lock.Kind, fresh, stale int) {
	p.ActiveLocks.WithLabelValues(string(kind), "false").Set(float64(fresh))
	p.ActiveLocks.WithLabelValues(string(kind), "true").Set(float64(stale))
}
