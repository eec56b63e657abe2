package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-interaction-manager/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ManagerSnapshotProvider provides current manager stats snapshots.
// *core.InteractionManager implements it.
type ManagerSnapshotProvider interface {
	Stats() core.ManagerStats
}

// SnapshotPoller periodically exports manager Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	managersMu sync.RWMutex
	managers   map[string]ManagerSnapshotProvider

	active        *prom.GaugeVec
	pending       *prom.GaugeVec
	queued        *prom.GaugeVec
	handlesIssued *prom.GaugeVec
	passes        *prom.GaugeVec
	callbacksRun  *prom.GaugeVec
	closed        *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "interactions"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	active := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_active",
		Help:      "Committed active handles per manager.",
	}, []string{"manager"})
	pending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_pending",
		Help:      "Staged handle changes per manager awaiting the next pass.",
	}, []string{"manager", "kind"})
	queued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_queued",
		Help:      "Deferred callbacks queued per manager.",
	}, []string{"manager"})
	handlesIssued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_handles_issued",
		Help:      "Handles issued per manager snapshot.",
	}, []string{"manager"})
	passes := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_passes",
		Help:      "Passes run per manager snapshot.",
	}, []string{"manager"})
	callbacksRun := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_callbacks",
		Help:      "Deferred callbacks run per manager snapshot, by outcome.",
	}, []string{"manager", "outcome"})
	closed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_closed",
		Help:      "Manager closed state (1=closed, 0=open).",
	}, []string{"manager"})

	var err error
	if active, err = registerCollector(reg, active); err != nil {
		return nil, err
	}
	if pending, err = registerCollector(reg, pending); err != nil {
		return nil, err
	}
	if queued, err = registerCollector(reg, queued); err != nil {
		return nil, err
	}
	if handlesIssued, err = registerCollector(reg, handlesIssued); err != nil {
		return nil, err
	}
	if passes, err = registerCollector(reg, passes); err != nil {
		return nil, err
	}
	if callbacksRun, err = registerCollector(reg, callbacksRun); err != nil {
		return nil, err
	}
	if closed, err = registerCollector(reg, closed); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:      interval,
		managers:      make(map[string]ManagerSnapshotProvider),
		active:        active,
		pending:       pending,
		queued:        queued,
		handlesIssued: handlesIssued,
		passes:        passes,
		callbacksRun:  callbacksRun,
		closed:        closed,
	}, nil
}

// AddManager adds or replaces a manager snapshot provider by name.
func (p *SnapshotPoller) AddManager(name string, provider ManagerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "manager")
	p.managersMu.Lock()
	p.managers[name] = provider
	p.managersMu.Unlock()
}

// RemoveManager stops polling name and deletes its series.
func (p *SnapshotPoller) RemoveManager(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "manager")
	p.managersMu.Lock()
	delete(p.managers, name)
	p.managersMu.Unlock()

	labels := prom.Labels{"manager": name}
	p.active.DeletePartialMatch(labels)
	p.pending.DeletePartialMatch(labels)
	p.queued.DeletePartialMatch(labels)
	p.handlesIssued.DeletePartialMatch(labels)
	p.passes.DeletePartialMatch(labels)
	p.callbacksRun.DeletePartialMatch(labels)
	p.closed.DeletePartialMatch(labels)
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	cancel()
	<-done

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce reads every provider once and updates the gauges.
func (p *SnapshotPoller) CollectOnce() {
	p.managersMu.RLock()
	defer p.managersMu.RUnlock()

	for name, provider := range p.managers {
		stats := provider.Stats()
		p.active.WithLabelValues(name).Set(float64(stats.Active))
		p.pending.WithLabelValues(name, "activate").Set(float64(stats.PendingActivate))
		p.pending.WithLabelValues(name, "deactivate").Set(float64(stats.PendingDeactivate))
		p.queued.WithLabelValues(name).Set(float64(stats.Queued))
		p.handlesIssued.WithLabelValues(name).Set(float64(stats.HandlesIssued))
		p.passes.WithLabelValues(name).Set(float64(stats.Passes))
		p.callbacksRun.WithLabelValues(name, "ok").Set(float64(stats.CallbacksRun - stats.CallbackFailures))
		p.callbacksRun.WithLabelValues(name, "failed").Set(float64(stats.CallbackFailures))
		if stats.Closed {
			p.closed.WithLabelValues(name).Set(1)
		} else {
			p.closed.WithLabelValues(name).Set(0)
		}
	}
}
