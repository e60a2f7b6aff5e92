package probe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbias/solboard/internal/cluster"
)

// Report is the latest health information for the active cluster.
type Report struct {
	Cluster   cluster.Cluster `json:"cluster"`
	Status    Status          `json:"status"`
	Version   *VersionInfo    `json:"version,omitempty"`
	Error     string          `json:"error,omitempty"`
	CheckedAt *time.Time      `json:"checkedAt,omitempty"`
}

// Source provides the active cluster and change notifications.
// *cluster.Registry satisfies it.
type Source interface {
	Active() (cluster.Cluster, error)
	Subscribe(fn func(cluster.Change)) func()
}

// Monitor probes the active cluster whenever the selection changes.
// A probe for a cluster that is no longer active is canceled and its result
// is never reported.
type Monitor struct {
	prober *Prober
	source Source

	// pubMu orders report transitions with their delivery to callbacks.
	pubMu sync.Mutex

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	generation  uint64
	report      Report
	callbacks   []func(Report)
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewMonitor creates a Monitor. Call Start to begin probing.
func NewMonitor(prober *Prober, source Source) *Monitor {
	return &Monitor{
		prober: prober,
		source: source,
		ctx:    context.Background(),
		report: Report{Status: StatusUnknown},
	}
}

// OnReport registers fn to receive every report transition. Callbacks run on
// the goroutine that produced the report and must not call back into the
// Monitor.
func (m *Monitor) OnReport(fn func(Report)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Start subscribes to selection changes and probes the current active cluster.
// Probes stop when ctx is canceled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	active, err := m.source.Active()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	unsubscribe := m.source.Subscribe(m.handleChange)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	m.launch(active, false)
	return nil
}

// Stop unsubscribes from the source, cancels any in-flight probe and waits
// for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	cancel := m.cancel
	m.cancel = nil
	m.generation++
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Report returns the latest report.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

// Refresh discards the cached result for the active cluster and probes it
// again.
func (m *Monitor) Refresh() error {
	active, err := m.source.Active()
	if err != nil {
		return err
	}
	m.launch(active, true)
	return nil
}

func (m *Monitor) handleChange(change cluster.Change) {
	active, ok := activeOf(change.State)
	if !ok {
		return
	}

	m.mu.Lock()
	current := m.report.Cluster
	m.mu.Unlock()

	if sameTarget(current, active) {
		return
	}
	m.launch(active, false)
}

// launch replaces any in-flight probe with a probe of c.
func (m *Monitor) launch(c cluster.Cluster, refresh bool) {
	m.pubMu.Lock()

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.generation++
	gen := m.generation
	m.report = Report{Cluster: c, Status: StatusChecking}
	checking := m.report
	m.mu.Unlock()

	m.publish(checking)
	m.pubMu.Unlock()

	slog.Debug("probing cluster", "cluster", c.Name, "endpoint", c.Endpoint, "refresh", refresh)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		var info *VersionInfo
		var err error
		if refresh {
			info, err = m.prober.Refresh(ctx, c)
		} else {
			info, err = m.prober.Check(ctx, c)
		}

		m.pubMu.Lock()
		defer m.pubMu.Unlock()

		m.mu.Lock()
		if gen != m.generation || ctx.Err() != nil {
			m.mu.Unlock()
			slog.Debug("discarding probe result for inactive cluster", "cluster", c.Name)
			return
		}
		now := time.Now().UTC()
		report := Report{Cluster: c, CheckedAt: &now}
		if err != nil {
			report.Status = StatusUnreachable
			report.Error = err.Error()
		} else {
			report.Status = StatusHealthy
			report.Version = info
		}
		m.report = report
		m.mu.Unlock()

		if err != nil {
			slog.Warn("error connecting to cluster", "cluster", c.Name, "endpoint", c.Endpoint, "error", err)
		} else {
			slog.Info("cluster healthy", "cluster", c.Name, "solana_core", info.SolanaCore)
		}
		m.publish(report)
	}()
}

func (m *Monitor) publish(r Report) {
	m.mu.Lock()
	callbacks := make([]func(Report), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(r)
	}
}

func activeOf(s cluster.State) (cluster.Cluster, bool) {
	for _, c := range s.Clusters {
		if c.Name == s.ActiveName {
			return c, true
		}
	}
	return cluster.Cluster{}, false
}

func sameTarget(a, b cluster.Cluster) bool {
	return a.Name == b.Name && a.Network == b.Network && a.Endpoint == b.Endpoint
}
