package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-responsiveness/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// RunnerSnapshotProvider provides current runner stats snapshots.
type RunnerSnapshotProvider interface {
	Stats() core.RunnerStats
}

// CalculatorSnapshotProvider provides current calculator stats snapshots.
type CalculatorSnapshotProvider interface {
	Stats() core.CalculatorStats
}

// SnapshotPoller periodically exports runner and calculator Stats() snapshots
// into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	runnersMu sync.RWMutex
	runners   map[string]RunnerSnapshotProvider

	calculatorsMu sync.RWMutex
	calculators   map[string]CalculatorSnapshotProvider

	runnerPending   *prom.GaugeVec
	runnerRunning   *prom.GaugeVec
	runnerExecuted  *prom.GaugeVec
	runnerObservers *prom.GaugeVec
	runnerClosed    *prom.GaugeVec

	pendingJanks     *prom.GaugeVec
	windowsEmitted   *prom.GaugeVec
	suspendDiscards  *prom.GaugeVec
	clockRegressions *prom.GaugeVec
	janksTotal       *prom.GaugeVec
	processSuspended *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	runnerPending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_pending",
		Help:      "Number of pending tasks per runner.",
	}, []string{"runner"})
	runnerRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_running",
		Help:      "Runner busy state (1=running a task, 0=idle).",
	}, []string{"runner"})
	runnerExecuted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_executed_total",
		Help:      "Runner executed task count snapshot.",
	}, []string{"runner"})
	runnerObservers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_observers",
		Help:      "Number of task observers per runner.",
	}, []string{"runner"})
	runnerClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_closed",
		Help:      "Runner closed state (1=closed, 0=open).",
	}, []string{"runner"})

	pendingJanks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "browser_responsiveness",
		Name:      "pending_janks",
		Help:      "Janks waiting for the next calculation.",
	}, []string{"calculator", "thread", "jank_type"})
	windowsEmitted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "browser_responsiveness",
		Name:      "windows_emitted_total",
		Help:      "Measurement windows emitted, snapshot.",
	}, []string{"calculator"})
	suspendDiscards := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "browser_responsiveness",
		Name:      "suspend_discards_total",
		Help:      "Calculations that discarded data as suspended, snapshot.",
	}, []string{"calculator"})
	clockRegressions := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "browser_responsiveness",
		Name:      "clock_regressions_total",
		Help:      "UI completions older than the latest activity, snapshot.",
	}, []string{"calculator"})
	janksTotal := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "browser_responsiveness",
		Name:      "janks_total",
		Help:      "Queue-and-execution janks recorded per thread, snapshot.",
	}, []string{"calculator", "thread"})
	processSuspended := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "browser_responsiveness",
		Name:      "process_suspended",
		Help:      "Process suspended state (1=suspended, 0=running).",
	}, []string{"calculator"})

	var err error
	if runnerPending, err = registerCollector(reg, runnerPending); err != nil {
		return nil, err
	}
	if runnerRunning, err = registerCollector(reg, runnerRunning); err != nil {
		return nil, err
	}
	if runnerExecuted, err = registerCollector(reg, runnerExecuted); err != nil {
		return nil, err
	}
	if runnerObservers, err = registerCollector(reg, runnerObservers); err != nil {
		return nil, err
	}
	if runnerClosed, err = registerCollector(reg, runnerClosed); err != nil {
		return nil, err
	}
	if pendingJanks, err = registerCollector(reg, pendingJanks); err != nil {
		return nil, err
	}
	if windowsEmitted, err = registerCollector(reg, windowsEmitted); err != nil {
		return nil, err
	}
	if suspendDiscards, err = registerCollector(reg, suspendDiscards); err != nil {
		return nil, err
	}
	if clockRegressions, err = registerCollector(reg, clockRegressions); err != nil {
		return nil, err
	}
	if janksTotal, err = registerCollector(reg, janksTotal); err != nil {
		return nil, err
	}
	if processSuspended, err = registerCollector(reg, processSuspended); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:         interval,
		runners:          make(map[string]RunnerSnapshotProvider),
		calculators:      make(map[string]CalculatorSnapshotProvider),
		runnerPending:    runnerPending,
		runnerRunning:    runnerRunning,
		runnerExecuted:   runnerExecuted,
		runnerObservers:  runnerObservers,
		runnerClosed:     runnerClosed,
		pendingJanks:     pendingJanks,
		windowsEmitted:   windowsEmitted,
		suspendDiscards:  suspendDiscards,
		clockRegressions: clockRegressions,
		janksTotal:       janksTotal,
		processSuspended: processSuspended,
	}, nil
}

// AddRunner adds or replaces a runner snapshot provider by name.
func (p *SnapshotPoller) AddRunner(name string, provider RunnerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runner")
	p.runnersMu.Lock()
	p.runners[name] = provider
	p.runnersMu.Unlock()
}

// AddCalculator adds or replaces a calculator snapshot provider by name.
func (p *SnapshotPoller) AddCalculator(name string, provider CalculatorSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "calculator")
	p.calculatorsMu.Lock()
	p.calculators[name] = provider
	p.calculatorsMu.Unlock()
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

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

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

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.runnersMu.RLock()
	for name, provider := range p.runners {
		stats := provider.Stats()
		p.runnerPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.runnerRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
		p.runnerExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.runnerObservers.WithLabelValues(name).Set(float64(stats.Observers))
		p.runnerClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.runnersMu.RUnlock()

	p.calculatorsMu.RLock()
	for name, provider := range p.calculators {
		stats := provider.Stats()
		p.pendingJanks.WithLabelValues(name, "ui", "execution").Set(float64(stats.PendingUIExecution))
		p.pendingJanks.WithLabelValues(name, "ui", "queue_and_execution").Set(float64(stats.PendingUIQueueAndExecution))
		p.pendingJanks.WithLabelValues(name, "io", "execution").Set(float64(stats.PendingIOExecution))
		p.pendingJanks.WithLabelValues(name, "io", "queue_and_execution").Set(float64(stats.PendingIOQueueAndExecution))
		p.windowsEmitted.WithLabelValues(name).Set(float64(stats.WindowsEmitted))
		p.suspendDiscards.WithLabelValues(name).Set(float64(stats.SuspendDiscards))
		p.clockRegressions.WithLabelValues(name).Set(float64(stats.ClockRegressions))
		p.janksTotal.WithLabelValues(name, "ui").Set(float64(stats.UIJanks))
		p.janksTotal.WithLabelValues(name, "io").Set(float64(stats.IOJanks))
		p.processSuspended.WithLabelValues(name).Set(boolGauge(stats.ProcessSuspended))
	}
	p.calculatorsMu.RUnlock()
}
