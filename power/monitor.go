// Package power detects host sleep and forwards it as suspend/resume
// notifications.
package power

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Swind/go-responsiveness/core"
)

// ErrUnsupported is returned by clock sources on platforms without a
// suspend-aware clock.
var ErrUnsupported = errors.New("power: suspend detection is not supported on this platform")

// PowerObserver receives suspend/resume notifications. *core.Watcher
// implements it.
type PowerObserver interface {
	OnSuspend()
	OnResume()
}

var _ PowerObserver = (*core.Watcher)(nil)

// ClockSource returns a clock that advances during sleep and one that does not.
type ClockSource interface {
	Read() (boot, mono time.Duration, err error)
}

// SystemClocks returns the platform clock source.
func SystemClocks() ClockSource { return systemClocks{} }

// MonitorConfig configures a SuspendMonitor.
type MonitorConfig struct {
	// PollInterval defaults to one second.
	PollInterval time.Duration

	// Threshold is how much further the sleep-aware clock must have moved
	// for a poll to count as a sleep. Defaults to one second.
	Threshold time.Duration

	Clocks ClockSource
	Logger core.Logger
}

// SuspendMonitor polls a ClockSource and reports every detected sleep as
// OnSuspend immediately followed by OnResume. Detection happens after the
// host woke up, so both calls arrive together.
type SuspendMonitor struct {
	observer  PowerObserver
	interval  time.Duration
	threshold time.Duration
	clocks    ClockSource
	logger    core.Logger

	lastBoot time.Duration
	lastMono time.Duration
	primed   bool
	sleeps   int

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSuspendMonitor creates a monitor feeding observer.
func NewSuspendMonitor(observer PowerObserver, config *MonitorConfig) *SuspendMonitor {
	var cfg MonitorConfig
	if config != nil {
		cfg = *config
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = time.Second
	}
	if cfg.Clocks == nil {
		cfg.Clocks = SystemClocks()
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NewDefaultLogger("suspend_monitor")
	}
	return &SuspendMonitor{
		observer:  observer,
		interval:  cfg.PollInterval,
		threshold: cfg.Threshold,
		clocks:    cfg.Clocks,
		logger:    cfg.Logger,
	}
}

// Start begins polling. It returns ErrUnsupported, without starting, when
// the clock source cannot be read.
func (m *SuspendMonitor) Start(ctx context.Context) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.running {
		return nil
	}
	if _, err := m.Poll(); err != nil {
		return err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.loop(pollCtx, m.done)
	return nil
}

// Stop stops polling; repeated calls are safe.
func (m *SuspendMonitor) Stop() {
	m.stateMu.Lock()
	if !m.running {
		m.stateMu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.running = false
	m.cancel = nil
	m.done = nil
	m.stateMu.Unlock()

	cancel()
	<-done
}

func (m *SuspendMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Poll(); err != nil {
				m.logger.Warn("cannot read clocks", core.F("error", err))
			}
		}
	}
}

// Poll reads the clocks once and reports whether a sleep was detected since
// the previous poll. The first poll only records a baseline.
// Poll is not safe for concurrent use; Start drives it from one goroutine.
func (m *SuspendMonitor) Poll() (bool, error) {
	boot, mono, err := m.clocks.Read()
	if err != nil {
		return false, err
	}

	prevBoot, prevMono, primed := m.lastBoot, m.lastMono, m.primed
	m.lastBoot, m.lastMono, m.primed = boot, mono, true
	if !primed {
		return false, nil
	}

	slept := (boot - prevBoot) - (mono - prevMono)
	if slept < m.threshold {
		return false, nil
	}

	m.sleeps++
	m.logger.Info("host sleep detected", core.F("slept", slept), core.F("count", m.sleeps))
	m.observer.OnSuspend()
	m.observer.OnResume()
	return true, nil
}
