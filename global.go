package responsiveness

import (
	"errors"
	"sync"

	"github.com/Swind/go-responsiveness/core"
)

// =============================================================================
// Global Watcher Helper (Singleton)
// =============================================================================

// ErrAlreadyInitialized is returned by InitGlobalWatcher when called twice.
var ErrAlreadyInitialized = errors.New("global watcher already initialized")

var (
	globalWatcher *core.Watcher
	globalUI      *core.SingleThreadTaskRunner
	globalIO      *core.SingleThreadTaskRunner
	globalMu      sync.Mutex
)

// InitGlobalWatcher creates the UI and IO threads and a watcher feeding a
// calculator built from config. A nil config uses defaults.
func InitGlobalWatcher(config *CalculatorConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalWatcher != nil {
		return ErrAlreadyInitialized
	}

	calc, err := core.NewCalculator(config)
	if err != nil {
		return err
	}

	var logger core.Logger
	if config != nil {
		logger = config.Logger
	}
	globalUI = core.NewSingleThreadTaskRunnerWithConfig(&core.SingleThreadTaskRunnerConfig{Name: "ui", Logger: logger})
	globalIO = core.NewSingleThreadTaskRunnerWithConfig(&core.SingleThreadTaskRunnerConfig{Name: "io", Logger: logger})

	globalWatcher = core.NewWatcher(calc, &core.WatcherConfig{Logger: logger})
	globalWatcher.SetUp(globalUI, globalIO)
	return nil
}

// GlobalWatcher returns the global watcher instance.
// It panics if InitGlobalWatcher has not been called.
func GlobalWatcher() *Watcher {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalWatcher == nil {
		panic("GlobalWatcher not initialized. Call InitGlobalWatcher() first.")
	}
	return globalWatcher
}

// UIThread returns the global UI runner.
// It panics if InitGlobalWatcher has not been called.
func UIThread() *SingleThreadTaskRunner {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalUI == nil {
		panic("GlobalWatcher not initialized. Call InitGlobalWatcher() first.")
	}
	return globalUI
}

// IOThread returns the global IO runner.
// It panics if InitGlobalWatcher has not been called.
func IOThread() *SingleThreadTaskRunner {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalIO == nil {
		panic("GlobalWatcher not initialized. Call InitGlobalWatcher() first.")
	}
	return globalIO
}

// ShutdownGlobalWatcher detaches the watcher and stops both threads.
// Janks of windows that have not closed yet are dropped.
func ShutdownGlobalWatcher() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalWatcher == nil {
		return
	}
	globalWatcher.Destroy()
	globalUI.Stop()
	globalIO.Stop()
	globalWatcher, globalUI, globalIO = nil, nil, nil
}
