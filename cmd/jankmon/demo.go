package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Swind/go-responsiveness/core"
	"github.com/Swind/go-responsiveness/observability/prometheus"
	"github.com/Swind/go-responsiveness/power"
)

type demoOptions struct {
	duration        time.Duration
	uiPeriod        time.Duration
	ioPeriod        time.Duration
	jankProbability float64
	maxJank         time.Duration
}

func newDemoCmd(state *cliState) *cobra.Command {
	opts := demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a synthetic UI/IO workload and report its responsiveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}
			return state.fail(runDemo(ctx, state, opts, cmd))
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0,
		"Stop after this long (0 = until interrupted)")
	cmd.Flags().DurationVar(&opts.uiPeriod, "ui-period", 20*time.Millisecond,
		"Interval between synthetic UI tasks")
	cmd.Flags().DurationVar(&opts.ioPeriod, "io-period", 50*time.Millisecond,
		"Interval between synthetic IO tasks")
	cmd.Flags().Float64Var(&opts.jankProbability, "jank-probability", 0.02,
		"Probability that a synthetic task blocks")
	cmd.Flags().DurationVar(&opts.maxJank, "max-jank", 500*time.Millisecond,
		"Longest time a blocking task runs")
	return cmd
}

// workload returns a task that occasionally blocks its thread. Each runner
// gets its own task, so the random source is never shared.
func (o demoOptions) workload(seed int64) core.Task {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + seed))
	return func(ctx context.Context) {
		if rng.Float64() < o.jankProbability {
			time.Sleep(time.Duration(rng.Int63n(int64(o.maxJank))))
		}
	}
}

func runDemo(ctx context.Context, state *cliState, opts demoOptions, cmd *cobra.Command) error {
	if opts.maxJank <= 0 || opts.uiPeriod <= 0 || opts.ioPeriod <= 0 {
		return fmt.Errorf("demo: periods and max jank must be positive")
	}

	b, err := newBackends(state.cfg, state.sentryEnabled, time.Now())
	if err != nil {
		return err
	}
	defer b.close()

	calc, err := core.NewCalculator(b.calculatorConfig(state.cfg, newSampleWriter(cmd.OutOrStdout())))
	if err != nil {
		return err
	}

	ui := core.NewSingleThreadTaskRunnerWithConfig(&core.SingleThreadTaskRunnerConfig{Name: "ui"})
	io := core.NewSingleThreadTaskRunnerWithConfig(&core.SingleThreadTaskRunnerConfig{Name: "io"})
	defer ui.Stop()
	defer io.Stop()

	watcher := core.NewWatcher(calc, nil)
	watcher.SetUp(ui, io)
	defer watcher.Destroy()

	poller, err := prometheus.NewSnapshotPoller(b.registry, state.cfg.Metrics.PollInterval)
	if err != nil {
		return err
	}
	poller.AddCalculator("browser", calc)
	poller.AddRunner("ui", ui)
	poller.AddRunner("io", io)
	poller.Start(ctx)
	defer poller.Stop()

	monitor := power.NewSuspendMonitor(watcher, nil)
	if err := monitor.Start(ctx); err != nil {
		log.Debug().Err(err).Msg("suspend detection disabled")
	}
	defer monitor.Stop()

	if addr := state.cfg.Metrics.Addr; addr != "" {
		server := &http.Server{
			Addr:    addr,
			Handler: promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{}),
		}
		go func() {
			log.Info().Str("addr", addr).Msg("serving metrics")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(sctx); err != nil {
				log.Err(err).Msg("error shutting down metrics server")
			}
		}()
	}

	uiHandle := ui.PostRepeatingTask(opts.workload(1), opts.uiPeriod)
	// IO work is requested from the UI thread and replies to it, the way a
	// browser loads a resource.
	ioWork := opts.workload(2)
	ioHandle := ui.PostRepeatingTask(func(ctx context.Context) {
		core.PostTaskAndReply(io, ioWork, func(context.Context) {}, ui)
	}, opts.ioPeriod)
	defer uiHandle.Stop()
	defer ioHandle.Stop()

	log.Info().
		Dur("measurement_interval", state.cfg.Calculator.MeasurementInterval).
		Float64("jank_probability", opts.jankProbability).
		Msg("demo workload running")
	<-ctx.Done()

	stats := calc.Stats()
	log.Info().
		Int64("windows", stats.WindowsEmitted).
		Uint64("ui_janks", stats.UIJanks).
		Uint64("io_janks", stats.IOJanks).
		Msg("demo finished")
	return nil
}
