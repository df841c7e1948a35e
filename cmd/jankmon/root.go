package main

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Swind/go-responsiveness/config"
	"github.com/Swind/go-responsiveness/internal/logutil"
)

var release string

// cliState is shared by the root command and its subcommands.
type cliState struct {
	configPath string
	debug      bool

	cfg           config.Config
	sentryEnabled bool
}

func newRootCmd() *cobra.Command {
	state := &cliState{}

	rootCmd := &cobra.Command{
		Use:   "jankmon",
		Short: "Browser-style UI/IO thread responsiveness monitor",
		Long: `jankmon measures browser thread responsiveness: every
30 seconds it reports how many 100ms slices were covered by janky tasks on
the UI and IO threads.

Examples:
  jankmon replay completions.jsonl              # Replay a recorded log
  jankmon replay --trace trace.json log.jsonl   # Also write a Chrome trace
  jankmon demo --duration 2m                    # Run a synthetic workload
  JANK_METRICS_ADDR=:9090 jankmon demo          # Serve /metrics while running`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.setUp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			state.tearDown()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&state.configPath, "config", "c", "",
		"YAML configuration file (environment variables override it)")
	rootCmd.PersistentFlags().BoolVar(&state.debug, "debug", false,
		"Enable debug logging")

	rootCmd.AddCommand(newReplayCmd(state))
	rootCmd.AddCommand(newDemoCmd(state))
	rootCmd.AddCommand(newEnvCmd())
	return rootCmd
}

func (s *cliState) setUp() error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	if s.debug {
		cfg.LogLevel = "debug"
	}
	s.cfg = cfg

	logutil.ConfigureLogger(cfg.LogLevel, cfg.LogConsole)

	if cfg.Sentry.DSN == "" {
		return nil
	}
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		EnableTracing:    true,
		Environment:      cfg.Environment,
		Release:          release,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Err(err).Msg("can't initialize sentry")
		return nil
	}
	s.sentryEnabled = true
	return nil
}

func (s *cliState) tearDown() {
	if s.sentryEnabled {
		sentry.Flush(5 * time.Second)
	}
}

// fail reports err to Sentry when enabled and returns it for cobra.
func (s *cliState) fail(err error) error {
	if err != nil && s.sentryEnabled {
		sentry.CaptureException(err)
		sentry.Flush(5 * time.Second)
	}
	return err
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the supported environment variables",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(config.Usage())
		},
	}
}
