package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Swind/go-responsiveness/core"
	"github.com/Swind/go-responsiveness/internal/replay"
)

func newReplayCmd(state *cliState) *cobra.Command {
	var tracePath string

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Replay a JSONL completion log and print one sample per window",
		Long: `Replay reads task completions recorded as JSON lines, feeds them to a
calculator on a virtual clock and prints every emitted sample.

Each line looks like:
  {"thread":"ui","queue_ms":0,"start_ms":5,"finish_ms":250}

Use "-" or no argument to read standard input.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tracePath != "" {
				state.cfg.Trace.Path = tracePath
			}
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return state.fail(runReplay(state, path, cmd.InOrStdin(), cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&tracePath, "trace", "",
		"Write queue-and-execution janks to this Chrome trace file")
	return cmd
}

func runReplay(state *cliState, path string, stdin io.Reader, stdout io.Writer) error {
	in := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		defer f.Close()
		in = f
	}

	records, err := replay.Decode(in)
	if err != nil {
		return err
	}

	// The log's zero is the calculator's creation time.
	epoch := time.Unix(0, 0).UTC()

	b, err := newBackends(state.cfg, state.sentryEnabled, epoch)
	if err != nil {
		return err
	}
	defer b.close()

	calcConfig := b.calculatorConfig(state.cfg, newSampleWriter(stdout))
	calcConfig.Now = func() time.Time { return epoch }

	calc, err := core.NewCalculator(calcConfig)
	if err != nil {
		return err
	}
	replay.Run(calc, epoch, records)

	stats := calc.Stats()
	log.Info().
		Int("records", len(records)).
		Int64("windows", stats.WindowsEmitted).
		Int64("suspend_discards", stats.SuspendDiscards).
		Int64("rejected", calc.ContractViolations()).
		Msg("replay finished")
	return nil
}
