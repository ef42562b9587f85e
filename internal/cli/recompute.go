package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/engine"
)

// RecomputeOptions holds flags for the recompute command.
type RecomputeOptions struct {
	*RootOptions
	Thread string // optional - specific thread only

	// Now allows overriding the recompute time (for testing).
	// If nil, defaults to the current UTC time.
	Now func() time.Time
}

// RecomputeResult holds the overall recompute result.
type RecomputeResult struct {
	Threads      []engine.RecomputeReport `json:"threads"`
	TotalThreads int                      `json:"total_threads"`
	AllOK        bool                     `json:"all_ok"`
}

// NewRecomputeCommand creates the recompute command.
func NewRecomputeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecomputeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute accounting and verify it against the ledger",
		Long: `Recompute each thread's accounting from its checkpoint and verify it.

The checkpointed accounting is recomputed twice and the results must be
byte-identical. The balances are then rebuilt from the history store
alone and must agree with the checkpoint. Nothing is written.

Exit codes:
  0 - All threads verified
  1 - Verification failed (non-deterministic, drifted or ledger mismatch)
  2 - Command error (database not found, unknown thread, etc.)

Examples:
  agentflow recompute --db ./agent.db
  agentflow recompute --db ./agent.db --thread T
  agentflow recompute --db ./agent.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecompute(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Thread, "thread", "", "recompute specific thread only")

	return cmd
}

func runRecompute(opts *RecomputeOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)
	ctx := commandContext(cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Get threads to process
	var threads []string
	if opts.Thread != "" {
		threads = []string{opts.Thread}
	} else {
		threads, err = rt.store.ListThreads(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list threads", err)
		}
	}

	now := time.Now().UTC()
	if opts.Now != nil {
		now = opts.Now()
	}

	result := RecomputeResult{
		Threads:      make([]engine.RecomputeReport, 0, len(threads)),
		TotalThreads: len(threads),
		AllOK:        true,
	}
	for _, thread := range threads {
		report, err := rt.engine.Recompute(ctx, thread, now)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to recompute thread %s", thread), err)
		}
		result.Threads = append(result.Threads, report)
		if !report.OK() {
			result.AllOK = false
		}
	}

	if opts.Format == "json" {
		return outputRecomputeJSON(newFormatter(opts.RootOptions, cmd), result)
	}
	return outputRecomputeText(cmd, result, opts.Verbose)
}

// outputRecomputeJSON outputs the recompute result as JSON.
func outputRecomputeJSON(formatter *OutputFormatter, result RecomputeResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.AllOK {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeRecompute,
			Message: "accounting verification failed",
		}
	}

	if err := formatter.JSON(response); err != nil {
		return err
	}
	if !result.AllOK {
		return NewExitError(ExitFailure, "accounting verification failed")
	}
	return nil
}

// outputRecomputeText outputs the recompute result as text.
func outputRecomputeText(cmd *cobra.Command, result RecomputeResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.TotalThreads == 0 {
		fmt.Fprintln(w, "No threads found in database.")
		return nil
	}

	fmt.Fprintf(w, "Recompute Summary: %d thread(s)\n", result.TotalThreads)
	fmt.Fprintln(w)

	for _, report := range result.Threads {
		status := "✓"
		if !report.OK() {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Thread: %s (seq %d)\n", status, report.ThreadID, report.Seq)

		acct := report.Checkpointed
		if verbose {
			fmt.Fprintf(w, "  Initial allocation: $%.2f\n", acct.InitialAllocationUSD)
			fmt.Fprintf(w, "  Positions: $%.2f\n", acct.PositionsUSD)
			fmt.Fprintf(w, "  Cash: $%.2f\n", acct.CashUSD)
			fmt.Fprintf(w, "  PnL: $%.2f\n", acct.LifetimePnlUSD)
		}
		fmt.Fprintf(w, "  AUM: $%.2f, %d flow event(s), %d snapshot(s)\n",
			acct.AumUSD, len(acct.FlowLog), len(acct.NavSnapshots))

		if !report.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic recompute detected!")
		}
		if report.Drift {
			fmt.Fprintln(w, "  Warning: Stored metrics differ from their recompute")
		}
		if len(report.LedgerMismatches) > 0 {
			fmt.Fprintf(w, "  Ledger mismatch: %s\n", strings.Join(report.LedgerMismatches, ", "))
		}
		fmt.Fprintln(w)
	}

	if result.AllOK {
		fmt.Fprintln(w, "✓ All threads verified")
		return nil
	}

	fmt.Fprintln(w, "✗ Accounting verification failed")
	return NewExitError(ExitFailure, "accounting verification failed")
}
