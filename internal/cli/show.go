package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Thread string
}

// ShowResult is the outward projection of one thread.
type ShowResult struct {
	ThreadID string       `json:"thread_id"`
	Seq      int64        `json:"seq"`
	View     ir.ViewState `json:"view"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the operator view of a thread",
		Long: `Show the outward projection of a thread's latest checkpoint: task
status, onboarding contract, profile, operator setup, metrics and
accounting. Execution-only state is never shown.

Examples:
  agentflow show --db ./agent.db --thread T
  agentflow show --db ./agent.db --thread T --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Thread, "thread", "", "thread id (required)")
	_ = cmd.MarkFlagRequired("thread")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	state, seq, err := rt.engine.State(commandContext(cmd), opts.Thread)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load thread", err)
	}
	if seq == 0 {
		msg := fmt.Sprintf("thread not found: %s", opts.Thread)
		if err := formatter.Error(ErrCodeNotFound, msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, msg)
	}

	result := ShowResult{ThreadID: opts.Thread, Seq: seq, View: state.Project()}
	if opts.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: result})
	}
	writeShowText(formatter, result)
	return nil
}

func writeShowText(f *OutputFormatter, r ShowResult) {
	w := f.Writer
	v := r.View

	fmt.Fprintf(w, "Thread: %s (seq %d)\n", r.ThreadID, r.Seq)
	fmt.Fprintf(w, "Agent: %s on chain %d\n", v.Profile.AgentName, v.Profile.ChainID)

	if v.Task != nil {
		fmt.Fprintf(w, "Task: %s %s", v.Task.ID, v.Task.Status.State)
		if v.Task.Status.Message != "" {
			fmt.Fprintf(w, " (%s)", v.Task.Status.Message)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Task: none")
	}

	if c := v.Onboarding; c != nil {
		fmt.Fprintf(w, "Onboarding: %s, revision %d\n", c.Status, c.Revision)
		for _, s := range c.Steps {
			marker := " "
			if s.ID == c.ActiveStepID {
				marker = ">"
			}
			fmt.Fprintf(w, " %s [%s] %s\n", marker, s.Status, s.Title)
		}
	}

	a := v.Accounting
	fmt.Fprintf(w, "AUM: $%.2f (positions $%.2f, cash $%.2f)\n", a.AumUSD, a.PositionsUSD, a.CashUSD)
	fmt.Fprintf(w, "PnL: $%.2f", a.LifetimePnlUSD)
	if a.LifetimeReturnPct != nil {
		fmt.Fprintf(w, " (%.2f%%)", *a.LifetimeReturnPct)
	}
	fmt.Fprintln(w)
	if a.APY != nil {
		fmt.Fprintf(w, "APY: %.2f%%\n", *a.APY)
	}
	if v.HaltReason != "" {
		fmt.Fprintf(w, "Halted: %s\n", v.HaltReason)
	}

	f.VerboseLog("%d transaction(s), %d flow event(s), %d snapshot(s)",
		len(v.Transactions), len(a.FlowLog), len(a.NavSnapshots))
}
