package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Thread   string
	Category string // ir.CategoryFlowLog | ir.CategoryNavSnapshots
	Limit    int    // newest N records; 0 means all
}

// HistoryResult holds the stored records of one category.
type HistoryResult struct {
	ThreadID string             `json:"thread_id"`
	Category string             `json:"category"`
	Records  []ir.HistoryRecord `json:"records"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a thread's stored ledger history",
		Long: `List the ledger entries stored for a thread, oldest first.

The history store keeps flow-log events and NAV snapshots beyond the
bounded logs carried in the checkpoint, up to the retention configured
in the agent profile.

Examples:
  agentflow history --db ./agent.db --thread T
  agentflow history --db ./agent.db --thread T --category nav-snapshots --limit 10
  agentflow history --db ./agent.db --thread T --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Thread, "thread", "", "thread id (required)")
	cmd.Flags().StringVar(&opts.Category, "category", ir.CategoryFlowLog, "history category (flow-log|nav-snapshots)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the newest N records")
	_ = cmd.MarkFlagRequired("thread")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	if opts.Category != ir.CategoryFlowLog && opts.Category != ir.CategoryNavSnapshots {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid category %q: must be %s or %s",
			opts.Category, ir.CategoryFlowLog, ir.CategoryNavSnapshots))
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	records, err := rt.store.LoadHistory(commandContext(cmd), opts.Thread, opts.Category, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load history", err)
	}

	result := HistoryResult{ThreadID: opts.Thread, Category: opts.Category, Records: records}
	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).JSON(CLIResponse{Status: "ok", Data: result})
	}
	return writeHistoryText(cmd.OutOrStdout(), result)
}

func writeHistoryText(w io.Writer, r HistoryResult) error {
	if len(r.Records) == 0 {
		fmt.Fprintf(w, "No %s records for thread %s.\n", r.Category, r.ThreadID)
		return nil
	}

	fmt.Fprintf(w, "%s for %s: %d record(s)\n", r.Category, r.ThreadID, len(r.Records))
	for _, rec := range r.Records {
		line, err := describeRecord(rec)
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		fmt.Fprintf(w, "  [%d] %s\n", rec.Seq, line)
	}
	return nil
}

// describeRecord renders one stored payload as a single line.
func describeRecord(rec ir.HistoryRecord) (string, error) {
	switch rec.Category {
	case ir.CategoryFlowLog:
		var ev ir.FlowLogEvent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s $%.2f", ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"), ev.Kind, ev.USDValue), nil
	case ir.CategoryNavSnapshots:
		var snap ir.NavSnapshot
		if err := json.Unmarshal(rec.Payload, &snap); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s nav $%.2f (%d position(s))", snap.Timestamp.Format("2006-01-02T15:04:05Z07:00"), snap.TotalUSD, len(snap.Positions)), nil
	default:
		return string(rec.Payload), nil
	}
}
