package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/engine"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/interrupt"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/workflow"
)

// TickOptions holds flags for the tick command.
type TickOptions struct {
	*RootOptions
	Thread string // empty starts a new thread
	Resume string // operator answer to the outstanding interrupt
}

// TickResult is the outcome of one applied instruction.
type TickResult struct {
	ThreadID   string             `json:"thread_id"`
	Seq        int64              `json:"seq"`
	Route      []string           `json:"route"`
	Suppressed bool               `json:"suppressed,omitempty"`
	Task       *ir.Task           `json:"task,omitempty"`
	Interrupt  *interrupt.Request `json:"interrupt,omitempty"`
	AumUSD     float64            `json:"aum_usd"`
}

// NewTickCommand creates the tick command.
func NewTickCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TickOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tick [instruction-json]",
		Short: "Apply one instruction to a thread",
		Long: `Apply one instruction to a thread and checkpoint the result.

The instruction is a JSON object naming a command (hire, fire, cycle,
sync) with an optional clientMutationId. Use --resume to answer the
interrupt the thread is waiting on. Without --thread a new thread is
started and its id printed.

Examples:
  agentflow tick --db ./agent.db '{"command":"hire","clientMutationId":"m-1"}'
  agentflow tick --db ./agent.db --thread T --resume '{"wallet_address":"0x...","funding_amount_usd":250}'
  agentflow tick --db ./agent.db --thread T '{"command":"cycle"}' --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var instruction string
			if len(args) == 1 {
				instruction = args[0]
			}
			return runTick(opts, instruction, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Thread, "thread", "", "thread id (default: start a new thread)")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "JSON answer to the outstanding interrupt")

	return cmd
}

func runTick(opts *TickOptions, instruction string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd)

	in, err := tickInput(instruction, opts.Resume)
	if err != nil {
		return err
	}

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	threadID := opts.Thread
	if threadID == "" {
		threadID = rt.engine.NewThread()
		formatter.VerboseLog("Starting thread %s", threadID)
	}

	out, err := rt.engine.Apply(commandContext(cmd), engine.Instruction{ThreadID: threadID, Input: in})
	if err != nil {
		return tickError(formatter, opts.Format, err)
	}

	result := newTickResult(out)
	if opts.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: result})
	}
	writeTickText(cmd.OutOrStdout(), result)
	return nil
}

// tickInput builds the workflow input from the positional instruction and
// --resume. Exactly one must be given.
func tickInput(instruction, resume string) (workflow.Input, error) {
	switch {
	case instruction != "" && resume != "":
		return workflow.Input{}, NewExitError(ExitCommandError, "give an instruction or --resume, not both")
	case instruction != "":
		if !json.Valid([]byte(instruction)) {
			return workflow.Input{}, NewExitError(ExitCommandError, "instruction is not valid JSON")
		}
		return workflow.Input{Messages: []ir.Message{{Role: "user", Content: instruction}}}, nil
	case resume != "":
		if !json.Valid([]byte(resume)) {
			return workflow.Input{}, NewExitError(ExitCommandError, "--resume is not valid JSON")
		}
		return workflow.Input{Resume: json.RawMessage(resume)}, nil
	default:
		return workflow.Input{}, NewExitError(ExitCommandError, "an instruction or --resume is required")
	}
}

// tickError reports a failed tick. Unknown commands are caller errors; any
// other failure leaves the thread at its last good checkpoint.
func tickError(formatter *OutputFormatter, format string, err error) error {
	code, exit := instructionErrorCode(err)
	if format == "json" {
		if encErr := formatter.JSON(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: err.Error()},
		}); encErr != nil {
			return encErr
		}
	}
	return WrapExitError(exit, "tick failed", err)
}

func newTickResult(out engine.Outcome) TickResult {
	view := out.Result.State.Project()
	return TickResult{
		ThreadID:   out.ThreadID,
		Seq:        out.Seq,
		Route:      routeNames(out.Result.Route),
		Suppressed: out.Result.Suppressed,
		Task:       view.Task,
		Interrupt:  out.Result.Interrupt,
		AumUSD:     view.Accounting.AumUSD,
	}
}

func writeTickText(w io.Writer, r TickResult) {
	if r.Suppressed {
		fmt.Fprintf(w, "✓ %s: duplicate delivery suppressed\n", r.ThreadID)
		return
	}
	fmt.Fprintf(w, "✓ %s seq %d\n", r.ThreadID, r.Seq)
	fmt.Fprintf(w, "  route: %s\n", strings.Join(r.Route, " > "))
	if r.Task != nil {
		fmt.Fprintf(w, "  task: %s %s", r.Task.ID, r.Task.Status.State)
		if r.Task.Status.Message != "" {
			fmt.Fprintf(w, " (%s)", r.Task.Status.Message)
		}
		fmt.Fprintln(w)
	}
	if r.Interrupt != nil {
		fmt.Fprintf(w, "  waiting for %s: %s\n", r.Interrupt.Kind, r.Interrupt.Message)
	}
	fmt.Fprintf(w, "  aum: $%.2f\n", r.AumUSD)
}

func routeNames(route []workflow.Route) []string {
	names := make([]string, len(route))
	for i, r := range route {
		names[i] = string(r)
	}
	return names
}
