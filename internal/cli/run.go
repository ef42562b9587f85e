package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// RunLine is one JSONL instruction read by the run command. Instruction and
// Resume are mutually exclusive; an empty Thread starts a new thread.
type RunLine struct {
	Thread      string          `json:"thread"`
	Instruction json.RawMessage `json:"instruction,omitempty"`
	Resume      json.RawMessage `json:"resume,omitempty"`
}

// RunReply is written for every line read.
type RunReply struct {
	Line   int         `json:"line"`
	Result *TickResult `json:"result,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine loop reading instructions from stdin",
		Long: `Start the single-writer engine loop.

Instructions are read from stdin as JSON lines:

  {"thread":"T","instruction":{"command":"cycle","clientMutationId":"c-1"}}
  {"thread":"T","resume":{"token_address":"0x..."}}

Each line is applied in order and answered with one line on stdout.
A bad line is reported and skipped. The loop drains and exits at end of
input or on SIGINT/SIGTERM.

Example:
  agentflow run --db ./agent.db --config ./agent.yaml < instructions.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	slog.Info("database ready", "path", opts.Database, "agent", rt.profile.AgentName)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- rt.engine.Run(ctx)
	}()
	slog.Info("engine started")

	readErr := feedInstructions(ctx, rt.engine, cmd.InOrStdin(), cmd.OutOrStdout(), opts.Format)

	rt.engine.Stop()
	err = <-runErr
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	if readErr != nil {
		return WrapExitError(ExitCommandError, "failed to read instructions", readErr)
	}

	slog.Info("engine stopped gracefully")
	return nil
}

// feedInstructions submits every line of r and writes one reply per line.
// It returns when r is exhausted or ctx is cancelled.
func feedInstructions(ctx context.Context, eng *engine.Engine, r io.Reader, w io.Writer, format string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		reply := RunReply{Line: lineNo}
		out, err := submitLine(ctx, eng, raw)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			code, _ := instructionErrorCode(err)
			reply.Error = &CLIError{Code: code, Message: err.Error()}
			slog.Warn("instruction rejected", "line", lineNo, "error", err)
		default:
			result := newTickResult(out)
			reply.Result = &result
		}

		if err := writeRunReply(w, reply, format); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func submitLine(ctx context.Context, eng *engine.Engine, raw []byte) (engine.Outcome, error) {
	var line RunLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return engine.Outcome{}, NewExitError(ExitCommandError, fmt.Sprintf("malformed line: %v", err))
	}
	in, err := tickInput(string(line.Instruction), string(line.Resume))
	if err != nil {
		return engine.Outcome{}, err
	}
	thread := line.Thread
	if thread == "" {
		thread = eng.NewThread()
	}
	return eng.Submit(ctx, engine.Instruction{ThreadID: thread, Input: in})
}

func writeRunReply(w io.Writer, reply RunReply, format string) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(reply)
	}
	if reply.Error != nil {
		_, err := fmt.Fprintf(w, "✗ line %d: %s\n", reply.Line, reply.Error.Message)
		return err
	}
	writeTickText(w, *reply.Result)
	return nil
}
