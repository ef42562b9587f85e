// Command agentflow runs the agent workflow engine.
package main

import (
	"fmt"
	"os"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/cli"
)

func main() {
	// Flag defaults read the environment, so .env must load first.
	if err := cli.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
