package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitSuccess    = 0
	exitGateFailed = 1
	exitError      = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(execute(ctx, os.Args[1:]))
}

func execute(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	var gateErr *gateFailedError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &gateErr):
		fmt.Fprintln(root.ErrOrStderr(), gateErr.Error())
		return exitGateFailed
	default:
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return exitError
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "releasegate",
		Short: "Score code changes for release risk",
		Long: `releasegate compares an original and a candidate version of source units,
scores the risk of the change and maps it to a PASS, WARN or BLOCK gate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newAssessCmd(), newPolicyCmd())
	return root
}
