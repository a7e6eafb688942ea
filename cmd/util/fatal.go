package util

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syncbench/tdk/cmd/util/output"
	"github.com/syncbench/tdk/pkg/tdkerrors"
)

// Exit codes reported by the tdk command.
const (
	ExitFailure     = 1
	ExitBadResponse = 2
	ExitTimeout     = 3
	ExitProtocol    = 4
)

// Fatal prints err to the command's error stream and exits with the code
// for its kind. Tests replace it to observe failures.
var Fatal = exitWithError

func exitWithError(cmd *cobra.Command, err error) {
	cmd.PrintErr(output.RedStr(errorLine(err)))
	os.Exit(ExitCode(err))
}

// ExitCode classifies err: a peer answering with an error status, a wait
// that ran out of time, or a broken protocol exchange.
func ExitCode(err error) int {
	if _, ok := tdkerrors.AsBadResponse(err); ok {
		return ExitBadResponse
	}
	if _, ok := tdkerrors.AsTimeout(err); ok {
		return ExitTimeout
	}
	if tdkerrors.IsProtocolError(err) {
		return ExitProtocol
	}
	return ExitFailure
}

func errorLine(err error) string {
	msg := strings.TrimRight(err.Error(), "\n")
	if msg == "" {
		msg = "tdk failed"
	}
	return "Error: " + msg + "\n"
}
