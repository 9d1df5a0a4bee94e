// Package assentctl implements the operator command line for the consent
// SDK. Every subcommand builds one client from layered configuration
// (environment, then an optional TOML profile, then flags), performs a
// single operation, and closes the client so storage and the audit trail
// are flushed before the process exits.
package assentctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
)

// Run executes one subcommand. args excludes the program name. Results go
// to out; diagnostics and flag errors go to errOut.
func Run(ctx context.Context, args []string, out, errOut io.Writer) error {
	if len(args) == 0 {
		usage(errOut)
		return errors.New("a subcommand is required")
	}

	cmd, rest := args[0], args[1:]
	var run func(context.Context, []string, io.Writer, io.Writer) error
	switch cmd {
	case "banner":
		run = runBanner
	case "get":
		run = runGet
	case "grant":
		run = runGrant
	case "revoke":
		run = runRevoke
	case "receipt":
		run = runReceipt
	case "audit":
		run = runAudit
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(errOut)
		return fmt.Errorf("unknown subcommand %q", cmd)
	}

	err := run(ctx, rest, out, errOut)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func usage(w io.Writer) {
	fmt.Fprint(w, `assentctl manages consent records through the assent SDK.

Usage:

  assentctl <command> [flags]

Commands:

  banner   report whether the subject still needs the consent banner
  get      print the subject's consent record as JSON
  grant    record a consent decision
  revoke   delete the subject's consent record
  receipt  print the subject's signed receipt, or verify one
  audit    print audit trail events from the configured sink

Run "assentctl <command> -h" for the command's flags. Configuration comes
from ASSENT_* environment variables, overlaid by an optional -profile TOML
file, with flags taking final precedence.
`)
}
