package cmds

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func AddCommands(root *cobra.Command) error {
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newRestartCmd())
	root.AddCommand(newUpdateCmd())

	root.AddCommand(newStatusCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newMonitorCmd())

	root.AddCommand(newBackupCmd())
	root.AddCommand(newBackupsCmd())
	root.AddCommand(newRestoreCmd())

	root.AddCommand(newCleanCmd())
	root.AddCommand(newInitCmd())
	return nil
}

// Execute runs the command tree and maps the outcome to a process exit code.
func Execute(ctx context.Context, root *cobra.Command) (code int) {
	root.SilenceErrors = true
	root.SilenceUsage = true

	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(root.ErrOrStderr(), "fleetctl: unexpected failure: %v\n", r)
			code = 1
		}
	}()

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}

	if isUsageError(err) {
		_, _ = fmt.Fprintf(root.ErrOrStderr(), "fleetctl: %v\n", err)
		if cmd == nil {
			cmd = root
		}
		_, _ = fmt.Fprint(root.OutOrStdout(), cmd.UsageString())
		return 1
	}

	msg := "fleetctl: " + err.Error()
	var le *loggedError
	if errors.As(err, &le) && le.path != "" {
		msg += " (log: " + le.path + ")"
	}
	_, _ = fmt.Fprintln(root.ErrOrStderr(), msg)
	return 1
}

func isUsageError(err error) bool {
	s := err.Error()
	return strings.HasPrefix(s, "unknown command") ||
		strings.HasPrefix(s, "unknown flag") ||
		strings.HasPrefix(s, "unknown shorthand flag") ||
		strings.Contains(s, "arg(s), received")
}
