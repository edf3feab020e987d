package cmds

import (
	"fmt"

	"github.com/go-go-golems/fleetctl/pkg/state"
	"github.com/go-go-golems/fleetctl/pkg/status"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var (
		service string
		follow  bool
		tail    int
		since   string
		oplog   string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print or follow service logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("oplog") {
				return printOperationLog(cmd, oplog, tail)
			}
			return withSession(cmd, "logs", sessionOptions{Quiet: follow}, func(s *session) error {
				ls := status.NewLogStreamer(s.cfg.Fleet, s.compose)
				return ls.Logs(cmd.Context(), service, status.LogOptions{Follow: follow, Tail: tail, Since: since}, s.out)
			})
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "Only show logs of this service")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream logs until interrupted")
	cmd.Flags().IntVar(&tail, "tail", 100, "Number of lines to show from the end")
	cmd.Flags().StringVar(&since, "since", "", "Only logs newer than a duration (15m) or a date")
	cmd.Flags().StringVar(&oplog, "oplog", "", "Print the latest fleetctl operation log, optionally of one command")
	cmd.Flags().Lookup("oplog").NoOptDefVal = " "
	return cmd
}

// printOperationLog prints the tail of the newest operation log file.
func printOperationLog(cmd *cobra.Command, command string, tail int) error {
	opts, err := getRootOptions(cmd)
	if err != nil {
		return err
	}
	if command == " " {
		command = ""
	}
	files, err := state.OperationLogs(opts.ProjectDir, command)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Errorf("no operation logs under %s", state.LogsDir(opts.ProjectDir))
	}
	lines, err := state.TailLines(files[0], tail, 2<<20)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "==> %s <==\n", files[0])
	for _, l := range lines {
		_, _ = fmt.Fprintln(out, l)
	}
	return nil
}
