package cmds

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/fleetctl/pkg/status"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var errDeclined = errors.New("aborted by user")

func newCleanCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove all containers, volumes and dangling images (destroys data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := confirm(yes, cmd.InOrStdin(), cmd.ErrOrStderr(),
				"This removes every container and volume of the fleet, including store data. Continue?")
			if err != nil {
				return err
			}
			if !ok {
				return errDeclined
			}
			return withSession(cmd, "clean", sessionOptions{Mutating: true}, func(s *session) error {
				return status.Cleanup(cmd.Context(), s.compose, s.log)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func confirm(yes bool, in io.Reader, out io.Writer, question string) (bool, error) {
	if yes {
		return true, nil
	}
	if out != nil {
		_, _ = fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	ans := strings.TrimSpace(strings.ToLower(line))
	return ans == "y" || ans == "yes", nil
}
