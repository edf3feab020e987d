package cmds

import (
	"context"

	"github.com/go-go-golems/fleetctl/pkg/controller"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type controlFunc func(c *controller.Controller, ctx context.Context, name string) error

func newStartCmd() *cobra.Command {
	return newControlCmd("start", "Start all services, or one with --service", (*controller.Controller).Start)
}

func newStopCmd() *cobra.Command {
	return newControlCmd("stop", "Stop all services in reverse start order, or one with --service", (*controller.Controller).Stop)
}

func newRestartCmd() *cobra.Command {
	return newControlCmd("restart", "Restart all services, or one with --service", (*controller.Controller).Restart)
}

func newControlCmd(name, short string, fn controlFunc) *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Only fleet-wide operations take the lock.
			so := sessionOptions{Mutating: service == ""}
			return withSession(cmd, name, so, func(s *session) error {
				err := fn(s.controller(), cmd.Context(), service)
				if err == nil {
					return nil
				}
				if service != "" && (name == "start" || name == "stop") {
					var sce *controller.ServiceControlError
					svc, ok := s.cfg.Fleet.Lookup(service)
					if ok && svc.Optional && errors.As(err, &sce) {
						s.log.Warn().Str("service", service).Err(err).Msgf("optional service failed to %s", name)
						return nil
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "Limit the operation to one service")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Pull newer images, rebuild and restart the fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, "update", sessionOptions{Mutating: true}, func(s *session) error {
				if err := s.controller().Update(cmd.Context()); err != nil {
					return err
				}
				s.log.Success().Msg("fleet updated")
				return nil
			})
		},
	}
}
