package cmds

import (
	"fmt"

	"github.com/go-go-golems/fleetctl/pkg/capability"
	"github.com/go-go-golems/fleetctl/pkg/config"
	"github.com/go-go-golems/fleetctl/pkg/controller"
	"github.com/go-go-golems/fleetctl/pkg/health"
	"github.com/go-go-golems/fleetctl/pkg/initializer"
	"github.com/go-go-golems/fleetctl/pkg/state"
	"github.com/go-go-golems/fleetctl/pkg/status"
	"github.com/go-go-golems/fleetctl/pkg/trigger"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Bootstrap a fresh environment: stores, schema, fleet, health and first cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			so := sessionOptions{Mutating: true, RawEnv: true}
			return withSession(cmd, "init", so, func(s *session) error {
				factory := func(cfg config.Config) initializer.Components {
					s.log.Info().Strs("env", state.SanitizedPairs(cfg.Env)).Msg("environment resolved")
					cmp := s.newCompose(cfg)
					caps := capability.NewDispatcher(cmp, cfg.Env)
					return initializer.Components{
						Controller: controller.New(cfg.Fleet, cmp, s.log),
						Schema:     caps,
						Poller:     health.NewProbe(caps, cfg.Timings.ProbeTimeout),
						Publisher:  trigger.NewCachePublisher(caps, cfg.Trigger.Service, cfg.Trigger.Command),
						Reporter:   status.NewReporter(cfg.Fleet, cmp),
					}
				}

				boot := initializer.New(s.cfg, s.compose, factory, s.log,
					initializer.WithEnviron(environ()),
					initializer.WithOutput(s.out),
				)
				rep, err := boot.Run(cmd.Context())
				if err != nil {
					return err
				}
				if n := len(rep.Warnings); n > 0 {
					_, _ = fmt.Fprintf(s.out, "\ninitialized with %d warning(s), see %s\n", n, s.log.Path())
				}
				return nil
			})
		},
	}
}
