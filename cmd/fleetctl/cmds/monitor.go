package cmds

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/fleetctl/pkg/monitor"
	"github.com/go-go-golems/fleetctl/pkg/monitor/models"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newMonitorCmd() *cobra.Command {
	var (
		refresh   time.Duration
		plain     bool
		altScreen bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live view of fleet status until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, "monitor", sessionOptions{Quiet: !plain}, func(s *session) error {
				if plain {
					return monitor.RunPlain(cmd.Context(), s.reporter(), refresh, s.out)
				}
				return runMonitorUI(cmd, s, refresh, altScreen)
			})
		},
	}
	cmd.Flags().DurationVar(&refresh, "refresh", 2*time.Second, "Refresh interval for status sampling")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print a status table per refresh instead of the interactive view")
	cmd.Flags().BoolVar(&altScreen, "alt-screen", true, "Use the terminal alternate screen buffer")
	return cmd
}

func runMonitorUI(cmd *cobra.Command, s *session, refresh time.Duration, altScreen bool) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	bus, err := monitor.NewInMemoryBus()
	if err != nil {
		return err
	}
	monitor.RegisterDomainToUITransformer(bus)

	model := models.NewRootModel(fmt.Sprintf("fleetctl monitor · %s", s.cfg.Project))
	programOptions := []tea.ProgramOption{
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithContext(ctx),
	}
	if altScreen {
		programOptions = append(programOptions, tea.WithAltScreen())
	}
	program := tea.NewProgram(model, programOptions...)
	monitor.RegisterUIForwarder(bus, program)

	watcher := &monitor.StatusWatcher{
		Project:  s.cfg.Project,
		Source:   s.reporter(),
		Interval: refresh,
		Pub:      bus.Publisher,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := bus.Run(egCtx)
		if stderrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		select {
		case <-bus.Running():
		case <-egCtx.Done():
			return nil
		}
		err := watcher.Run(egCtx)
		if stderrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		_, err := program.Run()
		cancel()
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	if err := eg.Wait(); err != nil {
		return errors.Wrap(err, "monitor")
	}
	s.log.Info().Msg("monitor closed")
	return nil
}
