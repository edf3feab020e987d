package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show run state and resource usage of every service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, "status", sessionOptions{}, func(s *session) error {
				rep := s.reporter()
				if !asJSON {
					return rep.Report(cmd.Context(), s.out)
				}
				rows, err := rep.Status(cmd.Context())
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(rows, "", "  ")
				if err != nil {
					return errors.Wrap(err, "marshal status")
				}
				_, err = fmt.Fprintln(s.out, string(b))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}

func newHealthCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run one round of health checks and print HEALTHY/UNHEALTHY per service",
		Long: "Run one round of health checks. The exit code is 0 regardless of the outcome " +
			"unless --strict is given, in which case any unhealthy service exits 1.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, "health", sessionOptions{}, func(s *session) error {
				results := s.probe().CheckAll(cmd.Context(), s.cfg.Fleet.All())
				var unhealthy []string
				for _, r := range results {
					verdict := "HEALTHY"
					if !r.Healthy {
						verdict = "UNHEALTHY"
						unhealthy = append(unhealthy, r.Service)
						s.log.Warn().Str("service", r.Service).Str("error", r.Error).Msg("unhealthy")
					}
					if _, err := fmt.Fprintf(s.out, "%-12s %s\n", r.Service, verdict); err != nil {
						return err
					}
				}
				if len(unhealthy) == 0 {
					s.log.Success().Int("services", len(results)).Msg("all services healthy")
					return nil
				}
				if strict {
					return errors.Errorf("%d unhealthy: %v", len(unhealthy), unhealthy)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit 1 if any service is unhealthy")
	return cmd
}
