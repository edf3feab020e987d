package cmds

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/go-go-golems/fleetctl/pkg/backup"
	"github.com/go-go-golems/fleetctl/pkg/restore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Dump every stateful store into one timestamped archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, "backup", sessionOptions{Mutating: true}, func(s *session) error {
				eng := backup.NewEngine(s.cfg.Fleet, s.caps, s.cfg.BackupDir, s.log, backup.WithClock(now))
				a, err := eng.Create(cmd.Context())
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(s.out, a.Path); err != nil {
					return err
				}
				if keep > 0 {
					removed, err := backup.Prune(s.cfg.BackupDir, keep)
					for _, p := range removed {
						s.log.Info().Str("archive", p).Msg("pruned old backup")
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "Keep only the newest N archives (0 keeps all)")
	return cmd
}

func newBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List backup archives, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, "backups", sessionOptions{Quiet: true}, func(s *session) error {
				infos, err := backup.List(s.cfg.BackupDir)
				if err != nil {
					return err
				}
				if len(infos) == 0 {
					_, err := fmt.Fprintf(s.out, "no backups in %s\n", s.cfg.BackupDir)
					return err
				}
				tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
				for _, in := range infos {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", in.Name, humanSize(in.Size), in.ModTime.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			})
		},
	}
}

func newRestoreCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Restore stateful stores from a backup archive",
		Long: "Restore stateful stores from a backup archive. Only a missing or unreadable archive " +
			"exits 1; stores that fail to load are reported and logged, unless --strict is given.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, "restore", sessionOptions{Mutating: true}, func(s *session) error {
				path := resolveArchive(args[0], s.cfg.BackupDir)
				eng := restore.NewEngine(s.cfg.Fleet, s.controller(), s.caps, s.cfg.Timings.RestoreWarmup, s.log)
				rep, err := eng.Restore(cmd.Context(), path)
				if rep != nil {
					for _, st := range rep.Stores {
						line := fmt.Sprintf("%-12s %s", st.Service, st.Outcome)
						if st.Error != "" {
							line += ": " + st.Error
						}
						_, _ = fmt.Fprintln(s.out, line)
					}
				}
				if err != nil {
					return err
				}
				failed := rep.Failed()
				if len(failed) == 0 {
					return nil
				}
				if strict {
					return errors.Errorf("restore incomplete, failed stores: %s", strings.Join(failed, ", "))
				}
				s.log.Warn().Strs("failed", failed).Msg("restore incomplete")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit 1 if any store failed to restore")
	return cmd
}

// resolveArchive falls back to the backup dir for bare archive names.
func resolveArchive(arg, backupDir string) string {
	if filepath.IsAbs(arg) {
		return arg
	}
	if _, err := os.Stat(arg); err == nil {
		return arg
	}
	candidate := filepath.Join(backupDir, arg)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return arg
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
