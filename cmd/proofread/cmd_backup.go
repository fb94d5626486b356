package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/approval"
	"github.com/dfbr/choose-your-own-adventure-world/internal/backup"
	"github.com/dfbr/choose-your-own-adventure-world/internal/config"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the approval state file",
		Long: `Copy the approval state file into the backup directory
(backup.dir, default: a "backups" directory next to the state file),
then prune old backups per backup.max_count and backup.max_age.

Examples:
  proofread backup
  proofread backup list
  proofread backup restore latest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			info, err := backupState(cfg)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				if info == nil {
					return writeJSON(cmd, map[string]any{"status": "skipped", "reason": "no state file"})
				}
				return writeJSON(cmd, map[string]any{
					"status":     "created",
					"path":       info.Path,
					"size_bytes": info.Size,
				})
			}

			out := cmd.OutOrStdout()
			if info == nil {
				fmt.Fprintf(out, "No state file at %s, nothing to back up\n", cfg.StateFile)
				return nil
			}
			fmt.Fprintf(out, "Backed up %s to %s\n", cfg.StateFile, info.Path)
			return nil
		},
	}

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupRestoreCmd(),
	)
	return cmd
}

// backupState copies the state file under the configured retention policy.
// It returns nil when there is no state file yet.
func backupState(cfg *config.ProofreadConfig) (*backup.BackupInfo, error) {
	policy, err := backup.PolicyFor(cfg.Backup.MaxCount, cfg.Backup.MaxAge)
	if err != nil {
		return nil, err
	}
	info, err := backup.Backup(cfg.StateFile, cfg.BackupDir(), policy)
	if err != nil {
		return nil, fmt.Errorf("failed to back up state: %w", err)
	}
	return info, nil
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List state backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.BackupDir()

			backups, err := backup.ListBackups(dir)
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}

			if isJSON(cmd) {
				type jsonEntry struct {
					Name      string `json:"name"`
					Path      string `json:"path"`
					Size      int64  `json:"size_bytes"`
					CreatedAt string `json:"created_at"`
				}
				entries := make([]jsonEntry, 0, len(backups))
				for _, b := range backups {
					entries = append(entries, jsonEntry{
						Name:      b.Name(),
						Path:      b.Path,
						Size:      b.Size,
						CreatedAt: b.CreatedAt.Format(time.RFC3339),
					})
				}
				return writeJSON(cmd, map[string]any{
					"backups":     entries,
					"total_count": len(entries),
					"directory":   dir,
				})
			}

			out := cmd.OutOrStdout()
			if len(backups) == 0 {
				fmt.Fprintf(out, "No backups found in %s\n", dir)
				return nil
			}

			rows := make([][]string, 0, len(backups))
			for _, b := range backups {
				rows = append(rows, []string{
					b.Name(),
					b.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					strconv.FormatInt(b.Size, 10),
				})
			}
			fmt.Fprintf(out, "Backups in %s:\n", dir)
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Created", "Bytes"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <name|latest|path>",
		Short: "Replace the approval state with a backup",
		Long: `Replace the approval state file with a backup. The backup is checked
before anything is overwritten, and the current state is itself backed up
first so a restore can be undone.

Examples:
  proofread backup restore latest
  proofread backup restore state-20260101-120000.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			persister := approval.NewFilePersister(cfg.StateFile)
			if err := persister.Lock(); err != nil {
				if errors.Is(err, approval.ErrLocked) {
					return fmt.Errorf("%s is in use by another proofread session: %w", cfg.StateFile, err)
				}
				return err
			}
			defer persister.Unlock()

			source, err := backup.Resolve(cfg.BackupDir(), args[0])
			if err != nil {
				return err
			}

			policy, err := backup.PolicyFor(cfg.Backup.MaxCount, cfg.Backup.MaxAge)
			if err != nil {
				return err
			}
			// Retention runs only after the restore so it cannot prune source.
			prior, err := backup.Backup(cfg.StateFile, cfg.BackupDir(), nil)
			if err != nil {
				return fmt.Errorf("failed to back up state: %w", err)
			}

			res, err := backup.Restore(source, cfg.StateFile)
			if err != nil {
				return fmt.Errorf("failed to restore %s: %w", source, err)
			}
			if _, err := backup.ApplyRetention(cfg.BackupDir(), policy); err != nil {
				return fmt.Errorf("failed to prune backups: %w", err)
			}

			if isJSON(cmd) {
				out := map[string]any{
					"status":  "restored",
					"source":  res.Source,
					"stories": res.Stories,
					"nodes":   res.Nodes,
				}
				if prior != nil {
					out["previous_state"] = prior.Path
				}
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Restored %s (%d stories, %d nodes)\n", res.Source, res.Stories, res.Nodes)
			if prior != nil {
				fmt.Fprintf(w, "Previous state saved to %s\n", prior.Path)
			}
			return nil
		},
	}
}
