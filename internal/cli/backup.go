package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/notifly/internal/backup"
)

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Database backups (admin token required for server commands)",
	}
	cmd.AddCommand(newBackupRunCmd(a))
	cmd.AddCommand(newBackupListCmd(a))
	cmd.AddCommand(newBackupStatusCmd(a))
	cmd.AddCommand(newBackupRestoreCmd(a))
	return cmd
}

func newBackupRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Back up the server database now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			key, err := c.RunBackup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newBackupListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			objects, err := c.ListBackups(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), objects)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tCREATED")
			for _, o := range objects {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newBackupStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the backup manager state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			st, err := c.BackupStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

// restore talks to the bucket directly so it works while the server is down.
func newBackupRestoreCmd(a *app) *cobra.Command {
	var key, out string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Download and decrypt a backup into a new database file",
		Long:  "Restore reads storage settings from NOTIFLY_BACKUP_S3_* and NOTIFLY_BACKUP_PASSPHRASE. It writes a new file and never replaces an existing one; stop the server and swap files yourself.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.backupConfig()
			if cfg.Passphrase == "" {
				return errors.New("no passphrase: set NOTIFLY_BACKUP_PASSPHRASE")
			}
			mgr := backup.NewManager(cfg, nil, nil, a.logger(cmd))
			if !mgr.Enabled() {
				return errors.New("backup storage not configured: set NOTIFLY_BACKUP_S3_BUCKET and credentials")
			}
			if key == "" {
				objects, err := mgr.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(objects) == 0 {
					return errors.New("no backups found")
				}
				key = objects[0].Key
			}
			if err := mgr.Restore(cmd.Context(), key, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s to %s\n", key, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Object key to restore (default: newest)")
	cmd.Flags().StringVar(&out, "out", "notifly-restored.db", "Path of the restored database")
	return cmd
}

func (a *app) backupConfig() backup.Config {
	for _, k := range []string{
		"backup_s3_endpoint", "backup_s3_bucket", "backup_s3_region",
		"backup_s3_access_key", "backup_s3_secret_key", "backup_s3_prefix",
		"backup_passphrase",
	} {
		_ = a.v.BindEnv(k)
	}
	a.v.SetDefault("backup_s3_region", "us-east-1")
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  a.v.GetString("backup_s3_endpoint"),
			Bucket:    a.v.GetString("backup_s3_bucket"),
			Region:    a.v.GetString("backup_s3_region"),
			AccessKey: a.v.GetString("backup_s3_access_key"),
			SecretKey: a.v.GetString("backup_s3_secret_key"),
			Prefix:    a.v.GetString("backup_s3_prefix"),
		},
		Passphrase: a.v.GetString("backup_passphrase"),
	}
}
