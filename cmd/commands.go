package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sqlite-backup/internal/backup"
	"sqlite-backup/internal/logging"
	"sqlite-backup/internal/scheduler"
)

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for sqlite-backup",
		Args:  cobra.NoArgs,
		// no configuration is needed to print the version
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(opts.stdout, "%s version %s\n", appName, version)
			fmt.Fprintf(opts.stdout, "Built: %s\n", buildTime)
			fmt.Fprintf(opts.stdout, "Commit: %s\n", gitCommit)
			fmt.Fprintf(opts.stdout, "Go version: %s\n", goVersion)
		},
	}
}

const sampleConfig = `# sqlite-backup configuration file
# Every key can also be set through the environment, e.g.
# SQLITE_BACKUP_BACKUP_DIR=/var/backups/app or SQLITE_BACKUP_RETENTION_DAYS=30.
# Command line flags take precedence over both.

# Live database file and the directory holding its snapshots
database_path: ./db.sqlite3
backup_dir: ./backups

# How the database is read: "copy" streams the file as is, "vacuum" exports
# a consistent copy first with VACUUM INTO (safer while the app is writing)
method: copy

compression:
  # gzip, zstd or lz4; used unless --no-compress is given
  algorithm: gzip
  # 0 selects the codec default
  level: 0

retention:
  # Age threshold for scheduled cleanups; 0 disables them
  days: 30
  # The newest N snapshots are never deleted
  min_keep: 3
  dry_run: false

validation:
  # PRAGMA integrity_check on the new snapshot, and on a snapshot before
  # it replaces the live database
  verify_on_create: false
  verify_on_restore: false

# Delete -wal, -shm and -journal files next to the database after a restore
remove_journal_on_restore: true

# Advisory lock on the backup directory while creating or deleting snapshots
lock: false

# Off-site copy of every new snapshot
mirror:
  enabled: false
  # LOCAL, S3, AZURE or GCS
  provider: LOCAL
  prefix: sqlite-backups/
  # Delete remote snapshots that local retention expired
  prune: false
  local:
    base_path: /mnt/offsite
  # s3:
  #   bucket: my-backups
  #   region: eu-west-1
  #   endpoint: ""
  # azure:
  #   account_name: myaccount
  #   account_key: ""
  #   container_name: backups
  # gcs:
  #   bucket: my-backups
  #   credentials_path: /etc/gcs/key.json

# Used by "sqlite-backup schedule" when --cron is not given
schedule:
  cron: "0 3 * * *"

display:
  # Format of --list: table, json or yaml
  output_format: table

log:
  # quiet, normal, verbose or debug (-v flags take precedence)
  level: quiet
  # text or json
  format: text
  file: ""
`

// createConfigCommand creates the config subcommand for generating sample config
func createConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config flag.

Examples:
  # Write the template next to the database
  sqlite-backup config > .sqlite-backup.yaml`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(opts.stdout, sampleConfig)
		},
	}
}

// createVerifyCommand creates the verify subcommand
func createVerifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <backup-file>",
		Short: "Check the integrity of a backup",
		Long: `Decompress the backup if needed and run PRAGMA integrity_check on it.

Examples:
  sqlite-backup verify backups/db_2024-06-01_120000.sqlite3.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := logging.CreateContextWithRunID(cmd.Context(), a.runID)
			path := args[0]
			if err := a.service.VerifyBackup(ctx, path); err != nil {
				if backup.IsKind(err, backup.BackupErrorTypeBackupNotFound) {
					a.display.Failure("Backup file not found: " + path)
				} else {
					a.display.Failure(fmt.Sprintf("Verification failed: %v", err))
				}
				return errFailed
			}
			a.display.Success("Backup verified: " + path)
			return nil
		},
	}
}

type scheduleOptions struct {
	cron       string
	retention  int
	runNow     bool
	noCompress bool
}

// createScheduleCommand creates the schedule subcommand
func createScheduleCommand(opts *rootOptions) *cobra.Command {
	so := &scheduleOptions{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run backups on a cron schedule",
		Long: `Stay in the foreground and create a backup on every tick of a cron
expression, followed by a cleanup when a retention period is set. A tick that
arrives while the previous run is still going is skipped. Stops on SIGINT or
SIGTERM once the current run has finished.

Examples:
  # Nightly at 03:00, keeping 30 days
  sqlite-backup schedule --cron "0 3 * * *" --retention 30

  # Every six hours, starting with an immediate backup
  sqlite-backup schedule --cron "@every 6h" --run-now`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runSchedule(cmd, so)
		},
	}

	cmd.Flags().StringVar(&so.cron, "cron", "", "cron expression or descriptor (default from schedule.cron)")
	cmd.Flags().IntVar(&so.retention, "retention", -1, "delete backups older than N days after each run (default from retention.days)")
	cmd.Flags().BoolVar(&so.runNow, "run-now", false, "create a backup immediately on start")
	cmd.Flags().BoolVar(&so.noCompress, "no-compress", false, "do not compress the backups")

	return cmd
}

func (o *rootOptions) runSchedule(cmd *cobra.Command, so *scheduleOptions) error {
	spec := so.cron
	if spec == "" {
		spec = o.viper.GetString("schedule.cron")
	}
	if spec == "" {
		return usageError(fmt.Errorf("a cron expression is required: use --cron or set schedule.cron"))
	}
	if err := scheduler.ValidateSpec(spec); err != nil {
		return usageError(err)
	}

	a, err := o.newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	retention := so.retention
	if !cmd.Flags().Changed("retention") {
		retention = a.config.Retention.Days
	}
	if retention < 0 {
		return usageError(fmt.Errorf("--retention must not be negative, got %d", retention))
	}

	ctx := logging.CreateContextWithRunID(cmd.Context(), a.runID)
	if err := a.ensureDirectory(false); err != nil {
		return err
	}

	s, err := scheduler.New(a.service, a.logger, scheduler.Options{
		Spec:          spec,
		Compress:      !so.noCompress,
		RetentionDays: retention,
		RunOnStart:    so.runNow,
		OnRun:         a.reportRun,
	})
	if err != nil {
		return usageError(err)
	}

	a.display.Info(fmt.Sprintf("Scheduled backups (%s), next at %s", spec, s.Next(time.Now()).Format("2006-01-02 15:04:05")))
	if err := s.Start(ctx); err != nil {
		return setupError(err)
	}
	a.display.Info(fmt.Sprintf("Scheduler stopped after %d run(s)", s.Runs()))
	return nil
}

// reportRun prints one scheduled run with the same lines as the one-shot modes
func (a *app) reportRun(report scheduler.RunReport) {
	if report.Snapshot != nil {
		a.reportBackup(report.Snapshot)
	}
	if report.Cleanup != nil {
		a.reportCleanup(report.Cleanup)
	}
	if report.Err == nil {
		return
	}
	switch {
	case report.Snapshot == nil:
		a.reportBackupError(nil, report.Err)
	case report.Cleanup == nil && backup.IsKind(report.Err, backup.BackupErrorTypeStorage):
		a.reportBackupError(report.Snapshot, report.Err)
	default:
		a.display.Failure(fmt.Sprintf("Cleanup failed: %v", report.Err))
	}
}
