package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sqlite-backup/internal/backup"
	"sqlite-backup/internal/display"
	"sqlite-backup/internal/logging"
	"sqlite-backup/internal/storage"
)

const (
	appName   = "sqlite-backup"
	envPrefix = "SQLITE_BACKUP"
)

// rootOptions holds the flag values of one command tree
type rootOptions struct {
	cfgFile string

	// Mode flags
	noCompress bool
	restore    string
	cleanup    int
	list       bool

	// Backup flags
	dbPath      string
	backupDir   string
	compression string
	level       int
	method      string
	verify      bool
	keepMin     int
	dryRun      bool
	mirror      bool
	lock        bool

	// Output flags
	outputFormat string
	verbose      int
	quiet        bool
	logFormat    string
	logFile      string
	noColor      bool

	viper  *viper.Viper
	stdout io.Writer
	stderr io.Writer
}

// exitError carries the process exit code out of a command. A nil err
// means the failure was already reported on stdout.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

var errFailed = &exitError{code: 1}

func usageError(err error) error {
	return &exitError{code: 2, err: err}
}

func setupError(err error) error {
	return &exitError{code: 1, err: err}
}

// NewRootCommand builds the sqlite-backup command tree writing to stdout and stderr
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{
		viper:  viper.New(),
		stdout: stdout,
		stderr: stderr,
	}

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Back up, restore and prune snapshots of a SQLite database",
		Long: `sqlite-backup keeps timestamped snapshots of one SQLite database file in a
backup directory. Snapshots are named db_YYYY-MM-DD_HHMMSS.sqlite3 and are gzip
compressed (.gz) unless --no-compress is given; zstd (.zst) and lz4 (.lz4) are
available through --compression.

Examples:
  # Create a compressed backup of ./db.sqlite3 in ./backups
  sqlite-backup

  # Create an uncompressed backup that keeps permissions and mtime
  sqlite-backup --no-compress

  # Restore the live database from a snapshot
  sqlite-backup --restore backups/db_2024-06-01_120000.sqlite3.gz

  # Delete snapshots older than 30 days, always keeping the newest 5
  sqlite-backup --cleanup 30 --keep-min 5

  # List snapshots as JSON
  sqlite-backup --list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initConfig()
		},
		RunE: opts.runRoot,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	// Mode flags
	rootCmd.Flags().BoolVar(&opts.noCompress, "no-compress", false, "do not compress the backup")
	rootCmd.Flags().StringVar(&opts.restore, "restore", "", "restore the live database from a backup file")
	rootCmd.Flags().IntVar(&opts.cleanup, "cleanup", 0, "delete backups older than N days (0 disables)")
	rootCmd.Flags().BoolVar(&opts.list, "list", false, "list all backups")
	rootCmd.MarkFlagsMutuallyExclusive("restore", "cleanup", "list")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.sqlite-backup.yaml or ./.sqlite-backup.yaml)")

	// Backup flags
	pf.StringVar(&opts.dbPath, "db-path", "", "live database file (default ./db.sqlite3)")
	pf.StringVar(&opts.backupDir, "backup-dir", "", "backup directory (default ./backups)")
	pf.StringVar(&opts.compression, "compression", "", "compression algorithm: gzip, zstd, lz4 (default gzip)")
	pf.IntVar(&opts.level, "level", 0, "compression level (0 uses the algorithm default)")
	pf.StringVar(&opts.method, "method", "", "how the database is read: copy or vacuum (default copy)")
	pf.BoolVar(&opts.verify, "verify", false, "run an integrity check after backup and before restore")
	pf.IntVar(&opts.keepMin, "keep-min", 0, "always keep the newest N backups during cleanup")
	pf.BoolVar(&opts.dryRun, "dry-run", false, "report what cleanup would delete without deleting")
	pf.BoolVar(&opts.mirror, "mirror", false, "copy new backups to the configured mirror")
	pf.BoolVar(&opts.lock, "lock", false, "hold an advisory lock on the backup directory")

	// Output flags
	pf.StringVar(&opts.outputFormat, "format", "table", "list output format: table, json, yaml")
	pf.CountVarP(&opts.verbose, "verbose", "v", "log to stderr (-v info, -vv debug, -vvv trace)")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "print failures and warnings only")
	pf.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&opts.logFile, "log-file", "", "also write logs to this file")
	pf.BoolVar(&opts.noColor, "no-color", false, "disable color output")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	opts.bindFlags(pf)
	opts.setDefaults()

	rootCmd.AddCommand(createVersionCommand(opts))
	rootCmd.AddCommand(createConfigCommand(opts))
	rootCmd.AddCommand(createVerifyCommand(opts))
	rootCmd.AddCommand(createScheduleCommand(opts))

	return rootCmd
}

// Execute runs the CLI and exits with its status code.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand(stdout, stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}

	// cobra's own argument and flag-group errors
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 2
}

// bindFlags maps flags onto configuration keys. A flag only overrides the
// config file and environment when it is set on the command line.
func (o *rootOptions) bindFlags(pf *pflag.FlagSet) {
	v := o.viper
	v.BindPFlag("database_path", pf.Lookup("db-path"))
	v.BindPFlag("backup_dir", pf.Lookup("backup-dir"))
	v.BindPFlag("method", pf.Lookup("method"))
	v.BindPFlag("compression.algorithm", pf.Lookup("compression"))
	v.BindPFlag("compression.level", pf.Lookup("level"))
	v.BindPFlag("retention.min_keep", pf.Lookup("keep-min"))
	v.BindPFlag("retention.dry_run", pf.Lookup("dry-run"))
	v.BindPFlag("validation.verify_on_create", pf.Lookup("verify"))
	v.BindPFlag("validation.verify_on_restore", pf.Lookup("verify"))
	v.BindPFlag("mirror.enabled", pf.Lookup("mirror"))
	v.BindPFlag("lock", pf.Lookup("lock"))

	v.BindPFlag("display.output_format", pf.Lookup("format"))
	v.BindPFlag("log.format", pf.Lookup("log-format"))
	v.BindPFlag("log.file", pf.Lookup("log-file"))
}

// setDefaults roots the default paths at the working directory
func (o *rootOptions) setDefaults() {
	baseDir, err := os.Getwd()
	if err != nil {
		baseDir = "."
	}
	defaults := backup.DefaultConfig(baseDir)

	v := o.viper
	v.SetDefault("database_path", defaults.DatabasePath)
	v.SetDefault("backup_dir", defaults.BackupDir)
	v.SetDefault("dir_permissions", int(defaults.DirPermissions))
	v.SetDefault("method", string(defaults.Method))
	v.SetDefault("compression.algorithm", defaults.Compression.Algorithm)
	v.SetDefault("compression.level", 0)
	v.SetDefault("retention.days", 0)
	v.SetDefault("display.output_format", string(display.FormatTable))
	v.SetDefault("log.format", "text")
}

// initConfig reads in config file and ENV variables if set.
func (o *rootOptions) initConfig() error {
	v := o.viper
	if o.cfgFile != "" {
		v.SetConfigFile(o.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("." + appName)
	}

	// SQLITE_BACKUP_BACKUP_DIR, SQLITE_BACKUP_COMPRESSION_ALGORITHM, ...
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.cfgFile != "" || !errors.As(err, &notFound) {
			return setupError(fmt.Errorf("failed to read config file: %w", err))
		}
	}
	return nil
}

// buildConfig merges defaults, config file, environment and flags into a
// validated backup configuration.
func (o *rootOptions) buildConfig() (backup.Config, error) {
	var config backup.Config
	if err := o.viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if !filepath.IsAbs(config.DatabasePath) {
		if abs, err := filepath.Abs(config.DatabasePath); err == nil {
			config.DatabasePath = abs
		}
	}
	if !filepath.IsAbs(config.BackupDir) {
		if abs, err := filepath.Abs(config.BackupDir); err == nil {
			config.BackupDir = abs
		}
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// logLevel maps -v counts onto logger levels; without -v the config file
// may set log.level, and the default keeps stderr quiet.
func (o *rootOptions) logLevel() logging.LogLevel {
	switch {
	case o.verbose >= 3:
		return logging.LogLevelDebug
	case o.verbose == 2:
		return logging.LogLevelVerbose
	case o.verbose == 1:
		return logging.LogLevelNormal
	case o.viper.IsSet("log.level"):
		return logging.LogLevel(o.viper.GetString("log.level"))
	default:
		return logging.LogLevelQuiet
	}
}

// app is everything one invocation needs, built from the merged configuration
type app struct {
	config  backup.Config
	logger  *logging.Logger
	display display.DisplayService
	service backup.Service
	runID   string
	closers []io.Closer
}

// newApp wires logger, display, mirror and backup manager together
func (o *rootOptions) newApp(ctx context.Context) (*app, error) {
	displayConfig := &display.DisplayConfig{
		ColorEnabled: !o.noColor,
		OutputFormat: o.viper.GetString("display.output_format"),
		QuietMode:    o.quiet,
		Writer:       o.stdout,
	}
	displayConfig.SetDefaults()
	if err := displayConfig.Validate(); err != nil {
		return nil, usageError(err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:   o.logLevel(),
		Output:  o.stderr,
		Format:  o.viper.GetString("log.format"),
		LogFile: o.viper.GetString("log.file"),
	})
	if err != nil {
		return nil, setupError(err)
	}

	a := &app{
		logger:  logger,
		display: display.NewDisplayService(displayConfig),
		runID:   logging.NewRunID(),
		closers: []io.Closer{logger},
	}
	logger.AttachRunID(a.runID)

	config, err := o.buildConfig()
	if err != nil {
		a.Close()
		return nil, setupError(err)
	}
	a.config = config

	managerOpts := []backup.Option{backup.WithLogger(logger)}
	if config.Mirror.Enabled {
		mirror, err := storage.NewMirror(ctx, config.Mirror)
		if err != nil {
			a.Close()
			return nil, setupError(fmt.Errorf("failed to create mirror: %w", err))
		}
		if closer, ok := mirror.(io.Closer); ok {
			a.closers = append(a.closers, closer)
		}
		managerOpts = append(managerOpts, backup.WithMirror(mirror))
	}

	manager, err := backup.NewManager(config, managerOpts...)
	if err != nil {
		a.Close()
		return nil, setupError(err)
	}
	a.service = manager

	logger.WithFields(map[string]interface{}{
		"database":   config.DatabasePath,
		"backup_dir": config.BackupDir,
		"config":     o.viper.ConfigFileUsed(),
	}).Debug("Configuration loaded")

	return a, nil
}

// Close releases the log file and mirror clients
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// runRoot dispatches to the selected mode: list wins over restore, restore
// over cleanup, and anything else is a backup.
func (o *rootOptions) runRoot(cmd *cobra.Command, args []string) error {
	if o.cleanup < 0 {
		return usageError(fmt.Errorf("--cleanup must not be negative, got %d", o.cleanup))
	}

	a, err := o.newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := logging.CreateContextWithRunID(cmd.Context(), a.runID)

	// structured listings keep stdout parseable
	silent := o.list && a.display.GetConfig().Format().IsStructured()
	if err := a.ensureDirectory(silent); err != nil {
		return err
	}

	switch {
	case o.list:
		return a.listBackups(ctx)
	case o.restore != "":
		return a.restoreBackup(ctx, o.restore)
	case o.cleanup > 0:
		return a.cleanupBackups(ctx, o.cleanup)
	default:
		return a.createBackup(ctx, !o.noCompress)
	}
}
