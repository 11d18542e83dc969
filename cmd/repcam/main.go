package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/repcam/internal/cli"
	"github.com/julianstephens/repcam/internal/config"
	"github.com/julianstephens/repcam/internal/constants"
	apperrors "github.com/julianstephens/repcam/internal/errors"
	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/storage"
	"github.com/julianstephens/repcam/internal/storage/postgres"
	"github.com/julianstephens/repcam/internal/storage/sqlite"
	"github.com/julianstephens/repcam/internal/utils"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Database path (.db for SQLite, .json for a JSON file) or PostgreSQL connection string. PostgreSQL passwords must NOT be embedded; use REPCAM_DB_CONNECTION, .pgpass or the OS keyring instead." type:"string" default:"${default_config}" env:"REPCAM_CONFIG"`
	Debug   bool   `help:"Log debug output to stderr." env:"REPCAM_DEBUG"`

	Init      cli.InitCmd      `cmd:"" help:"Initialize repcam storage."`
	Setup     cli.SetupCmd     `cmd:"" help:"Describe the habit to track."`
	Calibrate cli.CalibrateCmd `cmd:"" help:"Record the movement once so reps can be recognized."`
	Run       cli.RunCmd       `cmd:"" help:"Watch the camera and count reps." default:"1"`
	Status    cli.StatusCmd    `cmd:"" help:"Show today's progress and the streak."`
	Done      cli.DoneCmd      `cmd:"" help:"Record a rep by hand."`
	Duration  cli.DurationCmd  `cmd:"" help:"Change how long a rep must be held."`
	History   cli.HistoryCmd   `cmd:"" help:"List recorded reps."`
	Reset     cli.ResetCmd     `cmd:"" help:"Delete the habit and its history."`
	Import    cli.ImportCmd    `cmd:"" help:"Import an exported habit state."`
	Settings  cli.SettingsCmd  `cmd:"" help:"Show or change settings."`
	Validate  cli.ValidateCmd  `cmd:"" help:"Check settings and habit data for problems."`
	Doctor    cli.DoctorCmd    `cmd:"" help:"Run health checks and diagnostics."`
	Migrate   cli.MigrateCmd   `cmd:"" help:"Run database migrations."`
	Diag      cli.DebugCmd     `cmd:"" name:"debug" help:"Debug commands for troubleshooting."`
	Backup    struct {
		Create  cli.BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
		List    cli.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore cli.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage database backups."`
	Keyring    cli.KeyringCmd    `cmd:"" help:"Manage secrets in the OS keyring."`
	NotifyTest cli.NotifyTestCmd `cmd:"" name:"notify-test" help:"Send a test completion to every enabled sink."`
}

// openStore picks the storage backend for the --config value.
func openStore(cfg config.Config, configFlag string) (storage.Provider, error) {
	explicitPath := configFlag != constants.DefaultConfigPath && !postgres.IsConnString(configFlag)
	if !explicitPath {
		connStr, source := cfg.ResolveConnString(configFlag, postgres.IsConnString)
		if connStr != "" {
			if _, err := postgres.ValidateConnString(connStr); err != nil {
				if source == config.ConnFromKeyring && errors.Is(err, postgres.ErrEmbeddedCredentials) {
					// Secrets in the encrypted keyring are allowed
					logger.Debug("Using keyring connection string with embedded credentials")
				} else {
					return nil, fmt.Errorf("%s connection string rejected: %w", source, err)
				}
			}
			logger.Debug("Using PostgreSQL storage", "source", source)
			return postgres.New(connStr), nil
		}
	}

	path, err := utils.ExpandHome(configFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", configFlag, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return storage.NewJSONStore(path), nil
	}
	return sqlite.NewStore(path), nil
}

func skipsLoad(command string) bool {
	for _, prefix := range []string{"init", "keyring", "doctor"} {
		if strings.HasPrefix(command, prefix) {
			return true
		}
	}
	return false
}

func main() {
	defaultPath, err := utils.ExpandHome(constants.DefaultConfigPath)
	if err != nil {
		apperrors.Fatal(err)
	}
	configDir := filepath.Dir(defaultPath)

	// .env in the working directory wins over the one next to the database
	if err := config.LoadDotEnv(".", configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Webcam rep counter and daily habit streak tracker"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":            constants.Version,
			"default_config":     constants.DefaultConfigPath,
			"default_goal":       strconv.Itoa(constants.DefaultDailyGoal),
			"default_duration":   strconv.Itoa(constants.DefaultMovementDuration),
			"default_deadline":   constants.DefaultDeadline,
			"calibration_frames": strconv.Itoa(constants.DefaultCalibrationFrames),
		},
	)

	cfg := config.Load()
	cfg.Debug = cfg.Debug || CLI.Debug

	command := ctx.Command()
	if err := logger.Init(logger.Config{
		Debug:     cfg.Debug,
		ConfigDir: configDir,
		Quiet:     command == "run" && !CLI.Run.Headless,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	store, err := openStore(cfg, CLI.Config)
	if err != nil {
		apperrors.Fatal(err)
	}

	appCtx := &cli.Context{
		Store:  store,
		Config: cfg,
	}

	// init, keyring and doctor manage the store themselves
	if !skipsLoad(command) {
		if err := store.Load(); err != nil {
			apperrors.Fatal(err)
		}
	}

	err = ctx.Run(appCtx)
	if closeErr := store.Close(); closeErr != nil {
		logger.Warn("Failed to close storage", "error", closeErr)
	}
	apperrors.Fatal(err)
}
