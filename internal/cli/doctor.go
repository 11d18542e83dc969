package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/repcam/internal/camera"
	"github.com/julianstephens/repcam/internal/keyring"
	"github.com/julianstephens/repcam/internal/notifier"
	"github.com/julianstephens/repcam/internal/storage"
	"github.com/julianstephens/repcam/internal/utils"
	"github.com/julianstephens/repcam/internal/validation"
)

const doctorCameraTimeout = 5 * time.Second

type DoctorCmd struct {
	SkipCamera bool `help:"Do not try to connect to the camera."`
}

type checkResult int

const (
	checkOK checkResult = iota
	checkFail
	checkWarn
	checkSkip
)

func report(name string, result checkResult, err error) {
	switch result {
	case checkOK:
		fmt.Printf("✓ %s: OK\n", name)
	case checkFail:
		fmt.Printf("❌ %s: FAIL\n", name)
		fmt.Printf("   Error: %v\n", err)
	case checkWarn:
		fmt.Printf("⚠ %s: WARNING\n", name)
		fmt.Printf("   %v\n", err)
	case checkSkip:
		fmt.Printf("⊘ %s: SKIPPED (%v)\n", name, err)
	}
}

func (cmd *DoctorCmd) Run(ctx *Context) error {
	fmt.Println("Running diagnostics...")
	fmt.Println()

	hasError := false
	fail := func(name string, err error) {
		report(name, checkFail, err)
		hasError = true
	}

	// Check 1: storage reachable
	dbReachable := false
	if err := checkStorageReachable(ctx); err != nil {
		fail("Storage reachable", err)
	} else {
		report("Storage reachable", checkOK, nil)
		dbReachable = true
	}

	// Check 2: schema and migrations
	if err := checkSchemaVersion(ctx); err != nil {
		fail("Schema version", err)
	} else {
		report("Schema version", checkOK, nil)
	}

	// Check 3: backups present (warning only)
	if err := checkBackupsPresent(ctx); err != nil {
		report("Backups present", checkWarn, err)
	} else {
		report("Backups present", checkOK, nil)
	}

	// Check 4: data validation
	if dbReachable {
		if err := checkValidation(ctx); err != nil {
			fail("Data validation", err)
		} else {
			report("Data validation", checkOK, nil)
		}
	} else {
		report("Data validation", checkSkip, errors.New("storage not reachable"))
	}

	// Check 5: camera
	if cmd.SkipCamera {
		report("Camera", checkSkip, errors.New("--skip-camera"))
	} else if err := checkCamera(ctx); err != nil {
		report("Camera", checkWarn, err)
	} else {
		report("Camera", checkOK, nil)
	}

	// Check 6: completion sinks (warning only)
	if err := checkTrayBridge(ctx); err != nil {
		report("Tray bridge", checkWarn, err)
	} else {
		report("Tray bridge", checkOK, nil)
	}

	// Check 7: keyring
	if keyring.IsAvailable() {
		report("OS keyring", checkOK, nil)
	} else {
		report("OS keyring", checkWarn, errors.New("keyring unavailable; use environment variables for secrets"))
	}

	// Check 8: clock/timezone sanity
	if err := checkClockTimezone(ctx); err != nil {
		fail("Clock/timezone", err)
	} else {
		report("Clock/timezone", checkOK, nil)
	}

	fmt.Println()
	if hasError {
		fmt.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}

	fmt.Println("All diagnostics passed!")
	return nil
}

func checkStorageReachable(ctx *Context) error {
	if err := ctx.Store.Load(); err != nil {
		return fmt.Errorf("failed to load storage: %w", err)
	}
	if _, err := ctx.Store.Get("doctor-check"); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to query storage: %w", err)
	}
	return nil
}

func checkSchemaVersion(ctx *Context) error {
	sv, ok := ctx.Store.(schemaVersioner)
	if !ok {
		// JSON store doesn't have schema version
		return nil
	}

	current, latest, err := sv.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current > latest {
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d)", current, latest)
	}
	if current < latest {
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d; run 'repcam migrate'", current, latest)
	}
	return nil
}

func checkBackupsPresent(ctx *Context) error {
	mgr := ctx.backupManager()
	if mgr == nil {
		return errBackupUnsupported
	}
	backups, err := mgr.ListBackups()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups found - consider creating one with 'repcam backup create'")
	}
	return nil
}

func checkValidation(ctx *Context) error {
	settings, err := storage.GetSettings(ctx.Store)
	if err != nil {
		return err
	}
	if err := validation.ValidateSettings(settings).Err(); err != nil {
		return err
	}
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	return validation.ValidateState(st.Snapshot()).Err()
}

func checkCamera(ctx *Context) error {
	settings, err := ctx.Settings()
	if err != nil {
		return err
	}
	opts := camera.OptionsFromSettings(settings)
	if opts.AcquireTimeout > doctorCameraTimeout {
		opts.AcquireTimeout = doctorCameraTimeout
	}
	src, err := camera.New(opts)
	if err != nil {
		return err
	}
	defer src.Close()

	openCtx, cancel := context.WithTimeout(context.Background(), opts.AcquireTimeout)
	defer cancel()
	if err := src.Open(openCtx); err != nil {
		return fmt.Errorf("%s (%s): %w", camera.StateFor(err), src.Device(), err)
	}
	return nil
}

func checkTrayBridge(ctx *Context) error {
	settings, err := ctx.Settings()
	if err != nil {
		return err
	}
	if !settings.NotificationsEnabled || !settings.TrayEnabled {
		return errors.New("tray notifications are turned off")
	}
	return notifier.NewTray().Running()
}

func checkClockTimezone(ctx *Context) error {
	now := ctx.now()

	// Check if time is in a reasonable range (after 2020 and before 2100)
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}

	settings, err := storage.GetSettings(ctx.Store)
	if err != nil {
		return err
	}
	if !utils.ValidateTimezone(settings.Timezone) {
		return fmt.Errorf("unknown timezone %q", settings.Timezone)
	}
	return nil
}
