package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/julianstephens/repcam/internal/backup"
	"github.com/julianstephens/repcam/internal/config"
	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/storage"
	"github.com/julianstephens/repcam/internal/storage/sqlite"
	"github.com/julianstephens/repcam/internal/store"
	"github.com/julianstephens/repcam/internal/utils"
)

type Context struct {
	Store  storage.Provider
	Config config.Config
	// In answers confirmation prompts. Defaults to stdin.
	In io.Reader
	// Now overrides the clock of the habit store.
	Now func() time.Time
}

// schemaVersioner is implemented by the SQL backed providers.
type schemaVersioner interface {
	SchemaVersion() (current, latest int, err error)
	Migrate(logFn func(string)) (int, error)
}

// Settings reads the persisted settings with environment overrides applied.
func (c *Context) Settings() (models.Settings, error) {
	s, err := storage.GetSettings(c.Store)
	if err != nil {
		return models.Settings{}, err
	}
	return c.Config.ApplySettings(s), nil
}

// HabitStore loads the habit state in the configured timezone.
func (c *Context) HabitStore() (*store.Store, error) {
	settings, err := c.Settings()
	if err != nil {
		return nil, err
	}
	loc, err := utils.LoadLocation(settings.Timezone)
	if err != nil {
		logger.Warn("Falling back to local time", "timezone", settings.Timezone, "error", err)
		loc = time.Local
	}

	opts := []store.Option{store.WithLocation(loc)}
	if c.Now != nil {
		opts = append(opts, store.WithClock(c.Now))
	}
	st := store.New(c.Store, opts...)
	if err := st.Load(); err != nil {
		return nil, err
	}
	return st, nil
}

// backupManager returns nil for providers that are not a local SQLite file.
func (c *Context) backupManager() *backup.Manager {
	if _, ok := c.Store.(*sqlite.Store); !ok {
		return nil
	}
	return backup.NewManager(c.Store.GetConfigPath())
}

// PerformAutomaticBackup creates an automatic backup and silently handles errors
func (c *Context) PerformAutomaticBackup() {
	mgr := c.backupManager()
	if mgr == nil {
		logger.Debug("Skipping automatic backup for non-SQLite storage")
		return
	}
	if _, err := mgr.CreateBackup(); err != nil {
		// Log warning but don't interrupt user workflow
		logger.Warn("Automatic backup failed", "error", err)
	}
}

// confirm asks a y/N question on stdout and reads the answer from c.In.
func (c *Context) confirm(prompt string) (bool, error) {
	in := c.In
	if in == nil {
		in = os.Stdin
	}
	fmt.Printf("%s [y/N]: ", prompt)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
