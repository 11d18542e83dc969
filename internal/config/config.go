// Package config reads process configuration from the environment. A .env
// file next to the working directory or in the config directory is loaded
// first; variables already set in the environment win.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/keyring"
	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/models"
)

// Config holds values that never go into the database.
type Config struct {
	DBConnection string
	MQTTBroker   string
	MQTTUsername string
	MQTTPassword string
	Debug        bool
}

// LoadDotEnv loads the .env files that exist among dirs. Missing files are
// not an error.
func LoadDotEnv(dirs ...string) error {
	var files []string
	for _, dir := range dirs {
		path := filepath.Join(dir, constants.DotEnvFileName)
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}
	if len(files) == 0 {
		return nil
	}
	return godotenv.Load(files...)
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		DBConnection: getEnv(constants.EnvDBConnection, ""),
		MQTTBroker:   getEnv(constants.EnvMQTTBroker, ""),
		MQTTUsername: getEnv(constants.EnvMQTTUsername, ""),
		MQTTPassword: getEnv(constants.EnvMQTTPassword, ""),
		Debug:        getEnvBool(constants.EnvDebug, false),
	}
}

// ApplySettings overlays environment overrides on persisted settings.
func (c Config) ApplySettings(s models.Settings) models.Settings {
	if c.MQTTBroker != "" {
		s.MQTTBroker = c.MQTTBroker
	}
	return s
}

// MQTTCredentials returns the broker login. The password falls back to the
// OS keyring when the environment does not set one.
func (c Config) MQTTCredentials() (username, password string) {
	if c.MQTTUsername == "" {
		return "", ""
	}
	if c.MQTTPassword != "" {
		return c.MQTTUsername, c.MQTTPassword
	}
	password, err := keyring.GetMQTTPassword()
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		logger.Warn("Could not read MQTT password from keyring", "error", err)
	}
	return c.MQTTUsername, password
}

// ConnSource says where a PostgreSQL connection string came from.
type ConnSource string

const (
	ConnFromFlag    ConnSource = "flag"
	ConnFromEnv     ConnSource = "environment"
	ConnFromKeyring ConnSource = "keyring"
	ConnNone        ConnSource = ""
)

// ResolveConnString picks the PostgreSQL connection string: an explicit
// flag value first, then the environment, then the OS keyring.
func (c Config) ResolveConnString(flagValue string, isConnString func(string) bool) (string, ConnSource) {
	if flagValue != "" && isConnString(flagValue) {
		return flagValue, ConnFromFlag
	}
	if c.DBConnection != "" {
		return c.DBConnection, ConnFromEnv
	}
	connStr, err := keyring.GetConnectionString()
	if err == nil && connStr != "" {
		return connStr, ConnFromKeyring
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		logger.Debug("Keyring lookup failed", "error", err)
	}
	return "", ConnNone
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		logger.Warn("Ignoring invalid boolean", "key", key, "value", value)
		return defaultValue
	}
	return b
}
