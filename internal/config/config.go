// Package config loads library configuration from the environment and
// an optional .tracklet/config.yaml found by walking up from the
// working directory. Environment variables take precedence over the
// config file; both take precedence over defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Safe to call more than once; later calls re-read the sources.
func Initialize() error {
	v = viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Walk up from CWD looking for a .tracklet directory so callers can
	// run from any subdirectory of a project.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			trackletDir := filepath.Join(dir, ".tracklet")
			if info, err := os.Stat(trackletDir); err == nil && info.IsDir() {
				v.AddConfigPath(trackletDir)
				break
			}
		}
	}

	// User config directory (~/.config/tracklet/) as fallback
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "tracklet"))
	}

	// TRACKLET_DB, TRACKLET_ACTOR, TRACKLET_ISSUE_PREFIX
	v.SetEnvPrefix("TRACKLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db", "")
	v.SetDefault("actor", "")
	v.SetDefault("issue-prefix", "")

	// Config file is optional; only real read errors matter.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func ensure() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// DBPath returns the configured database path, or "" if unset.
func DBPath() string {
	return ensure().GetString("db")
}

// Actor returns the configured audit actor. Falls back to $USER so
// events always carry some identity.
func Actor() string {
	if actor := ensure().GetString("actor"); actor != "" {
		return actor
	}
	return os.Getenv("USER")
}

// IssuePrefix returns the configured issue id prefix, or "" if unset
// (the store then derives one from the database filename).
func IssuePrefix() string {
	return ensure().GetString("issue-prefix")
}
