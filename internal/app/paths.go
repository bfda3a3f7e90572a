package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	appDirName = "kcal"
	dbFileName = "kcal.db"
)

// DefaultDBPath is the database location used when none is configured.
func DefaultDBPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, appDirName, dbFileName), nil
}

// ResolveDBPath returns configured, or the default path when it is blank,
// and makes sure its directory exists.
func ResolveDBPath(configured string) (string, error) {
	path := strings.TrimSpace(configured)
	if path == "" {
		var err error
		if path, err = DefaultDBPath(); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create db directory: %w", err)
	}
	return path, nil
}
