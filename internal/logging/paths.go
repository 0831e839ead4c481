package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.cinesphere/logs, or a temp directory when there is
// no home directory.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".cinesphere", "logs")
	}
	return filepath.Join(home, ".cinesphere", "logs")
}

// DefaultLogPath is the CLI log file.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "cinesphere.log")
}

// FindLogFile returns explicit if given and present, else the default
// log file if present.
func FindLogFile(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		if explicit != "" {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return "", fmt.Errorf("no log file at %s; run a command with --debug first", path)
	}
	return path, nil
}
