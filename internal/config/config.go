// Package config provides configuration helpers for go-tapcast commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults for the command-line tools.
const (
	DefaultWebPort  = "8090"
	DefaultLogLevel = "info"
)

// LogLevel returns the log level from TAPCAST_LOG env var or default.
func LogLevel() string {
	if lvl := os.Getenv("TAPCAST_LOG"); lvl != "" {
		return lvl
	}
	return DefaultLogLevel
}

// WebPort returns the control server port from TAPCAST_PORT env var or default.
func WebPort() string {
	if port := os.Getenv("TAPCAST_PORT"); port != "" {
		return port
	}
	return DefaultWebPort
}

// OutputDir returns the directory recordings are written to.
// TAPCAST_DIR overrides; falls back to the user home directory, then cwd.
func OutputDir() string {
	if dir := os.Getenv("TAPCAST_DIR"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// DefaultOutputPath returns a timestamped WAV path for a process recording.
func DefaultOutputPath(pid int) string {
	name := fmt.Sprintf("tapcast-%d-%s.wav", pid, time.Now().Format("20060102-150405"))
	return filepath.Join(OutputDir(), name)
}
