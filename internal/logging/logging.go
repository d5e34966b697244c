// Package logging builds the application's zap loggers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction
type Options struct {
	Verbose bool
	// File receives the log output instead of stderr. The TUI owns the
	// terminal, so interactive runs should always set it.
	File string
}

// New builds a production logger, at debug level when verbose
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if opts.Verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		config.OutputPaths = []string{opts.File}
		config.ErrorOutputPaths = []string{opts.File}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// FileName is the log file created inside the config directory
const FileName = "urban-quest.log"

// DefaultFile returns the log path inside configDir. An empty configDir
// means ~/.urban-quest, or the temp directory when there is no home.
func DefaultFile(configDir string) string {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), FileName)
		}
		configDir = filepath.Join(homeDir, ".urban-quest")
	}
	return filepath.Join(configDir, FileName)
}
