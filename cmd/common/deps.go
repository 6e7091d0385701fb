// Package common provides shared wiring for command implementations.
package common

import (
	"fmt"

	"github.com/lexwatch/tribsync/internal/config"
	"github.com/lexwatch/tribsync/internal/logger"
)

// CommandDeps holds common dependencies for all commands.
type CommandDeps struct {
	Logger logger.Interface
	Config *config.Config
}

// NewCommandDeps loads configuration and builds the logger.
func NewCommandDeps() (*CommandDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &CommandDeps{Logger: log, Config: cfg}, nil
}
