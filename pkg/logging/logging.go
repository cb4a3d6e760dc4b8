package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the root zap logger for the given environment. Local and test
// environments get the human-readable development encoder; everything else
// logs production JSON at info level.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "local", "test":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
