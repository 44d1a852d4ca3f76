// Package logging builds the process logger.
package logging

import (
	"go.uber.org/zap"
)

type Config struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // json or console
	OutputPath  string `yaml:"outputPath"`
	Development bool   `yaml:"development"`
}

// New returns a zap logger tagged with the service name. An unknown level
// falls back to info.
func New(cfg Config, service string) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zc.Level = level

	if cfg.Format == "console" {
		zc.Encoding = "console"
	} else {
		zc.Encoding = "json"
	}
	if cfg.OutputPath != "" {
		zc.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	if service != "" {
		logger = logger.With(zap.String("service", service))
	}
	return logger, nil
}
