// Package service wires the orchestrator components together and runs them.
package service

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/jobflow/pkg/engine"
	"github.com/dukex/jobflow/pkg/reconcile"
)

const DefaultShutdownTimeout = 30 * time.Second

type Config struct {
	DatabaseURL       string        `validate:"required"`
	WorkflowsPath     string        `validate:"required"`
	EventBus          string        `validate:"omitempty,oneof=gochannel kafka"`
	KafkaBrokers      []string      `validate:"required_if=EventBus kafka"`
	ReconcileInterval time.Duration `validate:"gte=0"`
	WorkerPoolSize    int           `validate:"gte=0"`
	MisfireGrace      time.Duration `validate:"gte=0"`
	ShutdownTimeout   time.Duration `validate:"gte=0"`
	RedisURL          string        `validate:"omitempty,url"`
	APIPort           int           `validate:"gte=0,lte=65535"`
	PluginsPath       string
	OTelEnabled       bool
}

// Validate checks cfg and fills in defaults.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.EventBus == "" {
		c.EventBus = "gochannel"
	}

	if c.ReconcileInterval == 0 {
		c.ReconcileInterval = reconcile.DefaultInterval
	}

	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = engine.DefaultPoolSize
	}

	if c.MisfireGrace == 0 {
		c.MisfireGrace = engine.DefaultMisfireGrace
	}

	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}

	return nil
}
