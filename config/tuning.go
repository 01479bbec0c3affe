package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Tuning is operational knobs read from the environment rather than
// the checked-in domain document, so per-deployment tuning doesn't
// require editing checked-in structure.
type Tuning struct {
	QueueCapacity int           `env:"BUSHI_QUEUE_CAPACITY, default=128"`
	LogLevel      string        `env:"BUSHI_LOG_LEVEL, default=info"`
	DbBusyTimeout time.Duration `env:"BUSHI_DB_BUSY_TIMEOUT, default=5s"`
}

// LoadTuning reads Tuning from the environment.
func LoadTuning(ctx context.Context) (*Tuning, error) {
	var t Tuning
	if err := envconfig.Process(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
