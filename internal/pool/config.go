package pool

import (
	"fmt"

	"github.com/genc-murat/memwarden/internal/core/models"
)

type Config struct {
	InitialSize int
	MaxSize     int
}

func DefaultConfig() Config {
	return Config{InitialSize: 0, MaxSize: 64}
}

func (c Config) Validate() error {
	if c.MaxSize < 1 {
		return models.NewConfigurationError("pool.max_size", fmt.Sprintf("must be at least 1, got %d", c.MaxSize))
	}
	if c.InitialSize < 0 {
		return models.NewConfigurationError("pool.initial_size", "cannot be negative")
	}
	if c.InitialSize > c.MaxSize {
		return models.NewConfigurationError("pool.initial_size", "initial size cannot be greater than max size")
	}
	return nil
}
