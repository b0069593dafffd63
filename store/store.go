// Package store keeps serialized calculators between the valuation run and
// the exposure runs that replay them.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/meenmo/amc/amc"
)

// ErrNotFound is returned for unknown calculator ids.
var ErrNotFound = errors.New("store: calculator not found")

// Store is a blob store keyed by calculator id.
type Store interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

type Config struct {
	Backend string      `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	Redis   RedisConfig `yaml:"redis"`
}

// New opens the store selected by cfg.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, cfg.Redis)
	}
	return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
}

// SaveCalculator serializes c under a fresh id.
func SaveCalculator(ctx context.Context, s Store, c amc.Calculator) (string, error) {
	data, err := c.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("SaveCalculator: %w", err)
	}
	id := uuid.NewString()
	if err := s.Put(ctx, id, data); err != nil {
		return "", fmt.Errorf("SaveCalculator: %w", err)
	}
	return id, nil
}

// LoadCalculator decodes the calculator stored under id.
func LoadCalculator(ctx context.Context, s Store, id string) (amc.Calculator, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("LoadCalculator: invalid id %q: %w", id, err)
	}
	data, err := s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("LoadCalculator: %w", err)
	}
	c, err := amc.DecodeCalculator(data)
	if err != nil {
		return nil, fmt.Errorf("LoadCalculator: %w", err)
	}
	return c, nil
}
