// Package kv holds the key-value stores the pantry engine persists its
// collections into. Each collection lives under one key and is always read
// and written whole.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store is the persistence collaborator of the engine. Get reports ok=false
// when the key was never written.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

var ErrUnknownDriver = errors.New("kv: unknown driver")

// Config selects and parameterises a driver. DSN is a file path for sqlite
// and a connection string for postgres.
type Config struct {
	Driver string
	DSN    string
	S3     S3Config
}

// Open constructs the store named by cfg.Driver. An empty driver is memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		s, err := OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverS3:
		s, err := OpenS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
