/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package store persists game records as JSON text in a key/value backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrNoLocation     = errors.New("storage location is required")
)

// Backends lists the accepted values for the --storage flag.
var Backends = []string{"memory", "file", "sqlite", "postgres"}

// KV is a flat key/value store. Get reports false when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open returns the backend named by kind. location is a directory for
// "file", a database path for "sqlite" and a DSN for "postgres"; it is
// ignored for "memory".
func Open(ctx context.Context, kind, location string) (KV, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))

	if kind != "memory" && strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("%s: %w", kind, ErrNoLocation)
	}

	switch kind {
	case "memory":
		return NewMemory(), nil
	case "file":
		return OpenFile(location)
	case "sqlite":
		return OpenSQLite(ctx, location)
	case "postgres":
		return OpenPostgres(ctx, location)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

// ValidBackend reports whether kind names a supported backend.
func ValidBackend(kind string) bool {
	kind = strings.ToLower(strings.TrimSpace(kind))
	for _, b := range Backends {
		if b == kind {
			return true
		}
	}
	return false
}
