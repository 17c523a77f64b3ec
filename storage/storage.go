// Package storage provides key-value persistence for reader state.
//
// Information Hiding:
// - Backend (SQLite file, in-memory map) hidden behind Storage
// - Values are opaque bytes; JSON helpers live alongside

package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Storage is a small durable key-value store.
// Put replaces any existing value (last write wins).
type Storage interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Put stores value under key.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all stored keys in ascending order.
	Keys(ctx context.Context) ([]string, error)
}

// GetJSON loads and decodes the value stored under key.
func GetJSON[T any](ctx context.Context, s Storage, key string) (T, bool, error) {
	var result T
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return result, ok, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, true, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return result, true, nil
}

// PutJSON encodes value and stores it under key.
func PutJSON(ctx context.Context, s Storage, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}
