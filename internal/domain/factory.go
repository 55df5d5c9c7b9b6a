// Package domain selects concrete component implementations for the engine.
package domain

import (
	"fmt"

	"github.com/nkkko/telecast/internal/store"
	badgerstore "github.com/nkkko/telecast/internal/store/badger"
	"github.com/nkkko/telecast/internal/store/memory"
)

// StoreType represents the type of storage engine
type StoreType string

const (
	// BadgerStore selects the persistent Badger-backed store
	BadgerStore StoreType = "badger"

	// MemoryStore selects the in-memory store used for tests and development
	MemoryStore StoreType = "memory"
)

// StoreConfig holds common configuration for all store engines
type StoreConfig struct {
	// Store type (badger, memory)
	Type StoreType

	// Specific engine configuration
	Config interface{}
}

// NewStore creates a store engine of the specified type
func NewStore(config StoreConfig) (store.Store, error) {
	switch config.Type {
	case BadgerStore:
		var badgerConfig badgerstore.Config

		// Check if a specific config was provided
		if config.Config != nil {
			var ok bool
			badgerConfig, ok = config.Config.(badgerstore.Config)
			if !ok {
				return nil, fmt.Errorf("invalid configuration type for Badger store")
			}
		} else {
			badgerConfig = badgerstore.DefaultConfig()
		}

		return badgerstore.New(badgerConfig)

	case MemoryStore:
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
