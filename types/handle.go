package types

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RuntimeHandle is a live, addressable agent instance produced by the
// bootstrapper and passed to test functions. It is opaque to tests beyond
// its identity, character and resolved plugin set.
type RuntimeHandle struct {
	ID        uuid.UUID
	Character Character
	Plugins   []Plugin
	StartedAt time.Time

	stopOnce sync.Once
	stopFn   func(ctx context.Context) error
}

// NewRuntimeHandle builds a handle for a freshly started agent. stopFn is
// invoked at most once, at run end.
func NewRuntimeHandle(character Character, plugins []Plugin, stopFn func(ctx context.Context) error) *RuntimeHandle {
	return &RuntimeHandle{
		ID:        uuid.New(),
		Character: character,
		Plugins:   plugins,
		StartedAt: time.Now(),
		stopFn:    stopFn,
	}
}

// Plugin returns the resolved plugin with the given name, or nil.
func (h *RuntimeHandle) Plugin(name string) Plugin {
	for _, p := range h.Plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Stop releases the agent. Safe to call more than once.
func (h *RuntimeHandle) Stop(ctx context.Context) error {
	var err error
	h.stopOnce.Do(func() {
		if h.stopFn != nil {
			err = h.stopFn(ctx)
		}
	})
	return err
}
