package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownCommand = errors.New("unknown command")

// Registry stores commands by lowercase name.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	mws      []Middleware
}

// NewRegistry returns an empty registry. mws wrap every command on the way in.
func NewRegistry(mws ...Middleware) *Registry {
	return &Registry{
		commands: make(map[string]Command),
		mws:      mws,
	}
}

func (r *Registry) Register(c Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(c.Name())] = Apply(c, r.mws...)
}

// Get returns the command with the given name, or nil.
func (r *Registry) Get(name string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[strings.ToLower(name)]
}

// All returns every command, sorted by name.
func (r *Registry) All() []Command {
	r.mu.RLock()
	list := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// Dispatch runs the command inv names.
func (r *Registry) Dispatch(ctx context.Context, inv *Invocation) error {
	c := r.Get(inv.Name)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, inv.Name)
	}
	return c.Run(ctx, inv)
}
