// Package cmd is a transport-agnostic command core. A command has a name and
// runs against an Invocation; adapters decide how text turns into one.
package cmd

import (
	"context"
	"strings"
)

// Invocation is one call of a command. Data carries the adapter's own event
// (for Discord, the originating message).
type Invocation struct {
	Name string
	Args []string
	Data any
}

type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Func adapts a plain function to Command.
type Func struct {
	CmdName string
	Desc    string
	RunFunc func(ctx context.Context, inv *Invocation) error
}

func (f *Func) Name() string        { return f.CmdName }
func (f *Func) Description() string { return f.Desc }
func (f *Func) Run(ctx context.Context, inv *Invocation) error {
	return f.RunFunc(ctx, inv)
}

// Parse splits "<prefix><name> args..." into an Invocation. Names are
// matched case-insensitively. ok is false when content does not start with
// prefix or names no command.
func Parse(prefix, content string) (inv *Invocation, ok bool) {
	if prefix == "" {
		return nil, false
	}
	rest, found := strings.CutPrefix(strings.TrimSpace(content), prefix)
	if !found {
		return nil, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 || strings.HasPrefix(rest, " ") {
		return nil, false
	}
	return &Invocation{
		Name: strings.ToLower(fields[0]),
		Args: fields[1:],
	}, true
}
