package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		content string
		ok      bool
		name    string
		args    []string
	}{
		{"~set", true, "set", []string{}},
		{"  ~SET extra words ", true, "set", []string{"extra", "words"}},
		{"~", false, "", nil},
		{"~ set", false, "", nil},
		{"set", false, "", nil},
		{"!set", false, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			inv, ok := Parse("~", tt.content)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.name, inv.Name)
			assert.Equal(t, tt.args, inv.Args)
		})
	}

	_, ok := Parse("", "set")
	assert.False(t, ok)
}

func TestApplyOrder(t *testing.T) {
	var order []string
	mw := func(tag string) Middleware {
		return func(c Command) Command {
			return Wrap(c, func(ctx context.Context, inv *Invocation) error {
				order = append(order, tag)
				return c.Run(ctx, inv)
			})
		}
	}

	base := &Func{CmdName: "set", RunFunc: func(context.Context, *Invocation) error {
		order = append(order, "run")
		return nil
	}}
	c := Apply(base, mw("outer"), mw("inner"))

	require.NoError(t, c.Run(context.Background(), &Invocation{}))
	assert.Equal(t, []string{"outer", "inner", "run"}, order)
	assert.Equal(t, "set", c.Name())
}

func TestRegistryDispatch(t *testing.T) {
	var seen []string
	logMW := func(c Command) Command {
		return Wrap(c, func(ctx context.Context, inv *Invocation) error {
			seen = append(seen, inv.Name)
			return c.Run(ctx, inv)
		})
	}
	r := NewRegistry(logMW)

	ran := false
	r.Register(&Func{CmdName: "Set", Desc: "register a sound", RunFunc: func(context.Context, *Invocation) error {
		ran = true
		return nil
	}})

	require.NoError(t, r.Dispatch(context.Background(), &Invocation{Name: "set"}))
	assert.True(t, ran)
	assert.Equal(t, []string{"set"}, seen)

	err := r.Dispatch(context.Background(), &Invocation{Name: "play"})
	assert.ErrorIs(t, err, ErrUnknownCommand)

	all := r.All()
	require.Len(t, all, 1)
	assert.Equal(t, "register a sound", all[0].Description())
}
