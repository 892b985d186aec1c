package discord

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/keshon/doorbell/internal/ingest"
	"github.com/keshon/doorbell/internal/storage"
	"github.com/keshon/doorbell/pkg/cmd"
)

var errNoMessage = errors.New("invocation carries no message")

// CommandLogger stores an audit trail of executed commands.
type CommandLogger interface {
	AppendCommandToHistory(guildID string, rec storage.CommandRecord) error
}

// SetCommand registers the attached audio as the guild's greeting.
func SetCommand(in Ingestor) cmd.Command {
	return &cmd.Func{
		CmdName: "set",
		Desc:    "Set the sound played when someone joins a voice channel",
		RunFunc: func(ctx context.Context, inv *cmd.Invocation) error {
			msg, ok := inv.Data.(ingest.Message)
			if !ok {
				return errNoMessage
			}
			return in.Handle(ctx, msg)
		},
	}
}

// WithGuildOnly drops invocations that did not come from a guild channel.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if msg, ok := inv.Data.(ingest.Message); !ok || msg.GuildID == "" {
				return nil
			}
			return c.Run(ctx, inv)
		})
	}
}

// WithCommandLogger records every guild invocation after it ran.
func WithCommandLogger(store CommandLogger, log zerolog.Logger) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			err := c.Run(ctx, inv)

			msg, ok := inv.Data.(ingest.Message)
			if !ok || msg.GuildID == "" {
				return err
			}
			rec := storage.CommandRecord{
				ChannelID: msg.ChannelID,
				UserID:    msg.AuthorID,
				Command:   c.Name(),
			}
			if e := store.AppendCommandToHistory(msg.GuildID, rec); e != nil {
				log.Warn().Err(e).Str("command", c.Name()).Msg("Failed to log command")
			}
			return err
		})
	}
}
