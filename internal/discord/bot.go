// Package discord connects the bot to the Discord gateway: it turns message
// and voice events into ingest and session calls and provides the voice
// transport those sessions play through.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/doorbell/internal/ingest"
	"github.com/keshon/doorbell/pkg/cmd"
)

// Greeter runs a voice session for a detected join.
type Greeter interface {
	OnJoin(ctx context.Context, guildID, channelID string) error
}

type Ingestor interface {
	Handle(ctx context.Context, msg ingest.Message) error
}

type Options struct {
	Token  string
	Prefix string
	// Blacklisted reports guilds the bot must leave and ignore. Optional.
	Blacklisted func(guildID string) bool
	Logger      zerolog.Logger
}

// Bot is a Discord bot
type Bot struct {
	dg          *discordgo.Session
	prefix      string
	blacklisted func(guildID string) bool
	commands    *cmd.Registry
	greeter     Greeter
	log         zerolog.Logger

	ctx   context.Context
	ready atomic.Bool
}

// New creates the gateway session without connecting it. The session is
// available through Session so the voice transport can share it.
func New(opts Options) (*Bot, error) {
	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = intents

	return &Bot{
		dg:          dg,
		prefix:      opts.Prefix,
		blacklisted: opts.Blacklisted,
		commands:    cmd.NewRegistry(),
		log:         opts.Logger,
		ctx:         context.Background(),
	}, nil
}

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsMessageContent

func (b *Bot) Session() *discordgo.Session { return b.dg }

// Commands is the registry text commands are dispatched from.
func (b *Bot) Commands() *cmd.Registry { return b.commands }

// SetGreeter wires the session orchestrator. Must be called before Run.
func (b *Bot) SetGreeter(g Greeter) { b.greeter = g }

// Ready reports whether the gateway session is connected.
func (b *Bot) Ready() bool { return b.ready.Load() }

// Run opens the gateway connection and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if b.greeter == nil {
		return errors.New("discord: no greeter configured")
	}
	b.ctx = ctx

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onDisconnect)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onVoiceStateUpdate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("Shutdown signal received, closing gateway")
	return nil
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return b.blacklisted != nil && b.blacklisted(guildID)
}

func (b *Bot) leaveGuild(s *discordgo.Session, guildID, name string) {
	b.log.Info().Str("guild", guildID).Str("name", name).Msg("Leaving blacklisted guild")
	if err := s.GuildLeave(guildID); err != nil {
		b.log.Error().Err(err).Str("guild", guildID).Msg("Failed to leave guild")
	}
}
