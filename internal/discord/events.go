package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/doorbell/internal/ingest"
	"github.com/keshon/doorbell/internal/session"
	"github.com/keshon/doorbell/internal/trigger"
	"github.com/keshon/doorbell/pkg/cmd"
)

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		if b.isGuildBlacklisted(g.ID) {
			b.leaveGuild(s, g.ID, g.Name)
		}
	}

	b.ready.Store(true)
	b.log.Info().
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("Discord bot is running")
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.ready.Store(false)
	b.log.Warn().Msg("Gateway disconnected")
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.isGuildBlacklisted(g.ID) {
		b.leaveGuild(s, g.ID, g.Name)
		return
	}
	b.log.Debug().Str("guild", g.ID).Str("name", g.Name).Msg("Guild available")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if m.GuildID != "" && b.isGuildBlacklisted(m.GuildID) {
		return
	}

	inv, ok := cmd.Parse(b.prefix, m.Content)
	if !ok {
		return
	}
	inv.Data = messageFromEvent(m)

	err := b.commands.Dispatch(b.ctx, inv)
	switch {
	case err == nil:
	case errors.Is(err, cmd.ErrUnknownCommand):
		b.log.Debug().Str("command", inv.Name).Msg("Unknown command ignored")
	default:
		b.log.Debug().Err(err).Str("command", inv.Name).Str("guild", m.GuildID).Msg("Command finished with error")
	}
}

// onVoiceStateUpdate runs on its own goroutine per event, so blocking for a
// whole greeting here does not hold up other events.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil || v.GuildID == "" || b.isGuildBlacklisted(v.GuildID) {
		return
	}

	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	before, after := presenceFromEvent(v, selfID)

	channelID, ok := trigger.Detect(before, after)
	if !ok {
		return
	}

	err := b.greeter.OnJoin(b.ctx, after.GuildID, channelID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNoSound):
		b.log.Debug().Str("guild", after.GuildID).Msg("Join ignored, no sound registered")
	case errors.Is(err, session.ErrSessionInFlight):
		b.log.Debug().Str("guild", after.GuildID).Msg("Join ignored, session in flight")
	default:
		b.log.Warn().Err(err).Str("guild", after.GuildID).Str("channel", channelID).Msg("Greeting failed")
	}
}

// presenceFromEvent extracts the previous channel and the new presence from
// a voice state update. Members without user info are checked against the
// bot's own ID.
func presenceFromEvent(v *discordgo.VoiceStateUpdate, selfID string) (string, trigger.Presence) {
	before := ""
	if v.BeforeUpdate != nil {
		before = v.BeforeUpdate.ChannelID
	}

	isBot := selfID != "" && v.UserID == selfID
	if v.Member != nil && v.Member.User != nil {
		isBot = isBot || v.Member.User.Bot
	}

	return before, trigger.Presence{
		GuildID:   v.GuildID,
		ChannelID: v.ChannelID,
		Bot:       isBot,
	}
}

func messageFromEvent(m *discordgo.MessageCreate) ingest.Message {
	msg := ingest.Message{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, ingest.Attachment{
			Filename: a.Filename,
			URL:      a.URL,
			Size:     a.Size,
		})
	}
	return msg
}
