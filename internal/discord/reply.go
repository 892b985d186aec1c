package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/doorbell/internal/ingest"
)

// Replier answers command messages with a Discord reply.
type Replier struct {
	dg *discordgo.Session
}

func NewReplier(dg *discordgo.Session) *Replier {
	return &Replier{dg: dg}
}

func (r *Replier) Reply(ctx context.Context, msg ingest.Message, text string) error {
	ref := &discordgo.MessageReference{
		MessageID: msg.MessageID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
	}
	_, err := r.dg.ChannelMessageSendReply(msg.ChannelID, text, ref, discordgo.WithContext(ctx))
	return err
}
