// Package ingest turns an uploaded attachment into a guild's registered clip.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/keshon/doorbell/internal/audio"
	"github.com/keshon/doorbell/internal/storage"
)

var (
	ErrNotInGuild   = errors.New("message was not sent in a guild")
	ErrNoAttachment = errors.New("no audio attached")
	ErrDownload     = errors.New("failed to download attachment")
	ErrScratchWrite = errors.New("failed to write scratch file")
	ErrDecode       = errors.New("failed to decode audio")
)

type Attachment struct {
	Filename string
	URL      string
	Size     int
}

// Message is an inbound command message. GuildID is empty for direct messages.
type Message struct {
	GuildID     string
	ChannelID   string
	MessageID   string
	AuthorID    string
	Attachments []Attachment
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Scratch interface {
	Write(guildID, filename string, data []byte) (string, error)
	Remove(path string) error
}

type Decoder interface {
	Decode(ctx context.Context, path string) (*audio.Clip, error)
}

type Registrar interface {
	Register(guildID string, clip *audio.Clip)
}

// Replier answers the user in the channel the message came from.
type Replier interface {
	Reply(ctx context.Context, msg Message, text string) error
}

// Recorder keeps an audit trail of registrations. Optional.
type Recorder interface {
	AppendRegistration(guildID string, rec storage.Registration) error
}

type Messages struct {
	NoAudio    string
	TooMany    string
	Registered string
	Failed     string
}

func DefaultMessages() Messages {
	return Messages{
		NoAudio:    "Where's the audio? Attach a sound file to the command.",
		TooMany:    "I'll only use the first file you sent, the rest is ignored!",
		Registered: "Alright, I'll play that sound whenever someone joins a voice channel!",
		Failed:     "Something went wrong, I couldn't use that file.",
	}
}

type Options struct {
	// Cleanup deletes the scratch file as soon as it has been decoded.
	Cleanup  bool
	Messages Messages
	Recorder Recorder
	Logger   zerolog.Logger
}

type Ingestor struct {
	fetch    Fetcher
	scratch  Scratch
	decode   Decoder
	registry Registrar
	reply    Replier
	recorder Recorder
	cleanup  bool
	msgs     Messages
	log      zerolog.Logger
}

func New(f Fetcher, s Scratch, d Decoder, r Registrar, rep Replier, opts Options) *Ingestor {
	msgs := opts.Messages
	if msgs == (Messages{}) {
		msgs = DefaultMessages()
	}
	return &Ingestor{
		fetch:    f,
		scratch:  s,
		decode:   d,
		registry: r,
		reply:    rep,
		recorder: opts.Recorder,
		cleanup:  opts.Cleanup,
		msgs:     msgs,
		log:      opts.Logger,
	}
}

// Handle registers the first attachment of msg as its guild's sound.
//
// The returned error tells the caller what happened; the user has already
// been answered where appropriate. ErrNotInGuild and ErrDownload are never
// answered.
func (i *Ingestor) Handle(ctx context.Context, msg Message) error {
	if msg.GuildID == "" {
		return ErrNotInGuild
	}

	if len(msg.Attachments) == 0 {
		i.send(ctx, msg, i.msgs.NoAudio)
		return ErrNoAttachment
	}
	if len(msg.Attachments) > 1 {
		i.send(ctx, msg, i.msgs.TooMany)
	}

	att := msg.Attachments[0]
	log := i.log.With().
		Str("guild", msg.GuildID).
		Str("user", msg.AuthorID).
		Str("file", att.Filename).
		Logger()

	clip, err := i.load(ctx, msg.GuildID, att)
	if errors.Is(err, ErrDownload) {
		log.Warn().Err(err).Msg("Error downloading user audio")
		return err
	}
	if err != nil {
		log.Error().Err(err).Msg("Error preparing user audio")
		i.send(ctx, msg, i.msgs.Failed)
		return err
	}

	i.registry.Register(msg.GuildID, clip)
	log.Info().Int("frames", clip.Frames()).Dur("length", clip.Duration()).Msg("Sound registered")

	if i.recorder != nil {
		rec := storage.Registration{
			UserID:   msg.AuthorID,
			Filename: att.Filename,
			Frames:   clip.Frames(),
		}
		if err := i.recorder.AppendRegistration(msg.GuildID, rec); err != nil {
			log.Warn().Err(err).Msg("Failed to record registration")
		}
	}

	i.send(ctx, msg, i.msgs.Registered)
	return nil
}

func (i *Ingestor) load(ctx context.Context, guildID string, att Attachment) (*audio.Clip, error) {
	data, err := i.fetch.Fetch(ctx, att.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	path, err := i.scratch.Write(guildID, att.Filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScratchWrite, err)
	}
	if i.cleanup {
		defer func() {
			if err := i.scratch.Remove(path); err != nil {
				i.log.Warn().Err(err).Str("path", path).Msg("Error deleting scratch file")
			}
		}()
	}

	clip, err := i.decode.Decode(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return clip.WithName(att.Filename), nil
}

func (i *Ingestor) send(ctx context.Context, msg Message, text string) {
	if err := i.reply.Reply(ctx, msg, text); err != nil {
		i.log.Warn().Err(err).Str("channel", msg.ChannelID).Msg("Error replying")
	}
}
