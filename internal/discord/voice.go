package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/doorbell/internal/audio"
	"github.com/keshon/doorbell/internal/session"
)

var (
	errStopped     = errors.New("playback stopped")
	errSendStalled = errors.New("voice connection stopped accepting frames")
)

// sendTimeout bounds how long a single frame may wait for the voice sender,
// which normally drains one frame per FrameDuration.
const sendTimeout = 50 * audio.FrameDuration

// VoiceTransport opens voice connections on the bot's gateway session.
type VoiceTransport struct {
	dg  *discordgo.Session
	log zerolog.Logger
}

func NewVoiceTransport(dg *discordgo.Session, log zerolog.Logger) *VoiceTransport {
	return &VoiceTransport{dg: dg, log: log}
}

// Join connects deafened to channelID and waits until the connection is
// ready to carry audio.
func (t *VoiceTransport) Join(ctx context.Context, guildID, channelID string) (session.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := t.dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	return newVoiceConn(vc, t.log.With().Str("guild", guildID).Logger()), nil
}

// voiceLink is the part of *discordgo.VoiceConnection a voiceConn drives.
type voiceLink interface {
	Speaking(b bool) error
	Disconnect() error
}

type voiceConn struct {
	link        voiceLink
	send        chan<- []byte
	sendTimeout time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	stopped bool
}

func newVoiceConn(vc *discordgo.VoiceConnection, log zerolog.Logger) *voiceConn {
	return &voiceConn{link: vc, send: vc.OpusSend, sendTimeout: sendTimeout, log: log}
}

// Play replaces whatever the connection was playing with src.
func (c *voiceConn) Play(id uuid.UUID, src audio.Source, n session.Notifier) error {
	c.halt()

	if err := c.link.Speaking(true); err != nil {
		return fmt.Errorf("speaking: %w", err)
	}

	c.mu.Lock()
	stop, done := make(chan struct{}), make(chan struct{})
	c.stop, c.done, c.stopped = stop, done, false
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := pump(src, c.send, stop, c.sendTimeout)
		if errors.Is(err, errSendStalled) {
			c.log.Warn().Err(err).Msg("Voice send stalled, ending playback")
		}
		if err := c.link.Speaking(false); err != nil {
			c.log.Debug().Err(err).Msg("Error clearing speaking flag")
		}
		n.TrackEnded(id, err)
	}()
	return nil
}

func (c *voiceConn) Leave(context.Context) error {
	c.halt()
	return c.link.Disconnect()
}

// halt stops the current playback, if any, and waits for it to wind down.
func (c *voiceConn) halt() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	if stop != nil && !c.stopped {
		close(stop)
		c.stopped = true
	}
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// pump copies frames from src to out until src is exhausted or stop closes.
// A frame that out does not accept within timeout ends playback with
// errSendStalled.
func pump(src audio.Source, out chan<- []byte, stop <-chan struct{}, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		frame, err := src.NextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		deadline.Reset(timeout)
		select {
		case out <- frame:
		case <-stop:
			return errStopped
		case <-deadline.C:
			return errSendStalled
		}
	}
}
