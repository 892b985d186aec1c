// Package session drives a single greeting: join the voice channel, play the
// guild's clip once, leave when the track ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/doorbell/internal/audio"
)

var (
	ErrNoSound         = errors.New("no sound registered for guild")
	ErrSessionInFlight = errors.New("voice session already in flight for guild")
	ErrConnect         = errors.New("failed to join voice channel")
	ErrPlay            = errors.New("failed to start playback")
	ErrLeave           = errors.New("failed to leave voice channel")
)

// Clips is the read side of the sound registry.
type Clips interface {
	Lookup(guildID string) (*audio.Clip, bool)
}

// Transport opens voice connections.
type Transport interface {
	Join(ctx context.Context, guildID, channelID string) (Connection, error)
}

// Connection is one open voice connection.
type Connection interface {
	// Play makes src the only source on the connection and returns without
	// waiting for it to finish. When playback ends, for any reason, the
	// connection calls n.TrackEnded(id, err) exactly once.
	Play(id uuid.UUID, src audio.Source, n Notifier) error
	Leave(ctx context.Context) error
}

// Notifier receives track-end notifications from a Connection.
type Notifier interface {
	TrackEnded(id uuid.UUID, err error)
}

// TrackEnd is delivered to the session that subscribed under SessionID.
type TrackEnd struct {
	SessionID uuid.UUID
	Err       error
}

type Options struct {
	// Guard drops a trigger when the guild already has a session in flight.
	Guard bool
	// OnTransition, when set, is called synchronously on every state change.
	OnTransition func(Transition)
	Logger       zerolog.Logger
}

// Orchestrator runs voice sessions. One Orchestrator serves every guild.
type Orchestrator struct {
	clips     Clips
	transport Transport
	guard     bool
	observe   func(Transition)
	log       zerolog.Logger

	mu       sync.Mutex
	waiters  map[uuid.UUID]chan TrackEnd
	sessions map[uuid.UUID]*Session
	perGuild map[string]int
}

func New(clips Clips, transport Transport, opts Options) *Orchestrator {
	return &Orchestrator{
		clips:     clips,
		transport: transport,
		guard:     opts.Guard,
		observe:   opts.OnTransition,
		log:       opts.Logger,
		waiters:   make(map[uuid.UUID]chan TrackEnd),
		sessions:  make(map[uuid.UUID]*Session),
		perGuild:  make(map[string]int),
	}
}

// OnJoin runs one session for a detected join to channelID and returns once
// the bot has left again or the session failed. It blocks for the length of
// the clip, so callers run it on the event's own goroutine.
func (o *Orchestrator) OnJoin(ctx context.Context, guildID, channelID string) error {
	clip, ok := o.clips.Lookup(guildID)
	if !ok {
		return ErrNoSound
	}

	sess, err := o.begin(guildID, channelID)
	if err != nil {
		return err
	}
	defer o.end(sess)

	log := o.log.With().
		Str("session", sess.ID.String()).
		Str("guild", guildID).
		Str("channel", channelID).
		Logger()

	o.transition(sess, Joining, nil)
	conn, err := o.transport.Join(ctx, guildID, channelID)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConnect, err)
		log.Warn().Err(err).Msg("Voice connect failed")
		o.transition(sess, Failed, err)
		return err
	}

	// Subscribe before Play so a clip that ends instantly is still seen.
	ended := o.subscribe(sess.ID)
	if err := conn.Play(sess.ID, clip.NewHandle(), o); err != nil {
		o.unsubscribe(sess.ID)
		err = fmt.Errorf("%w: %w", ErrPlay, err)
		log.Warn().Err(err).Msg("Playback did not start, leaving")
		o.leave(context.WithoutCancel(ctx), sess, conn, err)
		return err
	}
	o.transition(sess, Playing, nil)
	log.Info().Str("clip", clip.Name()).Dur("length", clip.Duration()).Msg("Playing clip")

	end := <-ended
	if end.Err != nil {
		log.Warn().Err(end.Err).Msg("Track ended with error")
	}

	return o.leave(context.WithoutCancel(ctx), sess, conn, nil)
}

// TrackEnded implements Notifier. Notifications for unknown or already
// finished sessions are dropped.
func (o *Orchestrator) TrackEnded(id uuid.UUID, err error) {
	o.mu.Lock()
	ch, ok := o.waiters[id]
	delete(o.waiters, id)
	o.mu.Unlock()

	if !ok {
		o.log.Warn().Str("session", id.String()).Msg("Track end for unknown session dropped")
		return
	}
	ch <- TrackEnd{SessionID: id, Err: err}
}

// Active returns snapshots of the sessions currently in flight, oldest first.
func (o *Orchestrator) Active() []Session {
	o.mu.Lock()
	out := make([]Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, *s)
	}
	o.mu.Unlock()

	slices.SortFunc(out, func(a, b Session) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out
}

func (o *Orchestrator) begin(guildID, channelID string) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.guard && o.perGuild[guildID] > 0 {
		return nil, ErrSessionInFlight
	}

	sess := &Session{
		ID:        uuid.New(),
		GuildID:   guildID,
		ChannelID: channelID,
		State:     Idle,
		StartedAt: time.Now(),
	}
	o.sessions[sess.ID] = sess
	o.perGuild[guildID]++
	return sess, nil
}

func (o *Orchestrator) end(sess *Session) {
	o.mu.Lock()
	delete(o.sessions, sess.ID)
	if o.perGuild[sess.GuildID]--; o.perGuild[sess.GuildID] <= 0 {
		delete(o.perGuild, sess.GuildID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) leave(ctx context.Context, sess *Session, conn Connection, cause error) error {
	o.transition(sess, Leaving, cause)

	if err := conn.Leave(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrLeave, err)
		o.log.Warn().Err(err).
			Str("session", sess.ID.String()).
			Str("guild", sess.GuildID).
			Msg("Voice leave failed, session closed anyway")
		o.transition(sess, Idle, err)
		return errors.Join(cause, err)
	}

	o.transition(sess, Idle, nil)
	return cause
}

func (o *Orchestrator) subscribe(id uuid.UUID) <-chan TrackEnd {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, dup := o.waiters[id]; dup {
		panic(fmt.Sprintf("session %s: track end subscription already installed", id))
	}
	ch := make(chan TrackEnd, 1)
	o.waiters[id] = ch
	return ch
}

func (o *Orchestrator) unsubscribe(id uuid.UUID) {
	o.mu.Lock()
	delete(o.waiters, id)
	o.mu.Unlock()
}

func (o *Orchestrator) transition(sess *Session, to State, err error) {
	o.mu.Lock()
	from := sess.State
	sess.State = to
	o.mu.Unlock()

	o.log.Debug().
		Str("session", sess.ID.String()).
		Stringer("from", from).
		Stringer("to", to).
		Msg("Session transition")

	if o.observe != nil {
		o.observe(Transition{
			SessionID: sess.ID,
			GuildID:   sess.GuildID,
			ChannelID: sess.ChannelID,
			From:      from,
			To:        to,
			Err:       err,
		})
	}
}
