package audio

import (
	"errors"
	"io"
	"time"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz

	// FrameDuration is the playback length of one Opus frame.
	FrameDuration = 20 * time.Millisecond
)

var ErrEmptyClip = errors.New("clip has no audio frames")

// Source yields Opus frames for a single playback. NextFrame returns io.EOF
// once the source is exhausted.
type Source interface {
	NextFrame() ([]byte, error)
}

// Clip is a decoded sound held in memory as Opus frames. A Clip is never
// mutated after construction, so any number of handles may read it.
type Clip struct {
	name   string
	frames [][]byte
}

func NewClip(name string, frames [][]byte) (*Clip, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyClip
	}
	owned := make([][]byte, len(frames))
	copy(owned, frames)
	return &Clip{name: name, frames: owned}, nil
}

func (c *Clip) Name() string { return c.name }

// WithName returns a clip sharing c's frames under another name.
func (c *Clip) WithName(name string) *Clip {
	return &Clip{name: name, frames: c.frames}
}

func (c *Clip) Frames() int { return len(c.frames) }

func (c *Clip) Duration() time.Duration {
	return time.Duration(len(c.frames)) * FrameDuration
}

// NewHandle returns an independent playback cursor positioned at the start.
func (c *Clip) NewHandle() *Handle {
	return &Handle{clip: c}
}

// Handle is one playback of a Clip. It is not safe for concurrent use; each
// voice session takes its own.
type Handle struct {
	clip *Clip
	pos  int
}

func (h *Handle) NextFrame() ([]byte, error) {
	if h.pos >= len(h.clip.frames) {
		return nil, io.EOF
	}
	f := h.clip.frames[h.pos]
	h.pos++
	return f, nil
}

