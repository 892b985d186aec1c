package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"layeh.com/gopus"
)

const maxOpusBytes = frameSize * channels * 2

type frameEncoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// Decoder turns a media file on disk into a Clip by piping it through ffmpeg
// to 48kHz stereo s16le PCM and encoding that PCM into Opus frames.
type Decoder struct {
	ffmpegPath string
	newEncoder func() (frameEncoder, error)
}

func NewDecoder(ffmpegPath string) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Decoder{
		ffmpegPath: ffmpegPath,
		newEncoder: func() (frameEncoder, error) {
			return gopus.NewEncoder(sampleRate, channels, gopus.Audio)
		},
	}
}

// Decode reads the whole file at path and returns it as an in-memory Clip.
func (d *Decoder) Decode(ctx context.Context, path string) (*Clip, error) {
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-nostdin",
		"-i", path,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "error",
		"pipe:1",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	reader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	frames, encErr := d.encode(reader)
	if encErr != nil {
		// unblock ffmpeg so Wait returns
		_, _ = io.Copy(io.Discard, reader)
	}
	waitErr := cmd.Wait()

	if encErr != nil {
		return nil, encErr
	}
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}

	return NewClip(filepath.Base(path), frames)
}

func (d *Decoder) encode(r io.Reader) ([][]byte, error) {
	enc, err := d.newEncoder()
	if err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}
	return encodeFrames(r, enc)
}

// encodeFrames splits s16le stereo PCM into 20ms frames and Opus-encodes
// each one. A trailing partial frame is padded with silence.
func encodeFrames(r io.Reader, enc frameEncoder) ([][]byte, error) {
	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	var frames [][]byte
	for {
		n, err := io.ReadFull(r, pcmBuf)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read error: %w", err)
		}
		clear(pcmBuf[n:])

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		opus, encErr := enc.Encode(intBuf, frameSize, maxOpusBytes)
		if encErr != nil {
			return nil, fmt.Errorf("encode error: %w", encErr)
		}
		frames = append(frames, opus)

		if err != nil {
			// short read: that was the last frame
			return frames, nil
		}
	}
}
