// Package scratch holds downloaded attachments on disk until they are decoded.
package scratch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Store struct {
	dir string
}

// New creates dir if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("scratch directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path returns the scratch location for one upload. Only the base name of
// filename is used; uploadID keeps concurrent uploads of the same name apart.
func (s *Store) Path(guildID, uploadID, filename string) string {
	base := filepath.Base(filepath.Clean("/" + filename))
	if base == "/" || base == "." {
		base = "upload"
	}
	return filepath.Join(s.dir, guildID+"_"+uploadID+"_"+base)
}

func (s *Store) Write(guildID, filename string, data []byte) (string, error) {
	if guildID == "" || strings.ContainsAny(guildID, `/\`) {
		return "", fmt.Errorf("invalid guild id %q", guildID)
	}
	path := s.Path(guildID, uuid.NewString(), filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Remove deletes a scratch file. A file that is already gone is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Sweep deletes regular files older than maxAge and reports how many went.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := s.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// RunSweeper sweeps the store every interval until ctx is done.
func RunSweeper(ctx context.Context, store *Store, every, maxAge time.Duration, log zerolog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := store.Sweep(maxAge)
			if err != nil {
				log.Error().Err(err).Msg("Error sweeping scratch files")
			}
			if n > 0 {
				log.Debug().Int("removed", n).Msg("Scratch files swept")
			}
		}
	}
}
