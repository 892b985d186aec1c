package scratch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, err)

	path, err := s.Write("g1", "boo.ogg", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, s.Dir(), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "g1_"))
	assert.True(t, strings.HasSuffix(path, "_boo.ogg"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(raw))

	require.NoError(t, s.Remove(path))
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.NoError(t, s.Remove(path))
}

func TestSameNameUploadsDoNotCollide(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	p1, err := s.Write("g1", "boo.ogg", []byte("one"))
	require.NoError(t, err)
	p2, err := s.Write("g1", "boo.ogg", []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)

	// Cleaning up one upload leaves the other in place.
	require.NoError(t, s.Remove(p1))
	raw, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, "two", string(raw))
}

func TestPathStripsDirectories(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(s.Dir(), "g1_u1_passwd"), s.Path("g1", "u1", "../../etc/passwd"))
	assert.Equal(t, filepath.Join(s.Dir(), "g1_u1_upload"), s.Path("g1", "u1", ""))
}

func TestWriteRejectsBadGuild(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Write("../g1", "boo.ogg", nil)
	assert.Error(t, err)
	_, err = s.Write("", "boo.ogg", nil)
	assert.Error(t, err)
}

func TestSweepRemovesOnlyOldFiles(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	old, err := s.Write("g1", "old.ogg", []byte("x"))
	require.NoError(t, err)
	fresh, err := s.Write("g2", "new.ogg", []byte("x"))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	n, err := s.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(old)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	old, err := s.Write("g1", "old.ogg", []byte("x"))
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunSweeper(ctx, s, 5*time.Millisecond, time.Hour, zerolog.Nop()) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
