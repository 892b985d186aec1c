package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datastore.json")
	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestRegistrationsAreKeptPerGuild(t *testing.T) {
	s, _ := newStorage(t)

	require.NoError(t, s.AppendRegistration("g1", Registration{UserID: "u1", Filename: "boo.ogg", Frames: 50}))

	got, err := s.Registrations("g1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "boo.ogg", got[0].Filename)
	assert.False(t, got[0].RegisteredAt.IsZero())

	other, err := s.Registrations("g2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRegistrationHistoryIsCapped(t *testing.T) {
	s, _ := newStorage(t)

	for i := 0; i < registrationHistoryLimit+5; i++ {
		require.NoError(t, s.AppendRegistration("g1", Registration{Filename: fmt.Sprintf("%d.ogg", i)}))
	}

	got, err := s.Registrations("g1")
	require.NoError(t, err)
	require.Len(t, got, registrationHistoryLimit)
	assert.Equal(t, "5.ogg", got[0].Filename)
	assert.Equal(t, fmt.Sprintf("%d.ogg", registrationHistoryLimit+4), got[len(got)-1].Filename)
}

func TestCommandHistory(t *testing.T) {
	s, _ := newStorage(t)

	for i := 0; i < commandHistoryLimit+1; i++ {
		require.NoError(t, s.AppendCommandToHistory("g1", CommandRecord{Command: "set", UserID: "u1"}))
	}

	got, err := s.FetchCommandHistory("g1")
	require.NoError(t, err)
	assert.Len(t, got, commandHistoryLimit)
	assert.Equal(t, "set", got[0].Command)
}

func TestStats(t *testing.T) {
	s, _ := newStorage(t)

	st, err := s.Stats("g1")
	require.NoError(t, err)
	assert.Equal(t, Stats{GuildID: "g1"}, st)

	registered := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.AppendRegistration("g1", Registration{UserID: "u1", Filename: "boo.ogg", RegisteredAt: registered}))
	require.NoError(t, s.IncrementPlays("g1"))
	require.NoError(t, s.IncrementPlays("g1"))

	st, err = s.Stats("g1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Plays)
	assert.Equal(t, 1, st.Registrations)
	require.NotNil(t, st.LastPlayedAt)
	require.NotNil(t, st.LastRegistration)
	assert.Equal(t, registered, st.LastRegistration.RegisteredAt)
}

func TestRecordsSurviveReopen(t *testing.T) {
	s, path := newStorage(t)
	require.NoError(t, s.AppendRegistration("g1", Registration{UserID: "u1", Filename: "boo.ogg", Frames: 10}))
	require.NoError(t, s.IncrementPlays("g1"))
	require.NoError(t, s.Close())

	reopened, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, []string{"g1"}, reopened.Guilds())
	st, err := reopened.Stats("g1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Plays)
	require.NotNil(t, st.LastRegistration)
	assert.Equal(t, 10, st.LastRegistration.Frames)
}
