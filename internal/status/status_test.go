package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/doorbell/internal/audio"
	"github.com/keshon/doorbell/internal/session"
	"github.com/keshon/doorbell/internal/sound"
	"github.com/keshon/doorbell/internal/storage"
)

type fakeSessions []session.Session

func (f fakeSessions) Active() []session.Session { return f }

type fakeStats struct {
	stats    map[string]storage.Stats
	regs     map[string][]storage.Registration
	commands map[string][]storage.CommandRecord
}

var errDiskGone = errors.New("disk gone")

func (f *fakeStats) Stats(guildID string) (storage.Stats, error) {
	if guildID == "broken" {
		return storage.Stats{}, errDiskGone
	}
	st, ok := f.stats[guildID]
	if !ok {
		return storage.Stats{GuildID: guildID}, nil
	}
	return st, nil
}

func (f *fakeStats) Registrations(guildID string) ([]storage.Registration, error) {
	if guildID == "broken-history" {
		return nil, errDiskGone
	}
	return f.regs[guildID], nil
}

func (f *fakeStats) FetchCommandHistory(guildID string) ([]storage.CommandRecord, error) {
	return f.commands[guildID], nil
}

func fixture(t *testing.T, ready bool) http.Handler {
	t.Helper()
	reg := sound.NewRegistry()
	clip, err := audio.NewClip("boo.ogg", [][]byte{{1}, {2}, {3}})
	require.NoError(t, err)
	reg.Register("g1", clip)

	sessions := fakeSessions{{
		ID:        uuid.New(),
		GuildID:   "g1",
		ChannelID: "C",
		State:     session.Playing,
		StartedAt: time.Now(),
	}}
	stats := &fakeStats{
		stats: map[string]storage.Stats{
			"g1":             {GuildID: "g1", Plays: 4, Registrations: 1},
			"g9":             {GuildID: "g9", Plays: 2},
			"broken-history": {GuildID: "broken-history", Plays: 1},
		},
		regs: map[string][]storage.Registration{
			"g1": {{UserID: "u1", Filename: "boo.ogg", Frames: 3, RegisteredAt: time.Unix(1700000000, 0)}},
		},
		commands: map[string][]storage.CommandRecord{
			"g1": {{ChannelID: "ch1", UserID: "u1", Command: "set", Datetime: time.Unix(1700000000, 0)}},
		},
	}

	srv := New(reg, sessions, stats, Options{
		Ready:  func() bool { return ready },
		Logger: zerolog.Nop(),
	})
	return srv.Handler()
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	code, body := get(t, fixture(t, true), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["guilds"])
	assert.Equal(t, float64(1), body["active_sessions"])

	code, body = get(t, fixture(t, false), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "connecting", body["status"])
}

func TestListGuilds(t *testing.T) {
	code, body := get(t, fixture(t, true), "/guilds")
	require.Equal(t, http.StatusOK, code)

	guilds := body["guilds"].([]any)
	require.Len(t, guilds, 1)
	g := guilds[0].(map[string]any)
	assert.Equal(t, "g1", g["guild_id"])

	snd := g["sound"].(map[string]any)
	assert.Equal(t, "boo.ogg", snd["name"])
	assert.Equal(t, float64(3), snd["frames"])
	assert.Equal(t, float64(60), snd["duration_ms"])

	sessions := g["sessions"].([]any)
	require.Len(t, sessions, 1)
	assert.Equal(t, "playing", sessions[0].(map[string]any)["state"])
}

func TestGetGuild(t *testing.T) {
	h := fixture(t, true)

	code, body := get(t, h, "/guilds/g1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(4), body["stats"].(map[string]any)["plays"])

	regs := body["registrations"].([]any)
	require.Len(t, regs, 1)
	assert.Equal(t, "boo.ogg", regs[0].(map[string]any)["filename"])
	assert.Equal(t, "u1", regs[0].(map[string]any)["user_id"])

	commands := body["commands"].([]any)
	require.Len(t, commands, 1)
	assert.Equal(t, "set", commands[0].(map[string]any)["command"])

	code, body = get(t, h, "/guilds/g9")
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["sound"])
	assert.NotContains(t, body, "registrations")

	code, _ = get(t, h, "/guilds/nope")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get(t, h, "/guilds/broken")
	assert.Equal(t, http.StatusInternalServerError, code)

	code, _ = get(t, h, "/guilds/broken-history")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := New(sound.NewRegistry(), fakeSessions{}, nil, Options{Addr: "127.0.0.1:0", Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
