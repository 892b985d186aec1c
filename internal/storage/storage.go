// Package storage keeps per-guild metadata: who registered which sound,
// which commands were run and how often the greeting has played.
//
// Clips themselves are never persisted; they live in memory only.
package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/doorbell/datastore"
)

const (
	registrationHistoryLimit int = 20
	commandHistoryLimit      int = 20
)

type Storage struct {
	mu sync.Mutex
	ds *datastore.DataStore
}

type Registration struct {
	UserID       string    `json:"user_id"`
	Filename     string    `json:"filename"`
	Frames       int       `json:"frames"`
	RegisteredAt time.Time `json:"registered_at"`
}

type CommandRecord struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Command   string    `json:"command"`
	Datetime  time.Time `json:"datetime"`
}

type Record struct {
	Registrations []Registration  `json:"registrations"`
	CommandsList  []CommandRecord `json:"cmd_history"`
	Plays         int             `json:"plays"`
	LastPlayedAt  time.Time       `json:"last_played_at"`
}

// Stats is a read-only summary of a guild's record.
type Stats struct {
	GuildID          string        `json:"guild_id"`
	Plays            int           `json:"plays"`
	LastPlayedAt     *time.Time    `json:"last_played_at,omitempty"`
	Registrations    int           `json:"registrations"`
	LastRegistration *Registration `json:"last_registration,omitempty"`
}

func New(filePath string, log zerolog.Logger) (*Storage, error) {
	cfg := datastore.DefaultConfig(filePath)
	cfg.Logger = log
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

func (s *Storage) getOrCreateGuildRecord(guildID string) (*Record, error) {
	data, exists := s.ds.Get(guildID)
	if !exists {
		return &Record{
			Registrations: []Registration{},
			CommandsList:  []CommandRecord{},
		}, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error marshalling data: %w", err)
	}

	var record Record
	if err := json.Unmarshal(jsonData, &record); err != nil {
		return nil, fmt.Errorf("error unmarshalling to *Record: %w", err)
	}

	if len(record.Registrations) > registrationHistoryLimit {
		record.Registrations = record.Registrations[len(record.Registrations)-registrationHistoryLimit:]
	}
	if len(record.CommandsList) > commandHistoryLimit {
		record.CommandsList = record.CommandsList[len(record.CommandsList)-commandHistoryLimit:]
	}

	return &record, nil
}

func (s *Storage) update(guildID string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}
	fn(record)
	s.ds.Add(guildID, record)
	return nil
}

// AppendRegistration records a successful registration. RegisteredAt is
// filled in when zero.
func (s *Storage) AppendRegistration(guildID string, rec Registration) error {
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = time.Now().UTC()
	}
	return s.update(guildID, func(r *Record) {
		r.Registrations = append(r.Registrations, rec)
		if len(r.Registrations) > registrationHistoryLimit {
			r.Registrations = r.Registrations[len(r.Registrations)-registrationHistoryLimit:]
		}
	})
}

// Registrations returns a guild's registrations, oldest first.
func (s *Storage) Registrations(guildID string) ([]Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return record.Registrations, nil
}

func (s *Storage) AppendCommandToHistory(guildID string, command CommandRecord) error {
	if command.Datetime.IsZero() {
		command.Datetime = time.Now().UTC()
	}
	return s.update(guildID, func(r *Record) {
		r.CommandsList = append(r.CommandsList, command)
		if len(r.CommandsList) > commandHistoryLimit {
			r.CommandsList = r.CommandsList[len(r.CommandsList)-commandHistoryLimit:]
		}
	})
}

func (s *Storage) FetchCommandHistory(guildID string) ([]CommandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return record.CommandsList, nil
}

// IncrementPlays counts one greeting played in the guild.
func (s *Storage) IncrementPlays(guildID string) error {
	now := time.Now().UTC()
	return s.update(guildID, func(r *Record) {
		r.Plays++
		r.LastPlayedAt = now
	})
}

func (s *Storage) Stats(guildID string) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		GuildID:       guildID,
		Plays:         record.Plays,
		Registrations: len(record.Registrations),
	}
	if !record.LastPlayedAt.IsZero() {
		t := record.LastPlayedAt
		st.LastPlayedAt = &t
	}
	if n := len(record.Registrations); n > 0 {
		last := record.Registrations[n-1]
		st.LastRegistration = &last
	}
	return st, nil
}

// Guilds lists every guild with a stored record, sorted.
func (s *Storage) Guilds() []string {
	keys := s.ds.Keys()
	sort.Strings(keys)
	return keys
}
