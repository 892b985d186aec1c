// Package jobmgr runs named background jobs and tracks which are alive.
//
//	jm := jobmgr.NewManager(log)
//	_ = jm.StartAsync(ctx, "scratch-sweeper", func(ctx context.Context) error {
//	    // work until ctx is cancelled
//	    return nil
//	})
//	...
//	jm.StopAll()
//
// There is no retry and no persistence. A job is forgotten once it returns.
package jobmgr

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

type job struct {
	name   string
	cancel context.CancelFunc
}

// Manager is safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
	log  zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		jobs: make(map[string]*job),
		log:  log,
	}
}

// StartAsync runs runner in its own goroutine under a context derived from
// parent. Starting a name that is already running is an error.
func (m *Manager) StartAsync(parent context.Context, name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("job '%s' is already running", name)
	}

	ctx, cancel := context.WithCancel(parent)
	j := &job{name: name, cancel: cancel}
	m.jobs[name] = j

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		m.log.Debug().Str("job", name).Msg("Job running")
		if err := runner(ctx); err != nil {
			m.log.Error().Err(err).Str("job", name).Msg("Job failed")
		} else {
			m.log.Debug().Str("job", name).Msg("Job done")
		}

		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return nil
}

// StopAll cancels every job and waits for all of them to return.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for name, j := range m.jobs {
		j.cancel()
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// List returns the names of running jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	m.mu.Unlock()

	sort.Strings(out)
	return out
}
