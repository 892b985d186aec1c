// Package sound keeps the per-guild table of registered clips.
package sound

import (
	"slices"
	"sync"

	"github.com/keshon/doorbell/internal/audio"
)

// Registry maps guild IDs to their registered clip. It is safe for
// concurrent use: lookups share a read lock, registrations are serialized.
type Registry struct {
	mu    sync.RWMutex
	clips map[string]*audio.Clip
}

func NewRegistry() *Registry {
	return &Registry{clips: make(map[string]*audio.Clip)}
}

// Register replaces whatever clip guildID had. Handles taken from the old
// clip keep playing it.
func (r *Registry) Register(guildID string, clip *audio.Clip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips[guildID] = clip
}

func (r *Registry) Lookup(guildID string) (*audio.Clip, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clip, ok := r.clips[guildID]
	return clip, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clips)
}

// Guilds returns the IDs of guilds with a registered clip, sorted.
func (r *Registry) Guilds() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clips))
	for id := range r.clips {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}
