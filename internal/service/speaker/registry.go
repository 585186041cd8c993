// Package speaker tracks speaker ids seen by the pipeline and the display
// names assigned to them.
package speaker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"speech-caption-service/internal/observability/logging"
)

// ErrInvalidName is returned by Assign for empty or whitespace-only names.
var ErrInvalidName = errors.New("speaker name must not be empty")

// Profile is what the registry knows about one speaker id.
// Known is true iff a display name has been assigned.
type Profile struct {
	ID          int    `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Known       bool   `json:"known"`
}

// NameStore persists assigned names across restarts.
type NameStore interface {
	SpeakerNames() map[int]string
	SetSpeakerName(id int, name string) error
}

// DefaultName is the synthesized name of an unnamed speaker.
func DefaultName(id int) string {
	return fmt.Sprintf("Speaker %d", id)
}

// Registry maps speaker ids to profiles. Profiles are created lazily on first
// lookup and never removed.
type Registry struct {
	store  NameStore
	logger zerolog.Logger

	// persistMu orders Assign calls so the store ends with the same name as memory.
	persistMu sync.Mutex

	mu       sync.RWMutex
	profiles map[int]*Profile
}

// NewRegistry creates a registry seeded with the names in store, which count
// as known. store may be nil.
func NewRegistry(store NameStore) *Registry {
	r := &Registry{
		store:    store,
		logger:   logging.WithComponent("speaker-registry"),
		profiles: make(map[int]*Profile),
	}
	if store != nil {
		for id, name := range store.SpeakerNames() {
			r.profiles[id] = &Profile{ID: id, DisplayName: name, Known: true}
		}
	}
	return r
}

// Lookup returns the profile for id, creating an unknown one on first sight.
// New profiles are not persisted.
func (r *Registry) Lookup(id int) Profile {
	r.mu.RLock()
	p, ok := r.profiles[id]
	if ok {
		out := *p
		r.mu.RUnlock()
		return out
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok = r.profiles[id]; !ok {
		p = &Profile{ID: id}
		r.profiles[id] = p
		r.logger.Debug().Int("speakerId", id).Msg("New speaker seen")
	}
	return *p
}

// Resolve returns the assigned name, or DefaultName for unnamed or unseen ids.
func (r *Registry) Resolve(id int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.profiles[id]; ok && p.Known {
		return p.DisplayName
	}
	return DefaultName(id)
}

// Assign names a speaker and marks it known. Assigning the current name again
// is a no-op. Blank names return ErrInvalidName and leave state unchanged.
// The in-memory assignment stands even if persisting fails; the error is returned.
func (r *Registry) Assign(id int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}

	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	p, ok := r.profiles[id]
	if ok && p.Known && p.DisplayName == name {
		r.mu.Unlock()
		return nil
	}
	if !ok {
		p = &Profile{ID: id}
		r.profiles[id] = p
	}
	p.DisplayName = name
	p.Known = true
	r.mu.Unlock()

	logger := logging.WithSpeaker("speaker-registry", id)
	logger.Info().
		Str("displayName", name).
		Msg("Speaker named")

	if r.store != nil {
		if err := r.store.SetSpeakerName(id, name); err != nil {
			return fmt.Errorf("persist speaker name: %w", err)
		}
	}
	return nil
}

// List returns all profiles seen or named, ordered by id.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, *p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
