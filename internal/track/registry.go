package track

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	ErrEmptyIdentity = errors.New("update without identity")
	ErrTrackNotFound = errors.New("track not found")
)

// SelectionListener is told when a removal cleared the selected track.
type SelectionListener func(id string)

// Registry is the keyed collection of live tracks. It is the only writer of Track values;
// everybody else works on the copies returned by Snapshot and Get.
type Registry struct {
	mu       sync.RWMutex
	tracks   map[string]*Track
	selected string

	now         func() time.Time
	onSelection SelectionListener
	logger      *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithSelectionListener registers the callback for cleared selections.
func WithSelectionListener(listener SelectionListener) Option {
	return func(r *Registry) { r.onSelection = listener }
}

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func NewRegistry(opts ...Option) *Registry {
	reg := &Registry{
		tracks:      make(map[string]*Track),
		selected:    "",
		now:         time.Now,
		onSelection: nil,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(reg)
	}

	return reg
}

// normalizeID is applied to every identity coming in, so stored keys and lookups agree.
func normalizeID(id string) string {
	return strings.TrimSpace(id)
}

// Upsert merges the update into the stored track, creating it on first sight.
// It returns a copy of the merged track and whether the track is new.
func (r *Registry) Upsert(update Update) (Track, bool, error) {
	id := normalizeID(update.ID)
	if id == "" {
		return Track{}, false, fmt.Errorf("Upsert: %w", ErrEmptyIdentity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.tracks[id]
	if !exists {
		current = &Track{ID: id} //nolint:exhaustruct // filled by merge
		r.tracks[id] = current
		r.logger.Debug("new track", "id", id)
	}

	current.merge(update)
	current.LastUpdate = r.now()

	return *current, !exists, nil
}

// Remove deletes the track. If it was selected, the selection is cleared and the selection
// listener is notified after the lock is released.
func (r *Registry) Remove(id string) (bool, bool) {
	id = normalizeID(id)

	r.mu.Lock()
	_, exists := r.tracks[id]
	delete(r.tracks, id)

	selectionCleared := exists && r.selected == id
	if selectionCleared {
		r.selected = ""
	}
	listener := r.onSelection
	r.mu.Unlock()

	if selectionCleared && listener != nil {
		listener(id)
	}

	return exists, selectionCleared
}

// ExpireStale removes every track whose last update is older than maxAge and returns their ids.
func (r *Registry) ExpireStale(maxAge time.Duration) []string {
	if maxAge <= 0 {
		return nil
	}

	cutoff := r.now().Add(-maxAge)

	r.mu.RLock()
	var expired []string
	for id, t := range r.tracks {
		if t.LastUpdate.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	removed := make([]string, 0, len(expired))
	for _, id := range expired {
		// Re-check under the write lock, the track might have been refreshed meanwhile.
		r.mu.Lock()
		t, ok := r.tracks[id]
		stillStale := ok && t.LastUpdate.Before(cutoff)
		r.mu.Unlock()

		if !stillStale {
			continue
		}
		if ok, _ := r.Remove(id); ok {
			removed = append(removed, id)
		}
	}

	if len(removed) > 0 {
		r.logger.Debug("expired stale tracks", "count", len(removed), "maxAge", maxAge)
	}

	slices.Sort(removed)
	return removed
}

// Snapshot returns copies of all tracks sorted by identity.
func (r *Registry) Snapshot() []Track {
	r.mu.RLock()
	tracks := make([]Track, 0, len(r.tracks))
	for _, t := range r.tracks {
		tracks = append(tracks, *t)
	}
	r.mu.RUnlock()

	slices.SortFunc(tracks, func(a, b Track) int { return strings.Compare(a.ID, b.ID) })
	return tracks
}

// Get returns a copy of the track with the given identity.
func (r *Registry) Get(id string) (Track, bool) {
	id = normalizeID(id)

	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tracks[id]
	if !ok {
		return Track{}, false
	}

	return *t, true
}

// Len returns the number of live tracks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tracks)
}

// Select marks the track as the one the user is looking at.
func (r *Registry) Select(id string) error {
	id = normalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tracks[id]; !ok {
		return fmt.Errorf("Select: %w: %s", ErrTrackNotFound, id)
	}

	r.selected = id
	return nil
}

func (r *Registry) ClearSelection() {
	r.mu.Lock()
	r.selected = ""
	r.mu.Unlock()
}

// Selected returns a copy of the selected track, if any.
func (r *Registry) Selected() (Track, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.selected == "" {
		return Track{}, false
	}

	t, ok := r.tracks[r.selected]
	if !ok {
		return Track{}, false
	}

	return *t, true
}
