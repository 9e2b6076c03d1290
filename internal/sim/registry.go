package sim

import (
	"sync"

	"github.com/signalsfoundry/doppler-simulator/model"
)

// WavefrontRegistry stores the live wavefronts in emission order. It holds
// at most a fixed number of entries and evicts the oldest first.
type WavefrontRegistry struct {
	mu       sync.RWMutex
	max      int
	lifetime float64
	nextID   uint64
	waves    []model.Wavefront
}

// NewWavefrontRegistry creates a registry capped at max entries whose
// wavefronts live for lifetime simulated seconds.
func NewWavefrontRegistry(max int, lifetime float64) *WavefrontRegistry {
	if max < 1 {
		max = 1
	}
	return &WavefrontRegistry{max: max, lifetime: lifetime}
}

// Add records a wavefront emitted at now and returns it together with the
// number of entries evicted to stay under the cap.
func (r *WavefrontRegistry) Add(kind model.WaveKind, origin, now float64) (model.Wavefront, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	w := model.Wavefront{
		ID:             r.nextID,
		Kind:           kind,
		OriginPosition: origin,
		EmissionTime:   now,
		Expiry:         now + r.lifetime,
	}

	evicted := 0
	if over := len(r.waves) + 1 - r.max; over > 0 {
		evicted = over
		r.waves = append(r.waves[:0], r.waves[over:]...)
	}
	r.waves = append(r.waves, w)
	return w, evicted
}

// Expire drops every wavefront whose lifetime has elapsed at now.
func (r *WavefrontRegistry) Expire(now float64) int {
	return r.removeIf(func(w model.Wavefront) bool { return w.Expired(now) })
}

// ClearKinds removes every wavefront of the given kinds.
func (r *WavefrontRegistry) ClearKinds(kinds ...model.WaveKind) int {
	if len(kinds) == 0 {
		return 0
	}
	return r.removeIf(func(w model.Wavefront) bool {
		for _, k := range kinds {
			if w.Kind == k {
				return true
			}
		}
		return false
	})
}

// Clear removes every wavefront.
func (r *WavefrontRegistry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.waves)
	r.waves = r.waves[:0]
	return n
}

func (r *WavefrontRegistry) removeIf(drop func(model.Wavefront) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.waves[:0]
	removed := 0
	for _, w := range r.waves {
		if drop(w) {
			removed++
			continue
		}
		kept = append(kept, w)
	}
	r.waves = kept
	return removed
}

// Active returns a copy of the live wavefronts, oldest first.
func (r *WavefrontRegistry) Active() []model.Wavefront {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Wavefront, len(r.waves))
	copy(out, r.waves)
	return out
}

// Len returns the number of live wavefronts.
func (r *WavefrontRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.waves)
}
