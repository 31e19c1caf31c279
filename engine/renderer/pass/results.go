package pass

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/binding_set"
)

// Results holds the mapped readback data of one compute Run, keyed by readback name.
// A Results only exists once every mapping has completed.
type Results struct {
	mu  sync.Mutex
	raw map[string][]float32
}

// NewResults wraps raw readback contents, each a length prefix followed by payload.
//
// Parameters:
//   - raw: the mapped contents per readback name
//
// Returns:
//   - *Results: the results
func NewResults(raw map[string][]float32) *Results {
	r := &Results{raw: make(map[string][]float32, len(raw))}
	for name, data := range raw {
		r.raw[name] = data
	}
	return r
}

// Get returns exactly the payload elements announced by the length prefix of a readback.
//
// Parameters:
//   - name: the readback name, without the readback marker
//   - preserve: keep the data for later Get calls; false drops it after this call
//
// Returns:
//   - []float32: a copy of the payload
//   - error: ErrUnknownReadback, or binding_set.ErrReadbackOverflow for a corrupt length prefix
func (r *Results) Get(name string, preserve bool) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, ok := r.raw[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReadback, name)
	}
	if !preserve {
		delete(r.raw, name)
	}
	return binding_set.DecodeReadback(raw)
}

// Names returns the readback names still held, sorted.
func (r *Results) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.raw))
	for name := range r.raw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
