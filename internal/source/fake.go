package source

import (
	"errors"
	"sync"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// Fake is a test double that returns scripted readings per zone,
// grounded on sweeney-boiler-sensor's internal/gpio.FakeReader: each call
// to Latest consumes the next scripted reading for that zone, repeating
// the last one once a zone's script is exhausted.
type Fake struct {
	mu      sync.Mutex
	samples map[logic.Zone][]Reading
	index   map[logic.Zone]int

	// ReadError, if set, is returned by every Latest call.
	ReadError error
}

// NewFake creates a Fake with the given per-zone scripted readings. samples
// may be nil; use Push to build up scripts incrementally.
func NewFake(samples map[logic.Zone][]Reading) *Fake {
	if samples == nil {
		samples = make(map[logic.Zone][]Reading)
	}
	return &Fake{
		samples: samples,
		index:   make(map[logic.Zone]int),
	}
}

// Latest returns the next scripted reading for zone.
func (f *Fake) Latest(zone logic.Zone) (Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return Reading{}, f.ReadError
	}

	script := f.samples[zone]
	if len(script) == 0 {
		return Reading{}, errors.New("source: no samples configured for zone " + string(zone))
	}

	idx := f.index[zone]
	reading := script[idx]
	if idx < len(script)-1 {
		f.index[zone] = idx + 1
	}
	return reading, nil
}

// Reset rewinds every zone's script to the beginning.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = make(map[logic.Zone]int)
	f.ReadError = nil
}

// Push appends one scripted reading to a zone's script, for tests that
// build up a stream incrementally rather than declaring it up front.
func (f *Fake) Push(zone logic.Zone, r Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[zone] = append(f.samples[zone], r)
}
