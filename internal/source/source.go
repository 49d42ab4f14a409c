// Package source provides the Sample Source abstraction consumed by the
// FSM Worker: on-demand access to each zone's latest (temperature,
// setpoint) reading. Grounded on sweeney-boiler-sensor's internal/gpio
// Reader interface, generalized from boolean pin state to analog readings.
package source

import (
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// Reading is one zone's latest observation as reported by a Source.
type Reading struct {
	TMonotonic   time.Time // must never decrease for a given zone
	TWall        time.Time
	TemperatureF float64
	SetpointF    float64
	Valid        bool
}

// Source yields, on demand, the most recent reading for a zone. Must be
// safe for concurrent use by multiple line workers (spec.md §5).
type Source interface {
	Latest(zone logic.Zone) (Reading, error)
}
