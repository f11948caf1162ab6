// internal/radiation/radiation.go
package radiation

import (
	"fmt"
	"math"

	"github.com/pdazone/engine/pkg/core"
)

const (
	// Max is the radiation level at which a player dies.
	Max = 100.0
	// ExposureSeconds is the time a resist-free player needs inside a zone
	// to gain the zone's full level.
	ExposureSeconds = 300.0
)

// Stacking decides how overlapping radiation zones combine.
type Stacking int

const (
	// StackStrongest uses only the highest-level zone.
	StackStrongest Stacking = iota
	// StackSum adds the levels of every containing zone.
	StackSum
)

// ParseStacking maps a config name to a policy. Empty means strongest.
func ParseStacking(name string) (Stacking, error) {
	switch name {
	case "", "strongest":
		return StackStrongest, nil
	case "sum":
		return StackSum, nil
	}
	return StackStrongest, fmt.Errorf("unknown radiation stacking %q", name)
}

// Accumulator converts zone exposure into radiation.
type Accumulator struct {
	MaxResist float64 // fraction, e.g. 0.95
	Stacking  Stacking
}

// New returns an accumulator using the strongest-zone policy.
func New(maxResist float64) *Accumulator {
	return &Accumulator{MaxResist: maxResist}
}

// Result describes one application of exposure.
type Result struct {
	Delta  float64 // computed before clamping
	Before float64
	After  float64
	// ZoneID is the dominating zone, empty when outside every radiation zone.
	ZoneID string
	Died   bool
}

// TotalResist returns the player's resistance as a fraction in [0, MaxResist].
func (a *Accumulator) TotalResist(p core.Player) float64 {
	r := p.Modifiers.RadiationResist / 100
	return clamp(r, 0, a.MaxResist)
}

// Level returns the effective zone level and the dominating zone id.
func (a *Accumulator) Level(zones []core.Zone) (float64, string) {
	var level float64
	var id string
	for _, z := range zones {
		if z.Type != core.ZoneRadiation || z.RadiationLevel <= 0 {
			continue
		}
		switch a.Stacking {
		case StackSum:
			level += z.RadiationLevel
			if id == "" {
				id = z.ID
			}
		default:
			if z.RadiationLevel > level {
				level = z.RadiationLevel
				id = z.ID
			}
		}
	}
	return level, id
}

// Delta is level × (dt / ExposureSeconds) × (1 − resist).
func Delta(level, dtSeconds, resist float64) float64 {
	if level <= 0 || dtSeconds <= 0 {
		return 0
	}
	return level * (dtSeconds / ExposureSeconds) * (1 - resist)
}

// Apply adds the exposure of dtSeconds inside zones to an alive player.
// Died is set only on the transition across Max.
func (a *Accumulator) Apply(p *core.Player, zones []core.Zone, dtSeconds float64) Result {
	res := Result{Before: p.CurrentRadiation, After: p.CurrentRadiation}
	if !p.Alive() {
		return res
	}

	level, id := a.Level(zones)
	res.ZoneID = id
	res.Delta = Delta(level, dtSeconds, a.TotalResist(*p))
	res.After = clamp(res.Before+res.Delta, 0, Max)
	res.Died = res.Before < Max && res.After >= Max

	p.CurrentRadiation = res.After
	return res
}

// Remove subtracts a flat amount, as anti-radiation consumables do.
func Remove(p *core.Player, amount float64) float64 {
	before := p.CurrentRadiation
	p.CurrentRadiation = clamp(before-amount, 0, Max)
	return before - p.CurrentRadiation
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
