// internal/quest/objective.go
package quest

import (
	"time"

	"github.com/pdazone/engine/internal/geo"
	"github.com/pdazone/engine/pkg/core"
)

// strategy is the per-type behaviour of an objective.
type strategy interface {
	// locate applies a location report and reports whether progress changed.
	locate(o *core.Objective, pos core.Point, dtSeconds float64, now time.Time) bool
	// met reports whether every objective condition holds.
	met(o core.Objective) bool
	// markers lists the map points the player should head to.
	markers(o core.Objective) []Marker
}

var strategies = map[core.QuestType]strategy{
	core.QuestVisit:              visitStrategy{},
	core.QuestPatrol:             patrolStrategy{},
	core.QuestElimination:        eliminationStrategy{},
	core.QuestArtifactCollection: collectionStrategy{},
	core.QuestDelivery:           deliveryStrategy{},
	core.QuestManual:             manualStrategy{},
}

func strategyFor(t core.QuestType) strategy {
	if s, ok := strategies[t]; ok {
		return s
	}
	return manualStrategy{}
}

// Marker is a quest target shown on the client map.
type Marker struct {
	QuestID  string     `json:"questId"`
	Index    int        `json:"index"`
	Position core.Point `json:"position"`
	Radius   float64    `json:"radius"`
	Visited  bool       `json:"visited"`
}

type visitStrategy struct{}

func (visitStrategy) locate(o *core.Objective, pos core.Point, _ float64, now time.Time) bool {
	v := o.Visit
	if v == nil || v.Visited {
		return false
	}
	if !geo.Within(pos, v.Target, v.Radius) {
		return false
	}
	v.Visited = true
	v.VisitedAt = &now
	return true
}

func (visitStrategy) met(o core.Objective) bool {
	return o.Visit != nil && o.Visit.Visited
}

func (visitStrategy) markers(o core.Objective) []Marker {
	if o.Visit == nil {
		return nil
	}
	return []Marker{{Position: o.Visit.Target, Radius: o.Visit.Radius, Visited: o.Visit.Visited}}
}

type patrolStrategy struct{}

// locate marks every containing checkpoint visited and, while inside any of
// them, accumulates patrol time. Leaving all checkpoints pauses the timer.
func (patrolStrategy) locate(o *core.Objective, pos core.Point, dtSeconds float64, now time.Time) bool {
	p := o.Patrol
	if p == nil {
		return false
	}
	inside := geo.Checkpoints(pos, p.Checkpoints)
	if len(inside) == 0 {
		return false
	}
	changed := false
	for _, i := range inside {
		cp := &p.Checkpoints[i]
		if !cp.Visited {
			cp.Visited = true
			cp.VisitedAt = &now
			changed = true
		}
	}
	if dtSeconds > 0 {
		p.AccumulatedTimeSeconds += dtSeconds
		changed = true
	}
	return changed
}

func (patrolStrategy) met(o core.Objective) bool {
	p := o.Patrol
	if p == nil || len(p.Checkpoints) == 0 {
		return false
	}
	for _, cp := range p.Checkpoints {
		if !cp.Visited {
			return false
		}
	}
	return p.AccumulatedTimeSeconds >= p.RequiredTimeMinutes*60
}

func (patrolStrategy) markers(o core.Objective) []Marker {
	if o.Patrol == nil {
		return nil
	}
	out := make([]Marker, 0, len(o.Patrol.Checkpoints))
	for i, cp := range o.Patrol.Checkpoints {
		out = append(out, Marker{Index: i, Position: cp.Position, Radius: cp.Radius, Visited: cp.Visited})
	}
	return out
}

type eliminationStrategy struct{}

func (eliminationStrategy) locate(*core.Objective, core.Point, float64, time.Time) bool {
	return false
}

func (eliminationStrategy) met(o core.Objective) bool {
	e := o.Elimination
	return e != nil && e.CurrentCount >= e.TargetCount
}

func (eliminationStrategy) markers(core.Objective) []Marker { return nil }

// countsKill reports whether a kill of a victim of faction f counts.
func countsKill(e *core.EliminationObjective, f core.Faction) bool {
	if e.TargetFaction != "" && e.TargetFaction != f {
		return false
	}
	if e.ExcludeFaction != "" && e.ExcludeFaction == f {
		return false
	}
	return true
}

type collectionStrategy struct{}

func (collectionStrategy) locate(*core.Objective, core.Point, float64, time.Time) bool {
	return false
}

func (collectionStrategy) met(o core.Objective) bool {
	c := o.ArtifactCollection
	if c == nil || len(c.TargetCounts) == 0 {
		return false
	}
	for typeID, want := range c.TargetCounts {
		if c.CurrentCounts[typeID] < want {
			return false
		}
	}
	return true
}

func (collectionStrategy) markers(core.Objective) []Marker { return nil }

type deliveryStrategy struct{}

func (deliveryStrategy) locate(*core.Objective, core.Point, float64, time.Time) bool {
	return false
}

func (deliveryStrategy) met(o core.Objective) bool {
	return o.Delivery != nil && o.Delivery.Delivered
}

func (deliveryStrategy) markers(o core.Objective) []Marker {
	if o.Delivery == nil {
		return nil
	}
	return []Marker{{Position: o.Delivery.Target, Radius: o.Delivery.Radius, Visited: o.Delivery.Delivered}}
}

// manualStrategy has no machine-checked conditions; the issuer judges.
type manualStrategy struct{}

func (manualStrategy) locate(*core.Objective, core.Point, float64, time.Time) bool {
	return false
}

func (manualStrategy) met(core.Objective) bool { return true }

func (manualStrategy) markers(core.Objective) []Marker { return nil }

// Met reports whether q's objective conditions hold.
func Met(q core.Quest) bool {
	return strategyFor(q.Type).met(q.Objective)
}

// Markers returns the map markers of q, checkpoints in index order.
func Markers(q core.Quest) []Marker {
	ms := strategyFor(q.Type).markers(q.Objective)
	for i := range ms {
		ms[i].QuestID = q.ID
	}
	return ms
}
