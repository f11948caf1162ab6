package quest

import (
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/geo"
	"github.com/pdazone/engine/pkg/core"
)

func invalid(format string, args ...any) error {
	return gameerr.Validation(gameerr.CodeInvalidInput, format, args...)
}

// Validate checks that a quest about to be published is well formed: the
// objective carries exactly the variant of its type and sane goals.
func Validate(q core.Quest) error {
	if q.ID == "" {
		return invalid("quest id is required")
	}
	if _, ok := strategies[q.Type]; !ok {
		return invalid("unknown quest type %q", q.Type)
	}
	if q.Reward < 0 {
		return invalid("reward must not be negative")
	}

	o := q.Objective
	set := 0
	for _, present := range []bool{
		o.Visit != nil, o.Patrol != nil, o.Elimination != nil,
		o.ArtifactCollection != nil, o.Delivery != nil, o.Manual != nil,
	} {
		if present {
			set++
		}
	}
	if set > 1 {
		return invalid("objective must have exactly one variant")
	}

	switch q.Type {
	case core.QuestVisit:
		if o.Visit == nil {
			return invalid("visit quest needs a visit objective")
		}
		return circle(o.Visit.Target, o.Visit.Radius)
	case core.QuestPatrol:
		if o.Patrol == nil || len(o.Patrol.Checkpoints) == 0 {
			return invalid("patrol quest needs checkpoints")
		}
		if o.Patrol.RequiredTimeMinutes < 0 {
			return invalid("requiredTimeMinutes must not be negative")
		}
		for _, cp := range o.Patrol.Checkpoints {
			if err := circle(cp.Position, cp.Radius); err != nil {
				return err
			}
		}
	case core.QuestElimination:
		if o.Elimination == nil || o.Elimination.TargetCount <= 0 {
			return invalid("elimination quest needs a positive targetCount")
		}
	case core.QuestArtifactCollection:
		if o.ArtifactCollection == nil || len(o.ArtifactCollection.TargetCounts) == 0 {
			return invalid("artifact_collection quest needs targetCounts")
		}
		for typeID, n := range o.ArtifactCollection.TargetCounts {
			if typeID == "" || n <= 0 {
				return invalid("targetCounts entries must be positive")
			}
		}
	case core.QuestDelivery:
		if o.Delivery == nil || o.Delivery.ItemID == "" {
			return invalid("delivery quest needs an itemId")
		}
		return circle(o.Delivery.Target, o.Delivery.Radius)
	case core.QuestManual:
		if o.Visit != nil || o.Patrol != nil || o.Elimination != nil || o.ArtifactCollection != nil || o.Delivery != nil {
			return invalid("manual quest takes no measurable objective")
		}
	}
	return nil
}

func circle(center core.Point, radius float64) error {
	if err := geo.Validate(center); err != nil {
		return invalid("%v", err)
	}
	if radius <= 0 {
		return invalid("radius must be positive")
	}
	return nil
}
