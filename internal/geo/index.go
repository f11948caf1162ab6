// internal/geo/index.go
package geo

import (
	"sort"
	"time"

	"github.com/pdazone/engine/pkg/core"
)

// NearbyArtifact is an artifact inside the detection radius.
type NearbyArtifact struct {
	Artifact core.ArtifactSpawn
	Distance float64
}

// Index answers containment queries over a snapshot of zones and artifacts.
// It is a linear scan; the entity counts of one game area do not need a tree.
type Index struct {
	zones     []core.Zone
	artifacts []core.ArtifactSpawn
}

// NewIndex builds an index. Zones are ordered by id so query results are stable.
func NewIndex(zones []core.Zone, artifacts []core.ArtifactSpawn) *Index {
	zs := make([]core.Zone, len(zones))
	copy(zs, zones)
	sort.SliceStable(zs, func(i, j int) bool { return zs[i].ID < zs[j].ID })

	as := make([]core.ArtifactSpawn, len(artifacts))
	copy(as, artifacts)
	sort.SliceStable(as, func(i, j int) bool { return as[i].ID < as[j].ID })

	return &Index{zones: zs, artifacts: as}
}

// Zones returns the active zones of kind containing p.
func (ix *Index) Zones(p core.Point, kind core.ZoneType, now time.Time) []core.Zone {
	var out []core.Zone
	for _, z := range ix.zones {
		if z.Type != kind || !z.ActiveAt(now) {
			continue
		}
		if Within(p, z.Center, z.Radius) {
			out = append(out, z)
		}
	}
	return out
}

// AllZones returns the active zones of any kind containing p.
func (ix *Index) AllZones(p core.Point, now time.Time) []core.Zone {
	var out []core.Zone
	for _, z := range ix.zones {
		if z.ActiveAt(now) && Within(p, z.Center, z.Radius) {
			out = append(out, z)
		}
	}
	return out
}

// Artifacts returns visible, unexpired artifacts within radius of p, nearest first.
func (ix *Index) Artifacts(p core.Point, radius float64, now time.Time) []NearbyArtifact {
	var out []NearbyArtifact
	for _, a := range ix.artifacts {
		if a.State != core.ArtifactVisible || a.ExpiredAt(now) {
			continue
		}
		d := Distance(p, a.Position)
		if d <= radius {
			out = append(out, NearbyArtifact{Artifact: a, Distance: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// Checkpoints returns the indexes of the checkpoints containing p, ascending.
// Order is by checkpoint index, never by distance.
func Checkpoints(p core.Point, cps []core.Checkpoint) []int {
	var out []int
	for i, cp := range cps {
		if Within(p, cp.Position, cp.Radius) {
			out = append(out, i)
		}
	}
	return out
}
