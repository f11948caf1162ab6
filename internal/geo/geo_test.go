package geo

import (
	"math"
	"testing"
	"time"

	"github.com/pdazone/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = core.Point{Lat: 51.3890, Lng: 30.0990}

// offsetNorth moves p north by meters.
func offsetNorth(p core.Point, meters float64) core.Point {
	return core.Point{Lat: p.Lat + meters/EarthRadiusMeters*180/math.Pi, Lng: p.Lng}
}

func TestDistance_SamePoint(t *testing.T) {
	assert.Equal(t, 0.0, Distance(base, base))
}

func TestDistance_KnownValue(t *testing.T) {
	// one degree of latitude on the 6371 km sphere
	d := Distance(core.Point{Lat: 0, Lng: 0}, core.Point{Lat: 1, Lng: 0})
	assert.InDelta(t, 111194.9, d, 0.5)
}

func TestDistance_Symmetric(t *testing.T) {
	other := core.Point{Lat: 51.40, Lng: 30.12}
	assert.InDelta(t, Distance(base, other), Distance(other, base), 1e-9)
}

func TestWithin_Boundary(t *testing.T) {
	p := offsetNorth(base, 10)
	assert.True(t, Within(p, base, 10.001))
	assert.False(t, Within(p, base, 9.9))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(base))
	assert.ErrorIs(t, Validate(core.Point{Lat: 91, Lng: 0}), ErrInvalidCoordinates)
	assert.ErrorIs(t, Validate(core.Point{Lat: 0, Lng: -181}), ErrInvalidCoordinates)
	assert.ErrorIs(t, Validate(core.Point{Lat: math.NaN(), Lng: 0}), ErrInvalidCoordinates)
}

func TestCoords3857From4326_Origin(t *testing.T) {
	point, err := Coords3857From4326(0, 0)
	require.NoError(t, err)

	coords, ok := point.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 0, coords.X, 0.001)
	assert.InDelta(t, 0, coords.Y, 0.001)
}

func TestCoords3857From4326_Projects(t *testing.T) {
	point, err := Coords3857From4326(30.0990, 51.3890)
	require.NoError(t, err)

	coords, ok := point.Coordinates()
	require.True(t, ok)
	// x = R_merc * lng in radians
	assert.InDelta(t, 6378137*30.0990*math.Pi/180, coords.X, 10)
	assert.Greater(t, coords.Y, 6.0e6)
}

func TestPointGeometry(t *testing.T) {
	pt := PointGeometry(base)
	assert.False(t, pt.IsEmpty())
}

func zone(id string, kind core.ZoneType, center core.Point, radius float64) core.Zone {
	return core.Zone{ID: id, Type: kind, Center: center, Radius: radius, IsActive: true}
}

func TestIndex_ZonesFiltersKindAndActivity(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	inactive := zone("z-inactive", core.ZoneRadiation, base, 50)
	inactive.IsActive = false
	notYet := zone("z-future", core.ZoneRadiation, base, 50)
	notYet.ActiveFrom = &later
	ended := zone("z-ended", core.ZoneRadiation, base, 50)
	ended.ActiveTo = &earlier
	zeroRadius := zone("z-zero", core.ZoneRadiation, base, 0)

	ix := NewIndex([]core.Zone{
		zone("z-b", core.ZoneRadiation, base, 50),
		zone("z-a", core.ZoneRadiation, base, 50),
		zone("z-far", core.ZoneRadiation, offsetNorth(base, 500), 50),
		zone("z-respawn", core.ZoneRespawn, base, 50),
		inactive, notYet, ended, zeroRadius,
	}, nil)

	got := ix.Zones(base, core.ZoneRadiation, now)
	require.Len(t, got, 2)
	assert.Equal(t, "z-a", got[0].ID)
	assert.Equal(t, "z-b", got[1].ID)

	respawn := ix.Zones(base, core.ZoneRespawn, now)
	require.Len(t, respawn, 1)
	assert.Equal(t, "z-respawn", respawn[0].ID)

	assert.Len(t, ix.AllZones(base, now), 3)
}

func TestIndex_OutsideEveryZone(t *testing.T) {
	ix := NewIndex([]core.Zone{zone("z", core.ZoneRadiation, base, 20)}, nil)
	assert.Empty(t, ix.Zones(offsetNorth(base, 25), core.ZoneRadiation, time.Now()))
}

func TestIndex_ArtifactsNearestFirst(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	ix := NewIndex(nil, []core.ArtifactSpawn{
		{ID: "a-far", State: core.ArtifactVisible, Position: offsetNorth(base, 12)},
		{ID: "a-near", State: core.ArtifactVisible, Position: offsetNorth(base, 1)},
		{ID: "a-out", State: core.ArtifactVisible, Position: offsetNorth(base, 40)},
		{ID: "a-hidden", State: core.ArtifactHidden, Position: base},
		{ID: "a-busy", State: core.ArtifactExtracting, Position: base},
		{ID: "a-expired", State: core.ArtifactVisible, Position: base, ExpiresAt: &past},
	})

	got := ix.Artifacts(base, 15, now)
	require.Len(t, got, 2)
	assert.Equal(t, "a-near", got[0].Artifact.ID)
	assert.InDelta(t, 1, got[0].Distance, 0.01)
	assert.Equal(t, "a-far", got[1].Artifact.ID)
}

func TestCheckpoints_OrderedByIndex(t *testing.T) {
	cps := []core.Checkpoint{
		{Position: offsetNorth(base, 5), Radius: 10},
		{Position: offsetNorth(base, 500), Radius: 10},
		{Position: base, Radius: 10},
	}
	// checkpoint 2 is nearer than 0 but comes after it
	assert.Equal(t, []int{0, 2}, Checkpoints(base, cps))
	assert.Empty(t, Checkpoints(offsetNorth(base, 200), cps))
}
