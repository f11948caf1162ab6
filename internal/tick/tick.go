// internal/tick/tick.go
package tick

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/geo"
	"github.com/pdazone/engine/internal/loot"
	"github.com/pdazone/engine/internal/quest"
	"github.com/pdazone/engine/internal/radiation"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/pkg/core"
)

// Report is one location report from a client. Seq is a per-player counter
// used to drop redelivered reports; zero disables the check.
type Report struct {
	Position core.Point `json:"position"`
	Accuracy float64    `json:"accuracy,omitempty"`
	Seq      uint64     `json:"seq,omitempty"`
}

// ZoneHit is a zone containing the reported position.
type ZoneHit struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Type           core.ZoneType `json:"type"`
	RadiationLevel float64       `json:"radiationLevel,omitempty"`
	OwnerFaction   core.Faction  `json:"ownerFaction,omitempty"`
}

// ArtifactHit is a detected artifact. Eligible artifacts are within pickup range.
type ArtifactHit struct {
	ID       string     `json:"id"`
	TypeID   string     `json:"typeId"`
	Position core.Point `json:"position"`
	Distance float64    `json:"distance"`
	Eligible bool       `json:"eligible"`
}

// Capture reports progress on the control point the player stands in.
type Capture struct {
	ZoneID   string       `json:"zoneId"`
	Owner    core.Faction `json:"owner,omitempty"`
	Seconds  float64      `json:"seconds"`
	Required float64      `json:"required"`
	Captured bool         `json:"captured"`
}

// QuestUpdate summarizes a quest touched by the tick.
type QuestUpdate struct {
	ID     string           `json:"id"`
	Status core.QuestStatus `json:"status"`
}

// Diff is what one tick changed, returned to the reporting client.
type Diff struct {
	Duplicate bool              `json:"duplicate,omitempty"`
	Status    core.PlayerStatus `json:"status"`
	Elapsed   float64           `json:"elapsedSeconds"`

	RadiationDelta   float64 `json:"radiationDelta"`
	CurrentRadiation float64 `json:"currentRadiation"`
	CurrentLives     int     `json:"currentLives"`

	Zones           []ZoneHit      `json:"zonesEntered"`
	NearbyArtifacts []ArtifactHit  `json:"nearbyArtifacts"`
	QuestMarkers    []quest.Marker `json:"questMarkers"`
	Quests          []QuestUpdate  `json:"quests,omitempty"`
	Capture         *Capture       `json:"capture,omitempty"`

	Death                       bool     `json:"death"`
	ItemsLost                   []string `json:"itemsLost,omitempty"`
	Resurrection                bool     `json:"resurrection"`
	ResurrectionProgressSeconds float64  `json:"resurrectionProgressSeconds"`
	ResurrectionRequiredSeconds float64  `json:"resurrectionRequiredSeconds,omitempty"`
}

// Processor turns location reports into player state changes.
type Processor struct {
	cfg    config.EngineConfig
	rad    *radiation.Accumulator
	loss   loot.Policy
	roll   loot.Roller
	quests *quest.Engine
	log    *slog.Logger
}

// New creates a processor. A nil roller uses math/rand.
func New(cfg config.EngineConfig, quests *quest.Engine, roll loot.Roller, log *slog.Logger) (*Processor, error) {
	stacking, err := radiation.ParseStacking(cfg.RadiationStacking)
	if err != nil {
		return nil, err
	}
	if roll == nil {
		roll = loot.NewRoller()
	}
	if log == nil {
		log = slog.Default()
	}
	rad := radiation.New(cfg.MaxResist)
	rad.Stacking = stacking
	return &Processor{cfg: cfg, rad: rad, loss: loot.PolicyFrom(cfg), roll: roll, quests: quests, log: log}, nil
}

// elapsed returns the seconds since the last report, capped.
func (pr *Processor) elapsed(p core.Player, now time.Time) float64 {
	if p.LastReportAt == nil {
		return 0
	}
	dt := now.Sub(*p.LastReportAt)
	if dt < 0 {
		return 0
	}
	if pr.cfg.MaxTickElapsed > 0 && dt > pr.cfg.MaxTickElapsed {
		dt = pr.cfg.MaxTickElapsed
	}
	return dt.Seconds()
}

// Apply runs one tick for p inside tx. zones is the current zone set; p is
// mutated and the caller writes it.
func (pr *Processor) Apply(tx storage.Tx, p *core.Player, r Report, zones []core.Zone, now time.Time) (Diff, error) {
	if err := geo.Validate(r.Position); err != nil {
		return Diff{}, gameerr.Validation(gameerr.CodeInvalidInput, "%v", err)
	}
	if r.Seq != 0 && r.Seq <= p.LastReportSeq {
		return Diff{
			Duplicate:        true,
			Status:           p.Status,
			CurrentRadiation: p.CurrentRadiation,
			CurrentLives:     p.CurrentLives,
		}, nil
	}

	dt := pr.elapsed(*p, now)
	pos := r.Position
	p.Position = &pos
	p.LastReportAt = &now
	if r.Seq != 0 {
		p.LastReportSeq = r.Seq
	}

	artifacts, err := tx.Artifacts()
	if err != nil {
		return Diff{}, err
	}
	ix := geo.NewIndex(zones, artifacts)
	inside := ix.AllZones(pos, now)

	diff := Diff{Elapsed: dt}
	for _, z := range inside {
		diff.Zones = append(diff.Zones, ZoneHit{ID: z.ID, Name: z.Name, Type: z.Type, RadiationLevel: z.RadiationLevel})
	}

	if p.Alive() {
		res := pr.rad.Apply(p, ix.Zones(pos, core.ZoneRadiation, now), dt)
		diff.RadiationDelta = res.Delta
		if res.Died {
			pr.log.Info("player died of radiation", "player", p.ID, "zone", res.ZoneID, "radiation", p.CurrentRadiation)
			lost, err := pr.die(tx, p, map[string]any{"cause": "radiation", "zoneId": res.ZoneID, "radiation": p.CurrentRadiation}, now)
			if err != nil {
				return Diff{}, err
			}
			diff.Death = true
			diff.ItemsLost = lost
			return pr.finish(diff, *p), nil
		}
	} else {
		resurrected, required, err := pr.respawn(tx, p, ix.Zones(pos, core.ZoneRespawn, now), dt, now)
		if err != nil {
			return Diff{}, err
		}
		diff.Resurrection = resurrected
		diff.ResurrectionRequiredSeconds = required
	}

	if !p.Alive() {
		return pr.finish(diff, *p), nil
	}

	quests, err := tx.QuestsAcceptedBy(p.ID)
	if err != nil {
		return Diff{}, err
	}
	changes, err := pr.quests.Advance(tx, p, quests, dt, now)
	if err != nil {
		return Diff{}, err
	}
	for _, ch := range changes {
		diff.Quests = append(diff.Quests, QuestUpdate{ID: ch.Quest.ID, Status: ch.Quest.Status})
	}
	active, err := tx.QuestsAcceptedBy(p.ID)
	if err != nil {
		return Diff{}, err
	}
	for _, q := range active {
		diff.QuestMarkers = append(diff.QuestMarkers, quest.Markers(q)...)
	}

	capture, err := pr.capture(tx, p, ix.Zones(pos, core.ZoneControlPoint, now), dt, now)
	if err != nil {
		return Diff{}, err
	}
	diff.Capture = capture
	if capture != nil {
		for i := range diff.Zones {
			if diff.Zones[i].ID == capture.ZoneID {
				diff.Zones[i].OwnerFaction = capture.Owner
			}
		}
	}

	for _, hit := range ix.Artifacts(pos, pr.cfg.DetectionRadiusMeters, now) {
		diff.NearbyArtifacts = append(diff.NearbyArtifacts, ArtifactHit{
			ID:       hit.Artifact.ID,
			TypeID:   hit.Artifact.TypeID,
			Position: hit.Artifact.Position,
			Distance: math.Round(hit.Distance*10) / 10,
			Eligible: hit.Distance <= pr.cfg.PickupRadiusMeters,
		})
	}
	return pr.finish(diff, *p), nil
}

func (pr *Processor) finish(d Diff, p core.Player) Diff {
	d.Status = p.Status
	d.CurrentRadiation = p.CurrentRadiation
	d.CurrentLives = p.CurrentLives
	d.ResurrectionProgressSeconds = p.ResurrectionProgressSeconds
	return d
}

// Kill applies a death the player reported themselves, e.g. a hit in the
// field. p is mutated and the caller writes it.
func (pr *Processor) Kill(tx storage.Tx, p *core.Player, now time.Time) (Diff, error) {
	if !p.Alive() {
		return Diff{}, gameerr.Precondition(gameerr.CodePlayerDead, "player %s is already dead", p.ID)
	}
	pr.log.Info("player reported death", "player", p.ID)
	lost, err := pr.die(tx, p, map[string]any{"cause": "reported"}, now)
	if err != nil {
		return Diff{}, err
	}
	return pr.finish(Diff{Death: true, ItemsLost: lost}, *p), nil
}

// die is the alive to dead transition. It returns the items destroyed.
func (pr *Processor) die(tx storage.Tx, p *core.Player, data map[string]any, now time.Time) ([]string, error) {
	p.Status = core.StatusDead
	p.DiedAt = &now
	p.Stats.Deaths++
	p.ResurrectionProgressSeconds = 0
	p.Capture = nil

	lost, err := loot.LoseOnDeath(tx, p, pr.loss, pr.roll)
	if err != nil {
		return nil, err
	}
	if len(lost) > 0 {
		data["itemsLost"] = lost
	}
	if err := tx.AppendEvent(&core.GameEvent{Type: core.EventDeath, PlayerID: p.ID, At: now, Data: data}); err != nil {
		return nil, err
	}
	if pr.cfg.FailQuestsOnDeath {
		if _, err := pr.quests.FailAll(tx, p.ID, core.FailPlayerDeath, now); err != nil {
			return nil, err
		}
	}
	return lost, nil
}

// respawn advances resurrection progress while a dead player stands in a
// respawn zone and resets it outside. It returns whether the player came
// back and the seconds required by the zone.
func (pr *Processor) respawn(tx storage.Tx, p *core.Player, zones []core.Zone, dt float64, now time.Time) (bool, float64, error) {
	if len(zones) == 0 {
		p.ResurrectionProgressSeconds = 0
		return false, 0, nil
	}
	zone := zones[0]
	for _, z := range zones[1:] {
		if z.RespawnTimeSeconds < zone.RespawnTimeSeconds {
			zone = z
		}
	}
	required := zone.RespawnTimeSeconds

	p.ResurrectionProgressSeconds += dt
	if p.CurrentLives <= 0 || p.ResurrectionProgressSeconds < required {
		return false, required, nil
	}

	p.Status = core.StatusAlive
	p.CurrentLives--
	p.CurrentRadiation = 0
	p.ResurrectionProgressSeconds = 0
	p.DiedAt = nil
	pr.log.Info("player resurrected", "player", p.ID, "zone", zone.ID, "livesLeft", p.CurrentLives)
	err := tx.AppendEvent(&core.GameEvent{
		Type: core.EventResurrection, PlayerID: p.ID, At: now,
		Data: map[string]any{"zoneId": zone.ID, "livesLeft": p.CurrentLives},
	})
	return true, required, err
}

// capture accumulates time for a player standing in a control point held by
// another faction and records the new owner once the capture time is reached.
func (pr *Processor) capture(tx storage.Tx, p *core.Player, points []core.Zone, dt float64, now time.Time) (*Capture, error) {
	if len(points) == 0 || p.Faction == "" {
		p.Capture = nil
		return nil, nil
	}
	z := points[0]
	ctl, err := tx.ZoneControl(z.ID)
	if errors.Is(err, storage.ErrNotFound) {
		ctl = core.ZoneControl{ZoneID: z.ID}
	} else if err != nil {
		return nil, err
	}

	required := pr.cfg.CaptureTime.Seconds()
	out := &Capture{ZoneID: z.ID, Owner: ctl.Faction, Required: required}
	if ctl.Faction == p.Faction {
		p.Capture = nil
		return out, nil
	}
	if p.Capture == nil || p.Capture.ZoneID != z.ID {
		p.Capture = &core.CaptureProgress{ZoneID: z.ID}
	}
	p.Capture.Seconds += dt
	out.Seconds = p.Capture.Seconds
	if p.Capture.Seconds < required {
		return out, nil
	}

	previous := ctl.Faction
	ctl.Faction = p.Faction
	ctl.PlayerID = p.ID
	ctl.CapturedAt = now
	if err := tx.PutZoneControl(&ctl); err != nil {
		return nil, err
	}
	if err := tx.AppendEvent(&core.GameEvent{
		Type: core.EventCapture, PlayerID: p.ID, At: now,
		Data: map[string]any{"zoneId": z.ID, "faction": string(p.Faction), "previous": string(previous)},
	}); err != nil {
		return nil, err
	}
	pr.log.Info("control point captured", "zone", z.ID, "faction", p.Faction, "player", p.ID)
	p.Capture = nil
	out.Owner = p.Faction
	out.Captured = true
	return out, nil
}
