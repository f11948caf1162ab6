// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/pdazone/engine/internal/geo"
	"github.com/pdazone/engine/internal/model"
	"github.com/pdazone/engine/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// toJSON encodes a record for a Data column.
func toJSON(v any) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return datatypes.JSON(data), nil
}

// fromJSON decodes a Data column into v.
func fromJSON(data datatypes.JSON, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	return nil
}

// location projects an optional point, returning an empty geometry for nil.
func location(p *core.Point) geom.Point {
	if p == nil {
		return geom.NewEmptyPoint(geom.DimXY)
	}
	return geo.PointGeometry(*p)
}

// CoreToPlayer converts a core.Player to a GORM model.Player.
func CoreToPlayer(p core.Player) (model.Player, error) {
	data, err := toJSON(p)
	return model.Player{
		ID:       p.ID,
		Faction:  string(p.Faction),
		Status:   string(p.Status),
		QRCode:   p.QRCode,
		Location: location(p.Position),
		Data:     data,
		Version:  p.Version,
	}, err
}

// PlayerToCore converts a GORM Player to a core.Player.
// The Version column wins over the version stored in Data.
func PlayerToCore(m model.Player) (core.Player, error) {
	var p core.Player
	err := fromJSON(m.Data, &p)
	p.ID, p.Version = m.ID, m.Version
	return p, err
}

func CoreToZone(z core.Zone) (model.Zone, error) {
	data, err := toJSON(z)
	return model.Zone{
		ID:       z.ID,
		Type:     string(z.Type),
		Location: location(&z.Center),
		Radius:   z.Radius,
		Data:     data,
		Version:  z.Version,
	}, err
}

func ZoneToCore(m model.Zone) (core.Zone, error) {
	var z core.Zone
	err := fromJSON(m.Data, &z)
	z.ID, z.Version = m.ID, m.Version
	return z, err
}

func CoreToZoneControl(c core.ZoneControl) (model.ZoneControl, error) {
	data, err := toJSON(c)
	return model.ZoneControl{
		ZoneID:  c.ZoneID,
		Faction: string(c.Faction),
		Data:    data,
		Version: c.Version,
	}, err
}

func ZoneControlToCore(m model.ZoneControl) (core.ZoneControl, error) {
	var c core.ZoneControl
	err := fromJSON(m.Data, &c)
	c.ZoneID, c.Version = m.ZoneID, m.Version
	return c, err
}

func CoreToArtifact(a core.ArtifactSpawn) (model.Artifact, error) {
	data, err := toJSON(a)
	return model.Artifact{
		ID:       a.ID,
		TypeID:   a.TypeID,
		State:    string(a.State),
		Location: location(&a.Position),
		Data:     data,
		Version:  a.Version,
	}, err
}

func ArtifactToCore(m model.Artifact) (core.ArtifactSpawn, error) {
	var a core.ArtifactSpawn
	err := fromJSON(m.Data, &a)
	a.ID, a.Version = m.ID, m.Version
	return a, err
}

func CoreToAttempt(a core.ExtractionAttempt) (model.ExtractionAttempt, error) {
	data, err := toJSON(a)
	return model.ExtractionAttempt{
		ArtifactID: a.ArtifactID,
		PlayerID:   a.PlayerID,
		StartedAt:  a.StartedAt,
		Data:       data,
		Version:    a.Version,
	}, err
}

func AttemptToCore(m model.ExtractionAttempt) (core.ExtractionAttempt, error) {
	var a core.ExtractionAttempt
	err := fromJSON(m.Data, &a)
	a.ArtifactID, a.Version = m.ArtifactID, m.Version
	return a, err
}

func CoreToItem(i core.Item) (model.Item, error) {
	data, err := toJSON(i)
	return model.Item{ID: i.ID, Kind: string(i.Kind), Data: data, Version: i.Version}, err
}

func ItemToCore(m model.Item) (core.Item, error) {
	var i core.Item
	err := fromJSON(m.Data, &i)
	i.ID, i.Version = m.ID, m.Version
	return i, err
}

func CoreToInventory(inv core.Inventory) (model.Inventory, error) {
	data, err := toJSON(inv)
	return model.Inventory{OwnerID: inv.OwnerID, Data: data, Version: inv.Version}, err
}

func InventoryToCore(m model.Inventory) (core.Inventory, error) {
	var inv core.Inventory
	err := fromJSON(m.Data, &inv)
	inv.OwnerID, inv.Version = m.OwnerID, m.Version
	if inv.Items == nil {
		inv.Items = map[string]int{}
	}
	return inv, err
}

func CoreToQuest(q core.Quest) (model.Quest, error) {
	data, err := toJSON(q)
	return model.Quest{
		ID:         q.ID,
		Type:       string(q.Type),
		Status:     string(q.Status),
		AcceptedBy: q.AcceptedBy,
		Data:       data,
		Version:    q.Version,
	}, err
}

func QuestToCore(m model.Quest) (core.Quest, error) {
	var q core.Quest
	err := fromJSON(m.Data, &q)
	q.ID, q.Version = m.ID, m.Version
	return q, err
}

func CoreToTrader(t core.Trader) (model.Trader, error) {
	data, err := toJSON(t)
	return model.Trader{ID: t.ID, Location: location(&t.Position), Data: data, Version: t.Version}, err
}

func TraderToCore(m model.Trader) (core.Trader, error) {
	var t core.Trader
	err := fromJSON(m.Data, &t)
	t.ID, t.Version = m.ID, m.Version
	return t, err
}

func CoreToSession(s core.TradeSession) (model.TradeSession, error) {
	data, err := toJSON(s)
	return model.TradeSession{
		ID:        s.ID,
		PlayerID:  s.PlayerID,
		TraderID:  s.TraderID,
		ExpiresAt: s.ExpiresAt,
		Data:      data,
		Version:   s.Version,
	}, err
}

func SessionToCore(m model.TradeSession) (core.TradeSession, error) {
	var s core.TradeSession
	err := fromJSON(m.Data, &s)
	s.ID, s.Version = m.ID, m.Version
	return s, err
}

// CoreToGameEvent converts a core.GameEvent to a GORM model.GameEvent. Only
// the Data map goes to the JSON column; Seq is assigned by the database.
func CoreToGameEvent(e core.GameEvent) (model.GameEvent, error) {
	data := datatypes.JSON("{}")
	if len(e.Data) > 0 {
		var err error
		if data, err = toJSON(e.Data); err != nil {
			return model.GameEvent{}, err
		}
	}
	return model.GameEvent{
		ID:       e.ID,
		Type:     string(e.Type),
		PlayerID: e.PlayerID,
		At:       e.At,
		Data:     data,
	}, nil
}

func GameEventToCore(m model.GameEvent) (core.GameEvent, error) {
	e := core.GameEvent{
		ID:       m.ID,
		Type:     core.GameEventType(m.Type),
		PlayerID: m.PlayerID,
		At:       m.At.UTC(),
	}
	var data map[string]any
	if err := fromJSON(m.Data, &data); err != nil {
		return e, err
	}
	if len(data) > 0 {
		e.Data = data
	}
	return e, nil
}
