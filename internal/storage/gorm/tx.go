package gormstorage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pdazone/engine/internal/model"
	"github.com/pdazone/engine/internal/model/convert"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/pkg/core"
	"gorm.io/gorm"
)

type tx struct {
	db       *gorm.DB
	readOnly bool
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrConflict
	}
	return err
}

func get[M, T any](t *tx, conv func(M) (T, error), key, id string) (T, error) {
	var row M
	if err := t.db.Where(key+" = ?", id).Take(&row).Error; err != nil {
		var zero T
		return zero, translate(err)
	}
	return conv(row)
}

func list[M, T any](q *gorm.DB, conv func(M) (T, error)) ([]T, error) {
	var rows []M
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := conv(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func exists[M any](t *tx, key, id string) (bool, error) {
	var n int64
	if err := t.db.Model(new(M)).Where(key+" = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// put bumps *version and writes the row built from the bumped record. A
// zero version inserts; anything else updates only if the stored version
// still matches. *version is restored on failure.
func put[M any](t *tx, key, id string, version *int64, build func() (M, error)) (err error) {
	if t.readOnly {
		return errReadOnly
	}
	if id == "" {
		return fmt.Errorf("put %T: empty id", *new(M))
	}
	base := *version
	*version = base + 1
	defer func() {
		if err != nil {
			*version = base
		}
	}()

	row, err := build()
	if err != nil {
		return err
	}

	if base == 0 {
		found, err := exists[M](t, key, id)
		if err != nil {
			return err
		}
		if found {
			return storage.ErrConflict
		}
		return translate(t.db.Create(&row).Error)
	}

	res := t.db.Model(&row).Where("version = ?", base).Select("*").Updates(&row)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrConflict
	}
	return nil
}

func del[M any](t *tx, key, id string, version int64) error {
	if t.readOnly {
		return errReadOnly
	}
	res := t.db.Where(key+" = ? AND version = ?", id, version).Delete(new(M))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	found, err := exists[M](t, key, id)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

func (t *tx) Player(id string) (core.Player, error) {
	return get(t, convert.PlayerToCore, "id", id)
}

func (t *tx) PutPlayer(p *core.Player) error {
	return put(t, "id", p.ID, &p.Version, func() (model.Player, error) { return convert.CoreToPlayer(*p) })
}

func (t *tx) PlayerByQRCode(code string) (core.Player, error) {
	if code == "" {
		return core.Player{}, storage.ErrNotFound
	}
	return get(t, convert.PlayerToCore, "qr_code", code)
}

func (t *tx) Zone(id string) (core.Zone, error) {
	return get(t, convert.ZoneToCore, "id", id)
}

func (t *tx) Zones() ([]core.Zone, error) {
	return list(t.db.Order("id"), convert.ZoneToCore)
}

func (t *tx) PutZone(z *core.Zone) error {
	return put(t, "id", z.ID, &z.Version, func() (model.Zone, error) { return convert.CoreToZone(*z) })
}

func (t *tx) ZoneControl(zoneID string) (core.ZoneControl, error) {
	return get(t, convert.ZoneControlToCore, "zone_id", zoneID)
}

func (t *tx) PutZoneControl(c *core.ZoneControl) error {
	return put(t, "zone_id", c.ZoneID, &c.Version, func() (model.ZoneControl, error) { return convert.CoreToZoneControl(*c) })
}

func (t *tx) Artifact(id string) (core.ArtifactSpawn, error) {
	return get(t, convert.ArtifactToCore, "id", id)
}

func (t *tx) Artifacts() ([]core.ArtifactSpawn, error) {
	return list(t.db.Order("id"), convert.ArtifactToCore)
}

func (t *tx) PutArtifact(a *core.ArtifactSpawn) error {
	return put(t, "id", a.ID, &a.Version, func() (model.Artifact, error) { return convert.CoreToArtifact(*a) })
}

func (t *tx) Attempt(artifactID string) (core.ExtractionAttempt, error) {
	return get(t, convert.AttemptToCore, "artifact_id", artifactID)
}

func (t *tx) Attempts() ([]core.ExtractionAttempt, error) {
	return list(t.db.Order("artifact_id"), convert.AttemptToCore)
}

func (t *tx) PutAttempt(a *core.ExtractionAttempt) error {
	return put(t, "artifact_id", a.ArtifactID, &a.Version, func() (model.ExtractionAttempt, error) { return convert.CoreToAttempt(*a) })
}

func (t *tx) DeleteAttempt(a core.ExtractionAttempt) error {
	return del[model.ExtractionAttempt](t, "artifact_id", a.ArtifactID, a.Version)
}

func (t *tx) Item(id string) (core.Item, error) {
	return get(t, convert.ItemToCore, "id", id)
}

func (t *tx) PutItem(i *core.Item) error {
	return put(t, "id", i.ID, &i.Version, func() (model.Item, error) { return convert.CoreToItem(*i) })
}

func (t *tx) Inventory(ownerID string) (core.Inventory, error) {
	inv, err := get(t, convert.InventoryToCore, "owner_id", ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Inventory{OwnerID: ownerID, Items: map[string]int{}}, nil
	}
	return inv, err
}

func (t *tx) PutInventory(inv *core.Inventory) error {
	return put(t, "owner_id", inv.OwnerID, &inv.Version, func() (model.Inventory, error) { return convert.CoreToInventory(*inv) })
}

func (t *tx) Quest(id string) (core.Quest, error) {
	return get(t, convert.QuestToCore, "id", id)
}

func (t *tx) QuestsAcceptedBy(playerID string) ([]core.Quest, error) {
	q := t.db.Where("accepted_by = ? AND status IN ?", playerID,
		[]string{string(core.QuestAccepted), string(core.QuestInProgress)}).Order("id")
	return list(q, convert.QuestToCore)
}

func (t *tx) PutQuest(q *core.Quest) error {
	return put(t, "id", q.ID, &q.Version, func() (model.Quest, error) { return convert.CoreToQuest(*q) })
}

func (t *tx) Trader(id string) (core.Trader, error) {
	return get(t, convert.TraderToCore, "id", id)
}

func (t *tx) PutTrader(tr *core.Trader) error {
	return put(t, "id", tr.ID, &tr.Version, func() (model.Trader, error) { return convert.CoreToTrader(*tr) })
}

func (t *tx) Session(id string) (core.TradeSession, error) {
	return get(t, convert.SessionToCore, "id", id)
}

func (t *tx) SessionFor(playerID, traderID string) (core.TradeSession, error) {
	var row model.TradeSession
	err := t.db.Where("player_id = ? AND trader_id = ?", playerID, traderID).Take(&row).Error
	if err != nil {
		return core.TradeSession{}, translate(err)
	}
	return convert.SessionToCore(row)
}

func (t *tx) Sessions() ([]core.TradeSession, error) {
	return list(t.db.Order("id"), convert.SessionToCore)
}

// PutSession refuses to create a second session for a (player, trader)
// pair. The unique index backs this up against concurrent creators.
func (t *tx) PutSession(s *core.TradeSession) error {
	if s.Version == 0 && !t.readOnly {
		_, err := t.SessionFor(s.PlayerID, s.TraderID)
		if err == nil {
			return storage.ErrConflict
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return put(t, "id", s.ID, &s.Version, func() (model.TradeSession, error) { return convert.CoreToSession(*s) })
}

func (t *tx) DeleteSession(s core.TradeSession) error {
	return del[model.TradeSession](t, "id", s.ID, s.Version)
}

func (t *tx) AppendEvent(e *core.GameEvent) error {
	if t.readOnly {
		return errReadOnly
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row, err := convert.CoreToGameEvent(*e)
	if err != nil {
		return err
	}
	return translate(t.db.Create(&row).Error)
}

func (t *tx) Events(playerID string) ([]core.GameEvent, error) {
	q := t.db.Order("at").Order("seq")
	if playerID != "" {
		q = q.Where("player_id = ?", playerID)
	}
	return list(q, convert.GameEventToCore)
}
