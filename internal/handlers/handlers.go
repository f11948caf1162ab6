package handlers

import (
	"context"
	"time"

	"github.com/pdazone/engine/internal/dispatcher"
	"github.com/pdazone/engine/internal/engine"
	"github.com/pdazone/engine/internal/extraction"
	"github.com/pdazone/engine/internal/identity"
	"github.com/pdazone/engine/internal/quest"
	"github.com/pdazone/engine/internal/tick"
	"github.com/pdazone/engine/pkg/core"
)

// Commands routed through the dispatcher.
const (
	CmdReportLocation     = "location.report"
	CmdPlayer             = "player.get"
	CmdInventory          = "inventory.get"
	CmdEvents             = "events.list"
	CmdStartExtraction    = "extraction.start"
	CmdCompleteExtraction = "extraction.complete"
	CmdCancelExtraction   = "extraction.cancel"
	CmdQuests             = "quest.list"
	CmdAcceptQuest        = "quest.accept"
	CmdCancelQuest        = "quest.cancel"
	CmdClaimQuest         = "quest.claim"
	CmdDeliverQuest       = "quest.deliver"
	CmdConfirmQuest       = "quest.confirm"
	CmdStartTrade         = "trade.start"
	CmdCatalog            = "trade.catalog"
	CmdSettleTrade        = "trade.settle"
	CmdUseItem            = "inventory.use"
	CmdEquipItem          = "inventory.equip"
	CmdUnequipItem        = "inventory.unequip"
	CmdRedeemItem         = "inventory.redeem"
	CmdReportDeath        = "player.death"
	CmdLootPlayer         = "player.loot"
	CmdDropArtifact       = "artifact.drop"

	CmdRegisterPlayer = "admin.player"
	CmdUpsertZone     = "admin.zone"
	CmdSpawnArtifact  = "admin.artifact"
	CmdUpsertItem     = "admin.item"
	CmdUpsertTrader   = "admin.trader"
	CmdStockInventory = "admin.inventory"
	CmdPublishQuest   = "admin.quest"
	CmdRecordKill     = "admin.kill"
)

// Service adapts dispatcher events to engine calls.
type Service struct {
	engine  *engine.Engine
	schemas *Schemas
}

// NewService creates a new handler service
func NewService(e *engine.Engine) (*Service, error) {
	schemas, err := LoadSchemas()
	if err != nil {
		return nil, err
	}
	return &Service{engine: e, schemas: schemas}, nil
}

// Register binds every engine command to d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	commands := map[string]dispatcher.HandlerFunc{
		CmdReportLocation:     s.ReportLocation,
		CmdPlayer:             s.Player,
		CmdInventory:          s.Inventory,
		CmdEvents:             s.Events,
		CmdStartExtraction:    s.StartExtraction,
		CmdCompleteExtraction: s.CompleteExtraction,
		CmdCancelExtraction:   s.CancelExtraction,
		CmdQuests:             s.Quests,
		CmdAcceptQuest:        s.questAction(s.engine.AcceptQuest),
		CmdCancelQuest:        s.questAction(s.engine.CancelQuest),
		CmdClaimQuest:         s.questAction(s.engine.ClaimQuest),
		CmdDeliverQuest:       s.questAction(s.engine.DeliverQuest),
		CmdConfirmQuest:       s.questAction(s.engine.ConfirmQuest),
		CmdStartTrade:         s.StartTrade,
		CmdCatalog:            s.Catalog,
		CmdSettleTrade:        s.SettleTrade,
		CmdUseItem:            s.itemAction(s.engine.UseConsumable),
		CmdEquipItem:          s.itemAction(s.engine.EquipItem),
		CmdUnequipItem:        s.itemAction(s.engine.UnequipItem),
		CmdRedeemItem:         s.RedeemItem,
		CmdReportDeath:        s.ReportDeath,
		CmdLootPlayer:         s.LootPlayer,
		CmdDropArtifact:       s.DropArtifact,
		CmdRegisterPlayer:     s.RegisterPlayer,
		CmdUpsertZone:         s.UpsertZone,
		CmdSpawnArtifact:      s.SpawnArtifact,
		CmdUpsertItem:         s.UpsertItem,
		CmdUpsertTrader:       s.UpsertTrader,
		CmdStockInventory:     s.StockInventory,
		CmdPublishQuest:       s.PublishQuest,
		CmdRecordKill:         s.RecordKill,
	}
	for name, h := range commands {
		d.Register(name, h, dispatcher.Logged())
	}
}

// ReportLocation runs one location tick for the caller.
func (s *Service) ReportLocation(ctx context.Context, e dispatcher.Event) (any, error) {
	var r tick.Report
	if err := s.schemas.Decode(SchemaLocation, e.Body, &r); err != nil {
		return nil, err
	}
	return s.engine.ReportLocation(ctx, e.Caller, r)
}

func (s *Service) Player(ctx context.Context, e dispatcher.Event) (any, error) {
	return s.engine.Player(ctx, e.Caller)
}

func (s *Service) Inventory(ctx context.Context, e dispatcher.Event) (any, error) {
	return s.engine.Inventory(ctx, e.Caller)
}

func (s *Service) Events(ctx context.Context, e dispatcher.Event) (any, error) {
	return s.engine.Events(ctx, e.Caller)
}

// ExtractionResponse is the client view of an extraction step.
type ExtractionResponse struct {
	Artifact         core.ArtifactSpawn `json:"artifact"`
	StartedAt        *time.Time         `json:"startedAt,omitempty"`
	RemainingSeconds float64            `json:"remainingSeconds"`
	Quests           []QuestChange      `json:"quests,omitempty"`
}

// QuestChange reports a quest moved by a side effect.
type QuestChange struct {
	QuestID   string           `json:"questId"`
	Status    core.QuestStatus `json:"status"`
	Completed bool             `json:"completed"`
	Failed    bool             `json:"failed"`
}

func questChanges(changes []quest.Change) []QuestChange {
	if len(changes) == 0 {
		return nil
	}
	out := make([]QuestChange, 0, len(changes))
	for _, c := range changes {
		out = append(out, QuestChange{
			QuestID:   c.Quest.ID,
			Status:    c.Quest.Status,
			Completed: c.Completed,
			Failed:    c.Failed,
		})
	}
	return out
}

func extractionResponse(r extraction.Result) ExtractionResponse {
	resp := ExtractionResponse{
		Artifact:         r.Artifact,
		RemainingSeconds: r.Remaining.Seconds(),
		Quests:           questChanges(r.QuestChanges),
	}
	if r.Attempt != nil {
		started := r.Attempt.StartedAt
		resp.StartedAt = &started
	}
	return resp
}

func (s *Service) StartExtraction(ctx context.Context, e dispatcher.Event) (any, error) {
	r, err := s.engine.StartExtraction(ctx, e.Caller, e.Param("id"))
	if err != nil {
		return nil, err
	}
	return extractionResponse(r), nil
}

func (s *Service) CompleteExtraction(ctx context.Context, e dispatcher.Event) (any, error) {
	r, err := s.engine.CompleteExtraction(ctx, e.Caller, e.Param("id"))
	if err != nil {
		return nil, err
	}
	return extractionResponse(r), nil
}

func (s *Service) CancelExtraction(ctx context.Context, e dispatcher.Event) (any, error) {
	r, err := s.engine.CancelExtraction(ctx, e.Caller, e.Param("id"))
	if err != nil {
		return nil, err
	}
	return extractionResponse(r), nil
}

func (s *Service) Quests(ctx context.Context, e dispatcher.Event) (any, error) {
	return s.engine.Quests(ctx, e.Caller)
}

type questFunc func(context.Context, identity.Identity, string) (core.Quest, error)

func (s *Service) questAction(fn questFunc) dispatcher.HandlerFunc {
	return func(ctx context.Context, e dispatcher.Event) (any, error) {
		return fn(ctx, e.Caller, e.Param("id"))
	}
}

type itemFunc func(context.Context, identity.Identity, string) (core.Player, error)

func (s *Service) itemAction(fn itemFunc) dispatcher.HandlerFunc {
	return func(ctx context.Context, e dispatcher.Event) (any, error) {
		return fn(ctx, e.Caller, e.Param("itemId"))
	}
}

func (s *Service) StartTrade(ctx context.Context, e dispatcher.Event) (any, error) {
	return s.engine.StartTradeSession(ctx, e.Caller, e.Param("id"))
}

func (s *Service) Catalog(ctx context.Context, e dispatcher.Event) (any, error) {
	return s.engine.Catalog(ctx, e.Caller, e.Param("id"))
}

// SettleRequest is the body of a trade settlement.
type SettleRequest struct {
	Direction core.TradeDirection `json:"direction"`
	Items     []core.LineItem     `json:"items"`
}

func (s *Service) SettleTrade(ctx context.Context, e dispatcher.Event) (any, error) {
	var req SettleRequest
	if err := s.schemas.Decode(SchemaSettle, e.Body, &req); err != nil {
		return nil, err
	}
	return s.engine.SettleTrade(ctx, e.Caller, e.Param("id"), req.Items, req.Direction)
}

func (s *Service) RedeemItem(ctx context.Context, e dispatcher.Event) (any, error) {
	return s.engine.RedeemItem(ctx, e.Caller, e.Param("itemId"))
}

func (s *Service) ReportDeath(ctx context.Context, e dispatcher.Event) (any, error) {
	return s.engine.ReportDeath(ctx, e.Caller)
}

// LootRequest is the body of a looting: the scanned badge of the victim.
type LootRequest struct {
	VictimQRCode string `json:"victimQrCode"`
}

func (s *Service) LootPlayer(ctx context.Context, e dispatcher.Event) (any, error) {
	var req LootRequest
	if err := s.schemas.Decode(SchemaLoot, e.Body, &req); err != nil {
		return nil, err
	}
	return s.engine.LootPlayer(ctx, e.Caller, req.VictimQRCode)
}

func (s *Service) DropArtifact(ctx context.Context, e dispatcher.Event) (any, error) {
	return s.engine.DropArtifact(ctx, e.Caller, e.Param("id"))
}
