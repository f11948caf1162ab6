package handlers

import (
	"context"

	"github.com/pdazone/engine/internal/dispatcher"
	"github.com/pdazone/engine/pkg/core"
)

func (s *Service) RegisterPlayer(ctx context.Context, e dispatcher.Event) (any, error) {
	var p core.Player
	if err := s.schemas.Decode(SchemaPlayer, e.Body, &p); err != nil {
		return nil, err
	}
	return s.engine.RegisterPlayer(ctx, e.Caller, p)
}

func (s *Service) UpsertZone(ctx context.Context, e dispatcher.Event) (any, error) {
	z := core.Zone{IsActive: true}
	if err := s.schemas.Decode(SchemaZone, e.Body, &z); err != nil {
		return nil, err
	}
	return s.engine.UpsertZone(ctx, e.Caller, z)
}

func (s *Service) SpawnArtifact(ctx context.Context, e dispatcher.Event) (any, error) {
	var a core.ArtifactSpawn
	if err := s.schemas.Decode(SchemaArtifact, e.Body, &a); err != nil {
		return nil, err
	}
	return s.engine.SpawnArtifact(ctx, e.Caller, a)
}

func (s *Service) UpsertItem(ctx context.Context, e dispatcher.Event) (any, error) {
	var it core.Item
	if err := s.schemas.Decode(SchemaItem, e.Body, &it); err != nil {
		return nil, err
	}
	return s.engine.UpsertItem(ctx, e.Caller, it)
}

func (s *Service) UpsertTrader(ctx context.Context, e dispatcher.Event) (any, error) {
	tr := core.Trader{IsActive: true}
	if err := s.schemas.Decode(SchemaTrader, e.Body, &tr); err != nil {
		return nil, err
	}
	return s.engine.UpsertTrader(ctx, e.Caller, tr)
}

// StockRequest adds quantities to an owner's inventory.
type StockRequest struct {
	OwnerID string         `json:"ownerId"`
	Items   map[string]int `json:"items"`
}

func (s *Service) StockInventory(ctx context.Context, e dispatcher.Event) (any, error) {
	var req StockRequest
	if err := s.schemas.Decode(SchemaStock, e.Body, &req); err != nil {
		return nil, err
	}
	return s.engine.StockInventory(ctx, e.Caller, req.OwnerID, req.Items)
}

func (s *Service) PublishQuest(ctx context.Context, e dispatcher.Event) (any, error) {
	var q core.Quest
	if err := s.schemas.Decode(SchemaQuest, e.Body, &q); err != nil {
		return nil, err
	}
	return s.engine.PublishQuest(ctx, e.Caller, q)
}

// KillRequest reports one player killing another.
type KillRequest struct {
	KillerID string `json:"killerId"`
	VictimID string `json:"victimId"`
}

// KillResponse lists the quests the kill advanced.
type KillResponse struct {
	Quests []QuestChange `json:"quests"`
}

func (s *Service) RecordKill(ctx context.Context, e dispatcher.Event) (any, error) {
	var req KillRequest
	if err := s.schemas.Decode(SchemaKill, e.Body, &req); err != nil {
		return nil, err
	}
	changes, err := s.engine.RecordKill(ctx, e.Caller, req.KillerID, req.VictimID)
	if err != nil {
		return nil, err
	}
	resp := KillResponse{Quests: questChanges(changes)}
	if resp.Quests == nil {
		resp.Quests = []QuestChange{}
	}
	return resp, nil
}
