// pkg/core/event.go
package core

import "time"

// GameEventType names entries in the game event log.
type GameEventType string

const (
	EventDeath          GameEventType = "radiation_death"
	EventResurrection   GameEventType = "resurrection"
	EventExtraction     GameEventType = "artifact_extracted"
	EventArtifactLost   GameEventType = "artifact_lost"
	EventQuestCompleted GameEventType = "quest_completed"
	EventQuestFailed    GameEventType = "quest_failed"
	EventCapture        GameEventType = "control_point_captured"
	EventTrade          GameEventType = "trade_settled"
	EventKill           GameEventType = "kill"
	EventLooting        GameEventType = "looting"
	EventArtifactDrop   GameEventType = "artifact_dropped"
	EventRedeem         GameEventType = "item_redeemed"
)

// GameEvent is an append-only audit entry written in the same transaction
// as the state change it describes.
type GameEvent struct {
	ID       string         `json:"id"`
	Type     GameEventType  `json:"type"`
	PlayerID string         `json:"playerId"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}
