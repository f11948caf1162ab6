// pkg/core/quest.go
package core

import "time"

// QuestType selects the objective variant of a quest.
type QuestType string

const (
	QuestElimination        QuestType = "elimination"
	QuestArtifactCollection QuestType = "artifact_collection"
	QuestVisit              QuestType = "visit"
	QuestPatrol             QuestType = "patrol"
	QuestDelivery           QuestType = "delivery"
	QuestManual             QuestType = "manual"
)

// QuestStatus is the lifecycle status of a quest.
type QuestStatus string

const (
	QuestAvailable  QuestStatus = "available"
	QuestAccepted   QuestStatus = "accepted"
	QuestInProgress QuestStatus = "in_progress"
	QuestCompleted  QuestStatus = "completed"
	QuestFailed     QuestStatus = "failed"
)

// Failure reasons recorded on failed quests.
const (
	FailExpired     = "expired"
	FailPlayerDeath = "player_death"
)

// VisitObjective is reached by standing inside the target circle once.
type VisitObjective struct {
	Target    Point      `json:"target"`
	Radius    float64    `json:"radius"`
	Visited   bool       `json:"visited"`
	VisitedAt *time.Time `json:"visitedAt,omitempty"`
}

// Checkpoint is one patrol point. Checkpoints are ordered by their slice index.
type Checkpoint struct {
	Position  Point      `json:"position"`
	Radius    float64    `json:"radius"`
	Visited   bool       `json:"visited"`
	VisitedAt *time.Time `json:"visitedAt,omitempty"`
}

// PatrolObjective requires visiting every checkpoint and spending
// RequiredTimeMinutes inside any of them in total.
type PatrolObjective struct {
	Checkpoints            []Checkpoint `json:"checkpoints"`
	RequiredTimeMinutes    float64      `json:"requiredTimeMinutes"`
	AccumulatedTimeSeconds float64      `json:"accumulatedTimeSeconds"`
}

// EliminationObjective counts kills of players matching the faction predicate.
type EliminationObjective struct {
	TargetFaction  Faction `json:"targetFaction,omitempty"`
	ExcludeFaction Faction `json:"excludeFaction,omitempty"`
	TargetCount    int     `json:"targetCount"`
	CurrentCount   int     `json:"currentCount"`
}

// CollectionObjective counts extracted artifacts per artifact type.
type CollectionObjective struct {
	TargetCounts  map[string]int `json:"targetCounts"`
	CurrentCounts map[string]int `json:"currentCounts"`
}

// DeliveryObjective asks the player to bring an item to a place.
type DeliveryObjective struct {
	ItemID      string     `json:"itemId"`
	Target      Point      `json:"target"`
	Radius      float64    `json:"radius"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

// ManualObjective is judged by the issuer.
type ManualObjective struct {
	Description string `json:"description"`
}

// Objective holds exactly one variant, matching the quest type.
type Objective struct {
	Visit              *VisitObjective       `json:"visit,omitempty"`
	Patrol             *PatrolObjective      `json:"patrol,omitempty"`
	Elimination        *EliminationObjective `json:"elimination,omitempty"`
	ArtifactCollection *CollectionObjective  `json:"artifactCollection,omitempty"`
	Delivery           *DeliveryObjective    `json:"delivery,omitempty"`
	Manual             *ManualObjective      `json:"manual,omitempty"`
}

// ResetProgress clears every progress field and keeps the goal definition.
func (o *Objective) ResetProgress() {
	if o.Visit != nil {
		o.Visit.Visited = false
		o.Visit.VisitedAt = nil
	}
	if o.Patrol != nil {
		for i := range o.Patrol.Checkpoints {
			o.Patrol.Checkpoints[i].Visited = false
			o.Patrol.Checkpoints[i].VisitedAt = nil
		}
		o.Patrol.AccumulatedTimeSeconds = 0
	}
	if o.Elimination != nil {
		o.Elimination.CurrentCount = 0
	}
	if o.ArtifactCollection != nil {
		o.ArtifactCollection.CurrentCounts = map[string]int{}
	}
	if o.Delivery != nil {
		o.Delivery.Delivered = false
		o.Delivery.DeliveredAt = nil
	}
}

// Quest is a contract offered by an issuer and accepted by one player.
type Quest struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Type        QuestType   `json:"type"`
	Status      QuestStatus `json:"status"`

	// AwaitingConfirmation marks the in_progress sub-state entered by claim.
	AwaitingConfirmation bool `json:"awaitingConfirmation"`

	Objective          Objective  `json:"objective"`
	FactionRestriction []Faction  `json:"factionRestriction,omitempty"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`
	AutoComplete       bool       `json:"autoComplete"`

	IssuerID    string     `json:"issuerId"`
	AcceptedBy  string     `json:"acceptedBy,omitempty"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	FailReason  string     `json:"failReason,omitempty"`

	Reward           int64  `json:"reward"`
	RewardReputation int    `json:"rewardReputation"`
	RewardItemID     string `json:"rewardItemId,omitempty"`
	RewardGranted    bool   `json:"rewardGranted"`

	Version int64 `json:"version"`
}

// Active reports whether the quest is held by a player and not yet terminal.
func (q Quest) Active() bool {
	return q.Status == QuestAccepted || q.Status == QuestInProgress
}

// Terminal reports whether the quest can no longer change.
func (q Quest) Terminal() bool {
	return q.Status == QuestCompleted || q.Status == QuestFailed
}

// ExpiredAt reports whether the quest deadline has passed.
func (q Quest) ExpiredAt(now time.Time) bool {
	return q.ExpiresAt != nil && !now.Before(*q.ExpiresAt)
}

// AllowsFaction reports whether a player of faction f may accept the quest.
func (q Quest) AllowsFaction(f Faction) bool {
	if len(q.FactionRestriction) == 0 {
		return true
	}
	for _, allowed := range q.FactionRestriction {
		if allowed == f {
			return true
		}
	}
	return false
}
