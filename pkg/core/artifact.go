// pkg/core/artifact.go
package core

import "time"

// ArtifactState is the lifecycle state of an artifact spawn.
type ArtifactState string

const (
	ArtifactHidden     ArtifactState = "hidden"
	ArtifactVisible    ArtifactState = "visible"
	ArtifactExtracting ArtifactState = "extracting"
	ArtifactExtracted  ArtifactState = "extracted"
	ArtifactLost       ArtifactState = "lost"
)

// ArtifactSpawn is one placed artifact. TypeID references an Item of kind artifact.
type ArtifactSpawn struct {
	ID       string        `json:"id"`
	TypeID   string        `json:"typeId"`
	Position Point         `json:"position"`
	State    ArtifactState `json:"state"`

	RevealAt    *time.Time `json:"revealAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	OwnerID     string     `json:"ownerId,omitempty"`
	ExtractedAt *time.Time `json:"extractedAt,omitempty"`

	Version int64 `json:"version"`
}

// ExpiredAt reports whether the spawn has passed its expiry.
func (a ArtifactSpawn) ExpiredAt(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// ExtractionAttempt exists only while its artifact is extracting.
type ExtractionAttempt struct {
	ArtifactID string    `json:"artifactId"`
	PlayerID   string    `json:"playerId"`
	StartedAt  time.Time `json:"startedAt"`

	Version int64 `json:"version"`
}
