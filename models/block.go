package models

import "time"

// Block is a directional exclusion: Blocker no longer interacts with Blocked.
type Block struct {
	ID        string    `dynamodbav:"blockId" json:"id"`
	Blocker   string    `dynamodbav:"blocker" json:"blocker"`
	Blocked   string    `dynamodbav:"blocked" json:"blocked"`
	Reason    string    `dynamodbav:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created_at"`
}

// BlockWithProfile is a Block annotated with the blocked user's summary.
type BlockWithProfile struct {
	Block
	BlockedProfile *ProfileSummary `json:"blocked_profile"`
}
