package model

import "time"

// SlotLock is an advisory lock serializing approvals and merges that touch
// the same vehicle. It narrows the window between the scheduling-conflict
// check and the transaction commit.
type SlotLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
