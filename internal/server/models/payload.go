package models

import "time"

// Payload is the server-side record of a synced item. The server never
// decrypts Content or EncItemKey — it stores and returns opaque
// ciphertext exactly as handed to it (spec §6's "server is a dumb
// ciphertext store" non-goal). Version is a per-user monotonic counter
// assigned on every create/update, playing the same role as the
// teacher's entries.Version: the sync token a client supplies on its
// next round is the max Version it has already seen, and SelectUpdated
// returns everything strictly newer.
type Payload struct {
	UUID        string
	UserID      string
	ContentType string
	Content     string
	EncItemKey  string
	ItemsKeyID  string
	Version     int64

	CreatedAt time.Time
	UpdatedAt time.Time
	Deleted   bool
}
