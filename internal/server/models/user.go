package models

import "time"

// User is the server-side account record. It never stores or sees the
// account's master password or any key derived purely client-side — only
// ServerPassword, the proof value spec §3's key hierarchy derives
// specifically for server authentication, plus the KeyParams recipe
// needed by other devices to re-derive that same proof.
type User struct {
	ID         string
	Email      string
	Identifier string

	KeyParamsVersion string
	PwNonce          string
	PwSalt           string
	PwCost           int

	ServerPassword []byte

	CreatedAt time.Time
}
