// Package lifecycle implements the event bus every other component
// publishes to and the host application observes (spec §6/§7): the full
// named event set, an ordering guarantee (events fire in publish order),
// and a re-entrancy guard so a handler that itself triggers a new event
// doesn't get delivered out of turn ahead of events already queued.
package lifecycle

// Event names the spec §6 lifecycle event set, plus MajorDataChange's
// item-count threshold (spec: "fires whenever a sync round touches >= 15
// items").
type Event string

const (
	Started                  Event = "Started"
	Launched                 Event = "Launched"
	LocalDataLoaded          Event = "LocalDataLoaded"
	KeyStatusChanged         Event = "KeyStatusChanged"
	CompletedFullSync        Event = "CompletedFullSync"
	CompletedIncrementalSync Event = "CompletedIncrementalSync"
	FailedSync               Event = "FailedSync"
	EnteredOutOfSync         Event = "EnteredOutOfSync"
	ExitedOutOfSync          Event = "ExitedOutOfSync"
	SignedIn                 Event = "SignedIn"
	SignedOut                Event = "SignedOut"
	MajorDataChange          Event = "MajorDataChange"
	WillSync                 Event = "WillSync"
	InvalidSyncSession       Event = "InvalidSyncSession"
	LocalDatabaseReadError   Event = "LocalDatabaseReadError"
	LocalDatabaseWriteError  Event = "LocalDatabaseWriteError"
	MigrationsLoaded         Event = "MigrationsLoaded"
	StorageReady             Event = "StorageReady"
	PreferencesChanged       Event = "PreferencesChanged"
	UserRolesChanged         Event = "UserRolesChanged"
)

// MajorDataChangeThreshold is the minimum number of items a sync round
// must touch before MajorDataChange fires (spec §6).
const MajorDataChangeThreshold = 15

// Payload carries an event plus whatever context observers need. Kept as
// a generic map rather than per-event struct types since observers are
// external and the set of fields relevant to each event differs widely
// (a sync completion carries item counts, a sign-in carries a user uuid).
type Payload struct {
	Event Event
	Data  map[string]interface{}
}
