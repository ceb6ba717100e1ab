package item

import "github.com/eidolon-labs/notesync/internal/client/payload"

// SingletonPredicate reports whether candidate is considered "the same
// singleton" as the reference item being enforced against, per spec §4.4
// "singleton enforcement": after any emission, scan matches of
// singletonPredicate, keep the earliest-created, mark the rest
// deleted+dirty. Predicates are content-type specific — a Privileges
// singleton matches by content type alone, a UserPreferences singleton
// likewise, since a user has exactly one of each.
type SingletonPredicate func(candidate payload.Payload) bool

// singletonContentTypes lists the content types with at most one live
// instance per account (spec §3 invariant: "at most one items key is
// marked default", generalized here to the broader singleton rule §4.4
// states for items whose isSingleton=true).
var singletonContentTypes = map[payload.ContentType]bool{
	payload.ContentTypePrivileges:      true,
	payload.ContentTypeUserPreferences: true,
}

// IsSingleton reports whether ct is a content type with singleton
// semantics.
func IsSingleton(ct payload.ContentType) bool {
	return singletonContentTypes[ct]
}

// PredicateFor returns the SingletonPredicate for ct: payloads of the same
// content type, since Privileges and UserPreferences carry no other
// distinguishing key.
func PredicateFor(ct payload.ContentType) SingletonPredicate {
	return func(candidate payload.Payload) bool {
		return candidate.ContentType == ct
	}
}
