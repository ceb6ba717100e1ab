// Package storage implements the Storage Service facade (spec §6/§7): a
// thin wrapper over an externally-supplied DeviceInterface providing raw
// key/value storage, a bulk payload table, and a keychain, plus a
// concrete SQLite-backed DeviceInterface and an in-memory one for tests.
// Grounded on the teacher's metadata.Repository/entries.Repository split
// (_examples/dmitrijs2005-gophkeeper/internal/client/repositories/{metadata,entries}),
// generalized to the spec's named storage keys.
package storage

import (
	"context"

	"github.com/eidolon-labs/notesync/internal/client/payload"
)

// DeviceInterface is the external, host-supplied collaborator the spec
// treats as outside this library's scope (§6): raw KV storage, a bulk
// payload table, and a keychain for secrets the host platform may want to
// store more securely than plain files (e.g. OS keychain integration).
// This package ships two concrete implementations (SQLite, in-memory) for
// the demo CLI and for tests, but production hosts may supply their own.
type DeviceInterface interface {
	GetRawStorageValue(ctx context.Context, key string) ([]byte, bool, error)
	SetRawStorageValue(ctx context.Context, key string, value []byte) error
	RemoveRawStorageValue(ctx context.Context, key string) error

	GetAllRawDatabasePayloads(ctx context.Context) ([]payload.Payload, error)
	SaveRawDatabasePayload(ctx context.Context, p payload.Payload) error
	RemoveRawDatabasePayload(ctx context.Context, uuid string) error

	SetKeychainValue(ctx context.Context, key string, value []byte) error
	GetKeychainValue(ctx context.Context, key string) ([]byte, bool, error)
	ClearKeychainValue(ctx context.Context, key string) error
}

// Keys are the named storage keys from spec §6. Neither DeviceInterface
// implementation in this package prefixes or namespaces them; they are
// stored as given.
const (
	KeySNJSVersion           = "snjs_version"
	KeyLastSyncToken         = "last_sync_token"
	KeyPaginationToken       = "pagination_token"
	KeyUser                  = "user"
	KeySession               = "session"
	KeyRootKeyWrapperParams  = "root_key_wrapper_params"
	KeyRecoveryUndecryptable = "key_recovery_undecryptable_items"
)
