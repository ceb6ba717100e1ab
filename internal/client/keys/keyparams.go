// Package keys implements the spec §3 key hierarchy: KeyParams (the
// re-derivation recipe for a password), RootKey (the derived master key
// plus server proof), and ItemsKey (the per-user symmetric key that
// actually encrypts content, itself wrapped under the root key).
package keys

import "github.com/eidolon-labs/notesync/internal/client/crypto"

// KeyParams carries everything needed to re-derive a RootKey from a
// password, exactly as returned by the server at sign-in or stored
// locally as root_key_wrapper_params (spec §3/§6).
type KeyParams struct {
	Version    crypto.Version
	Identifier string // email
	PwNonce    string // v003+
	PwSalt     string // v<=002
	PwCost     int    // legacy KDF cost; ignored for v004 (fixed Argon2id params)
}

// SupportsDerivation reports whether this KeyParams' cost is acceptable
// for its claimed version, guarding against a downgrade attack where a
// server or cached copy supplies weaker-than-expected parameters.
func (kp KeyParams) SupportsDerivation() bool {
	if kp.Version == crypto.Version004 {
		return true // v004 has no caller-supplied cost to downgrade
	}
	return crypto.SupportsPasswordDerivationCost(kp.Version, kp.PwCost)
}
