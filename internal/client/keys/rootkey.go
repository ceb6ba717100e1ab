package keys

import (
	"github.com/eidolon-labs/notesync/internal/client/crypto"
	"github.com/eidolon-labs/notesync/internal/common"
)

// RootKey is derived from a password plus KeyParams and never persisted in
// plaintext (spec §3): either it lives only in process memory, or it is
// wrapped by a separate passcode-derived key before being written to
// storage. MasterKey wraps items keys; ServerPassword is the proof of
// knowledge sent to the server at sign-in/register; DataAuthenticationKey
// is only populated for v<=003 and used for the legacy HMAC framing.
type RootKey struct {
	Version               crypto.Version
	MasterKey             []byte
	ServerPassword        []byte
	DataAuthenticationKey []byte
	Params                KeyParams
}

// DeriveRootKey derives a RootKey from a password and KeyParams, dispatching
// on kp.Version per spec §4.1. Legacy versions (001/002) populate only
// MasterKey — ServerPassword and DataAuthenticationKey have no v001/002
// equivalent in this protocol's proof-of-password scheme, since those
// versions predate the server-password split.
func DeriveRootKey(password string, kp KeyParams) (RootKey, error) {
	if !kp.SupportsDerivation() {
		return RootKey{}, common.ErrUnsupportedVersion
	}
	switch kp.Version {
	case crypto.Version004:
		mk, sp, err := crypto.DeriveKeys004(password, kp.Identifier, kp.PwNonce)
		if err != nil {
			return RootKey{}, err
		}
		return RootKey{Version: kp.Version, MasterKey: mk, ServerPassword: sp, Params: kp}, nil
	case crypto.Version003:
		mk, sp, auth := crypto.DeriveKeys003(password, kp.Identifier, kp.PwNonce)
		return RootKey{Version: kp.Version, MasterKey: mk, ServerPassword: sp, DataAuthenticationKey: auth, Params: kp}, nil
	case crypto.Version002:
		return RootKey{Version: kp.Version, MasterKey: crypto.DeriveKey002(password, kp.Identifier, kp.PwSalt), Params: kp}, nil
	case crypto.Version001:
		return RootKey{Version: kp.Version, MasterKey: crypto.DeriveKey001(password, kp.Identifier, kp.PwSalt), Params: kp}, nil
	default:
		return RootKey{}, common.ErrUnsupportedVersion
	}
}

// Wipe zeroes all key material held by rk, called once a RootKey is
// superseded (password change, sign-out) so key bytes don't linger in the
// process heap longer than necessary.
func (rk *RootKey) Wipe() {
	common.WipeByteArray(rk.MasterKey)
	common.WipeByteArray(rk.ServerPassword)
	common.WipeByteArray(rk.DataAuthenticationKey)
}
