package crypto

import "crypto/rand"

// randReader is the entropy source for nonce/IV/salt generation. A package
// variable rather than a hardcoded crypto/rand.Reader call so tests can
// substitute a deterministic reader to assert exact framing output.
var randReader = rand.Reader
