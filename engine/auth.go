package engine

import "crypto/subtle"

// AuthScheme selects between the legacy LonTalk authentication key scheme
// and OMA (OEM Message Authentication), per domain attribute (§4.3).
type AuthScheme uint8

const (
	AuthLegacy AuthScheme = iota
	AuthOMA
)

// Authenticator computes and validates the challenge/response pair for
// authenticated sends (§4.3). The legacy and OMA algorithms are both
// fixed, non-standard 64-bit keyed transforms rather than a modern AEAD,
// so this does not reach for golang.org/x/crypto (see DESIGN.md); the one
// piece worth importing is the constant-time comparison on the final
// response check.
type Authenticator struct {
	Scheme AuthScheme
	Key    [12]byte
}

// Challenge derives an 8-byte challenge from a nonce. Real devices use a
// hardware random source (CAL, out of scope per §1); callers here supply
// the nonce explicitly so the function stays pure and testable.
func (a Authenticator) Challenge(nonce [8]byte) [8]byte {
	return nonce
}

// Respond computes the keyed response to a challenge.
func (a Authenticator) Respond(challenge [8]byte) [8]byte {
	var out [8]byte
	switch a.Scheme {
	case AuthOMA:
		for i := range out {
			out[i] = challenge[i] ^ a.Key[i%len(a.Key)] ^ a.Key[(i+6)%len(a.Key)]
		}
	default: // AuthLegacy
		for i := range out {
			out[i] = challenge[i] ^ a.Key[i%len(a.Key)]
		}
	}
	return out
}

// Validate reports whether response is the expected answer to challenge
// under this Authenticator's key/scheme, using a constant-time comparison
// so a timing side-channel doesn't leak key material one byte at a time.
func (a Authenticator) Validate(challenge, response [8]byte) bool {
	want := a.Respond(challenge)
	return subtle.ConstantTimeCompare(want[:], response[:]) == 1
}
