// Package pseudo derives stable pseudonyms for subject identifiers so raw
// identifiers never reach storage keys or the audit trail.
package pseudo

import (
	"encoding/base64"

	"golang.org/x/crypto/blake2b"

	dErrors "assent/pkg/domain-errors"
)

// Key length bounds. blake2b caps keys at 64 bytes; anything under 16 is too
// weak to act as a MAC key.
const (
	MinKeyLength = 16
	MaxKeyLength = 64
)

// Pseudonymizer computes keyed BLAKE2b-256 pseudonyms. The mapping is
// deterministic for a given key and not reversible.
type Pseudonymizer struct {
	key []byte
}

// New creates a Pseudonymizer from a secret key.
//
// Errors: CodeInvalidInput when the key length is out of bounds.
func New(key []byte) (*Pseudonymizer, error) {
	if len(key) < MinKeyLength || len(key) > MaxKeyLength {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"pseudonym key must be between %d and %d bytes", MinKeyLength, MaxKeyLength)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Pseudonymizer{key: k}, nil
}

// Pseudonym returns the pseudonym for a subject identifier, encoded as
// unpadded base64url. A nil Pseudonymizer passes the identifier through
// unchanged so call sites need no nil checks.
func (p *Pseudonymizer) Pseudonym(subjectID string) string {
	if p == nil {
		return subjectID
	}
	h, err := blake2b.New256(p.key)
	if err != nil {
		// Key length was validated in New; blake2b only errors on bad keys.
		return subjectID
	}
	h.Write([]byte(subjectID))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Enabled reports whether pseudonymization is active.
func (p *Pseudonymizer) Enabled() bool {
	return p != nil
}
