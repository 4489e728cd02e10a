package lntypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PreimageSize is the size, in bytes, of a Lightning payment preimage.
const PreimageSize = 32

// Preimage is the pre-image to a payment hash. Revealing this to the sender
// of an HTLC is sufficient to fully settle the HTLC.
type Preimage [PreimageSize]byte

// MakePreimage returns a new Preimage from a byte slice. An error is
// returned if the number of bytes is not exactly PreimageSize.
func MakePreimage(newPreimage []byte) (Preimage, error) {
	var p Preimage

	if len(newPreimage) != PreimageSize {
		return p, errWrongSize(len(newPreimage), PreimageSize)
	}

	copy(p[:], newPreimage)

	return p, nil
}

// Hash returns the payment hash that corresponds to this preimage.
func (p Preimage) Hash() Hash {
	return Hash(sha256.Sum256(p[:]))
}

// Matches returns true if the preimage's hash matches the passed hash.
func (p Preimage) Matches(hash Hash) bool {
	return p.Hash() == hash
}

// String returns the hex representation of the preimage.
func (p Preimage) String() string {
	return hex.EncodeToString(p[:])
}

func errWrongSize(got, want int) error {
	return fmt.Errorf("invalid size: expected %v, got %v", want, got)
}
