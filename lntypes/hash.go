package lntypes

import "encoding/hex"

// HashSize is the size in bytes of the payment hashes and preimages used in
// the Lightning Network.
const HashSize = 32

// Hash represents a sha256 hash, typically a payment hash.
type Hash [HashSize]byte

// String returns the hex representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MakeHash returns a new Hash from a byte slice. An error is returned if the
// number of bytes is not exactly HashSize.
func MakeHash(newHash []byte) (Hash, error) {
	var h Hash

	if len(newHash) != HashSize {
		return h, errWrongSize(len(newHash), HashSize)
	}

	copy(h[:], newHash)

	return h, nil
}
