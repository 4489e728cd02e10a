package route

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// VertexSize is the size, in bytes, of a node's compressed public key as
// used for a route vertex.
const VertexSize = 33

// Vertex is a simple alias for the serialization of a compressed Bitcoin
// public key, used to uniquely identify a node in the graph.
type Vertex [VertexSize]byte

// NewVertex returns a new Vertex given a public key.
func NewVertex(pub *btcec.PublicKey) Vertex {
	var v Vertex
	copy(v[:], pub.SerializeCompressed())
	return v
}

// NewVertexFromBytes returns a new Vertex given a serialized compressed
// public key byte slice.
func NewVertexFromBytes(b []byte) (Vertex, error) {
	vertex := Vertex{}

	if len(b) != VertexSize {
		return vertex, errInvalidVertexLen(len(b))
	}

	copy(vertex[:], b)

	return vertex, nil
}

// NewVertexFromStr returns a new Vertex given its hex-encoded string format.
func NewVertexFromStr(v string) (Vertex, error) {
	b, err := hex.DecodeString(v)
	if err != nil {
		return Vertex{}, err
	}

	return NewVertexFromBytes(b)
}

// String returns a human readable version of the Vertex which is the
// hex-encoding of the serialized compressed public key.
func (v Vertex) String() string {
	return hex.EncodeToString(v[:])
}

func errInvalidVertexLen(n int) error {
	return fmt.Errorf("invalid vertex length of %v, want %v", n, VertexSize)
}
