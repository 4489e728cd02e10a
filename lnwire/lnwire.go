package lnwire

import (
	"bytes"
	"io"
)

// MessageType is the unique type for a message on the Lightning wire
// protocol. Each message has a MessageType which is used to uniquely
// identify it.
type MessageType uint16

// The currently defined message types that are recognized by this
// implementation of the wire protocol.
const (
	MsgUpdateAddHTLC           MessageType = 128
	MsgUpdateFulfillHTLC       MessageType = 130
	MsgUpdateFailHTLC          MessageType = 131
	MsgUpdateFailMalformedHTLC MessageType = 135
	MsgError                   MessageType = 17
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgUpdateAddHTLC:
		return "UpdateAddHTLC"
	case MsgUpdateFulfillHTLC:
		return "UpdateFulfillHTLC"
	case MsgUpdateFailHTLC:
		return "UpdateFailHTLC"
	case MsgUpdateFailMalformedHTLC:
		return "UpdateFailMalformedHTLC"
	case MsgError:
		return "Error"
	default:
		return "<unknown>"
	}
}

// Message is implemented by all messages that can be sent and received on
// the Lightning wire protocol.
type Message interface {
	// Decode reads the bytes stream and converts it to the object.
	Decode(io.Reader, uint32) error

	// Encode converts the object to the bytes stream and writes it into
	// the given writer.
	Encode(*bytes.Buffer, uint32) error

	// MsgType returns the integer uniquely identifying this message type
	// on the wire.
	MsgType() MessageType
}

// ChannelID is a series of 32-bytes that uniquely identifies all channels
// within the network. The ChannelID is computed using the outpoint of the
// funding transaction (the txid, and output index). Given a transaction
// outpoint (txid, index), the ChannelID is computed as txid XOR index,
// this follows the convention where the higher byte-index of the txid is
// XOR'd with the index.
type ChannelID [32]byte
