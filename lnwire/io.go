package lnwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteBytes appends a raw byte slice to the given writer.
func WriteBytes(w *bytes.Buffer, b []byte) error {
	_, err := w.Write(b)
	return err
}

// WriteUint32 appends a big-endian encoded uint32 to the given writer.
func WriteUint32(w *bytes.Buffer, i uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], i)
	return WriteBytes(w, buf[:])
}

// WriteUint64 appends a big-endian encoded uint64 to the given writer.
func WriteUint64(w *bytes.Buffer, i uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], i)
	return WriteBytes(w, buf[:])
}

// WriteChannelID appends a ChannelID to the given writer.
func WriteChannelID(w *bytes.Buffer, chanID ChannelID) error {
	return WriteBytes(w, chanID[:])
}

// WriteMilliSatoshi appends a MilliSatoshi amount, encoded as a big-endian
// uint64, to the given writer.
func WriteMilliSatoshi(w *bytes.Buffer, m MilliSatoshi) error {
	return WriteUint64(w, uint64(m))
}

// WriteVarInt appends a bitcoin-style variable length integer to the given
// writer.
func WriteVarInt(w *bytes.Buffer, val uint64) error {
	switch {
	case val < 0xfd:
		return WriteBytes(w, []byte{byte(val)})

	case val <= 0xffff:
		var buf [3]byte
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(val))
		return WriteBytes(w, buf[:])

	case val <= 0xffffffff:
		var buf [5]byte
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(val))
		return WriteBytes(w, buf[:])

	default:
		var buf [9]byte
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:], val)
		return WriteBytes(w, buf[:])
	}
}

// ReadVarInt reads a bitcoin-style variable length integer from the given
// reader.
func ReadVarInt(r io.Reader, buf *[8]byte) (uint64, error) {
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return 0, err
	}

	switch buf[0] {
	case 0xff:
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(buf[:8]), nil

	case 0xfe:
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(buf[:4])), nil

	case 0xfd:
		if _, err := io.ReadFull(r, buf[:2]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(buf[:2])), nil

	default:
		return uint64(buf[0]), nil
	}
}

// ReadElements deserializes a variable number of elements into the passed
// io.Reader, with each element being deserialized according to its
// underlying go type.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := readElement(r, element); err != nil {
			return err
		}
	}
	return nil
}

func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *ChannelID:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *uint64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint64(buf[:])

	case *uint32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint32(buf[:])

	case *MilliSatoshi:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = MilliSatoshi(binary.BigEndian.Uint64(buf[:]))

	case []byte:
		if _, err := io.ReadFull(r, e); err != nil {
			return err
		}

	case *ExtraOpaqueData:
		return e.Decode(r)

	default:
		return fmt.Errorf("unknown type in ReadElements: %T", e)
	}

	return nil
}
