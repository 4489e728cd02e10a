package lnwire

import (
	"bytes"
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

// ExtraOpaqueData is the set of data that is appended to the end of a
// message to fill out the full maximum transport message size. This data is
// used to allow for extension of existing protocol messages in a
// forward-compatible manner.
type ExtraOpaqueData []byte

// Encode attempts to encode the raw extra bytes.
func (e *ExtraOpaqueData) Encode(w *bytes.Buffer) error {
	if e == nil {
		return nil
	}

	return WriteBytes(w, []byte(*e))
}

// Decode attempts to decode the raw extra bytes: everything left in r.
func (e *ExtraOpaqueData) Decode(r io.Reader) error {
	rawBytes, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var tlvData []byte
	if len(rawBytes) > 0 {
		tlvData = rawBytes
	}

	*e = ExtraOpaqueData(tlvData)

	return nil
}

// PackRecords packs a set of tlv records into the extra data field,
// replacing any pre-existing data.
func (e *ExtraOpaqueData) PackRecords(recordProducers ...tlv.RecordProducer) error {
	records := make([]tlv.Record, 0, len(recordProducers))
	for _, producer := range recordProducers {
		records = append(records, producer.Record())
	}
	tlv.SortRecords(records)

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if err := stream.Encode(&b); err != nil {
		return err
	}

	*e = b.Bytes()

	return nil
}

// ExtractRecords attempts to extract TLV records contained in the extra
// opaque data, returning every TLV type found in the stream. Known records
// are decoded directly into the types passed via recordProducers and map
// to a nil value; every other type maps to its raw value bytes.
func (e *ExtraOpaqueData) ExtractRecords(
	recordProducers ...tlv.RecordProducer) (tlv.TypeMap, error) {

	records := make([]tlv.Record, 0, len(recordProducers))
	for _, producer := range recordProducers {
		records = append(records, producer.Record())
	}
	tlv.SortRecords(records)

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	return stream.DecodeWithParsedTypes(bytes.NewReader(*e))
}

// NewExtraOpaqueDataFromTlvTypeMap builds an ExtraOpaqueData instance from a
// tlv.TypeMap of raw records that couldn't be parsed as a known field. The
// records are re-serialized verbatim so that unrecognized TLVs survive a
// decode/encode round trip unmodified.
func NewExtraOpaqueDataFromTlvTypeMap(tlvMap tlv.TypeMap) (ExtraOpaqueData, error) {
	if len(tlvMap) == 0 {
		return nil, nil
	}

	records := make([]tlv.Record, 0, len(tlvMap))
	for t, v := range tlvMap {
		val := v
		records = append(records, tlv.MakePrimitiveRecord(t, &val))
	}
	tlv.SortRecords(records)

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	if err := stream.Encode(&b); err != nil {
		return nil, err
	}

	return ExtraOpaqueData(b.Bytes()), nil
}
