package lnwire

import "fmt"

// MilliSatoshi are the native unit of the Lightning Network. A milli-satoshi
// is simply 1/1000th of a satoshi. There are 1000 milli-satoshis in a
// single satoshi. Within the network, all HTLCs are denominated in
// milli-satoshis. As milli-satoshis aren't deliverable on the native
// blockchain, before settling to broadcast, the values are rounded down to
// the nearest satoshi.
type MilliSatoshi uint64

// String returns the string representation of the millisatoshi amount.
func (m MilliSatoshi) String() string {
	return fmt.Sprintf("%d mSAT", uint64(m))
}

// ToSatoshis converts a given amount in MilliSatoshis to Satoshis, rounding
// down to the nearest Satoshi value.
func (m MilliSatoshi) ToSatoshis() uint64 {
	return uint64(m) / 1000
}
