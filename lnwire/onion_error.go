package lnwire

import (
	"bytes"
	"fmt"
	"io"
)

// FailCode specifies the precise reason that an upstream HTLC was canceled.
// Each FailCode is mapped directly onto a specific message defined in the
// base protocol specification, and defines, at a minimum, a mandatory
// length.
type FailCode uint16

const (
	CodeIncorrectOrUnknownPaymentDetails FailCode = 15
	CodeTemporaryNodeFailure              FailCode = 0x2000 | 2
	CodeTrampolineExpiryTooSoon           FailCode = 0x2000 | 0x1000 | 20
	CodeTrampolineFeeInsufficient         FailCode = 0x2000 | 0x1000 | 21
)

// FailureMessage represents the onion failure object identified by its
// unique failure code. Each failure message is associated with a single
// failure code, but may carry along additional opaque data.
type FailureMessage interface {
	// Code returns the failure code that uniquely identifies this
	// failure.
	Code() FailCode

	Error() string
}

// FailIncorrectOrUnknownPaymentDetails is returned for invalid payments
// which either carry an incorrect payment amount, or are sent using the
// wrong final expiry, or which do not match the receiver's expectation
// for the set of HTLCs that make up a multi-part payment.
type FailIncorrectOrUnknownPaymentDetails struct {
	// Amount is the value of the extended HTLC.
	Amount MilliSatoshi

	// Height is the block height when the error occurred prior to
	// constructing the new failure message.
	Height uint32
}

// NewFailIncorrectDetails makes a new instance of the
// FailIncorrectOrUnknownPaymentDetails error bound to the specified amount
// and current block height.
func NewFailIncorrectDetails(amt MilliSatoshi,
	height uint32) *FailIncorrectOrUnknownPaymentDetails {

	return &FailIncorrectOrUnknownPaymentDetails{
		Amount: amt,
		Height: height,
	}
}

// Code returns the failure unique code.
func (f *FailIncorrectOrUnknownPaymentDetails) Code() FailCode {
	return CodeIncorrectOrUnknownPaymentDetails
}

// Error implements the error interface.
func (f *FailIncorrectOrUnknownPaymentDetails) Error() string {
	return fmt.Sprintf("IncorrectOrUnknownPaymentDetails(amt=%v, "+
		"height=%v)", f.Amount, f.Height)
}

// Encode writes the failure message to the target io.Writer.
func (f *FailIncorrectOrUnknownPaymentDetails) Encode(w *bytes.Buffer) error {
	if err := WriteMilliSatoshi(w, f.Amount); err != nil {
		return err
	}
	return WriteUint32(w, f.Height)
}

// Decode reads the failure message from the target io.Reader.
func (f *FailIncorrectOrUnknownPaymentDetails) Decode(r io.Reader) error {
	return ReadElements(r, &f.Amount, &f.Height)
}

// FailTemporaryNodeFailure is returned by a relaying node that is currently
// unable to relay a payment due to an internal error, such as a temporary
// lack of outgoing liquidity.
type FailTemporaryNodeFailure struct{}

// Code returns the failure unique code.
func (f *FailTemporaryNodeFailure) Code() FailCode {
	return CodeTemporaryNodeFailure
}

// Error implements the error interface.
func (f *FailTemporaryNodeFailure) Error() string {
	return "TemporaryNodeFailure"
}

// FailTrampolineFeeInsufficient is returned by a trampoline node when the
// amount offered by the sender, minus the trampoline node's forwarding fee,
// is not enough for the trampoline node to complete the relay. The sender is
// expected to retry with a larger fee budget.
type FailTrampolineFeeInsufficient struct{}

// Code returns the failure unique code.
func (f *FailTrampolineFeeInsufficient) Code() FailCode {
	return CodeTrampolineFeeInsufficient
}

// Error implements the error interface.
func (f *FailTrampolineFeeInsufficient) Error() string {
	return "TrampolineFeeInsufficient"
}

// FailTrampolineExpiryTooSoon is returned by a trampoline node when the
// incoming HTLC set does not carry enough of a timelock delta over the
// outgoing CLTV for the node's configured expiry_delta.
type FailTrampolineExpiryTooSoon struct{}

// Code returns the failure unique code.
func (f *FailTrampolineExpiryTooSoon) Code() FailCode {
	return CodeTrampolineExpiryTooSoon
}

// Error implements the error interface.
func (f *FailTrampolineExpiryTooSoon) Error() string {
	return "TrampolineExpiryTooSoon"
}
