package trampoline

import "github.com/lightningnetwork/lnd/lnwire"

// AggregatorFailReason is the reason the multi-part receiver FSM gives up
// on an in-progress HTLC set.
type AggregatorFailReason int

const (
	// AggregatorFailTimeout indicates the configured receive window
	// elapsed before the declared total amount was reached.
	AggregatorFailTimeout AggregatorFailReason = iota

	// AggregatorFailAmountMismatch indicates a part arrived whose
	// declared total amount conflicted with parts already accepted.
	AggregatorFailAmountMismatch

	// AggregatorFailOther covers any other aggregator-level failure.
	AggregatorFailOther
)

// Aggregator is the external collaborator contract for the multi-part
// receiver FSM. One Aggregator is bound to a single payment hash and the
// sender-declared total amount taken from the first HTLC observed for that
// payment. The relay core feeds it every incoming
// HTLC for the payment and reacts to the three events it reports back
// through the AggregatorEvent channel returned by its AggregatorFactory.
//
// The core never calls into the aggregator's completion-detection or
// timeout logic directly: it is purely a producer of HTLC and a consumer
// of events.
type Aggregator interface {
	// AddHTLC feeds a newly observed incoming HTLC, and the sender's
	// declared total amount for the payment, to the aggregator.
	AddHTLC(htlc HTLC)

	// Stop tears down the aggregator. Events may still arrive briefly
	// after Stop returns; callers must treat any such event as a stray
	// duplicate.
	Stop()
}

// AggregatorFactory constructs a new Aggregator bound to a payment hash
// and the declared total amount of the first HTLC received for it, wired
// to deliver events on the returned channel.
type AggregatorFactory func(paymentHash [32]byte,
	totalAmount lnwire.MilliSatoshi) (Aggregator, <-chan AggregatorEvent)

// AggregatorEvent is the tagged union of events an Aggregator can report.
// Exactly one of the Extra/Failed/Succeeded fields is populated.
type AggregatorEvent struct {
	// Extra is populated when the aggregator observed an HTLC after the
	// set was already considered complete or failed.
	Extra *AggregatorExtraPart

	// Failed is populated when the aggregator gave up on the set.
	Failed *AggregatorFailed

	// Succeeded is populated when the aggregator considers the set
	// complete.
	Succeeded *AggregatorSucceeded
}

// AggregatorExtraPart reports a late or surplus HTLC observed after
// completion or failure.
type AggregatorExtraPart struct {
	HTLC HTLC
}

// AggregatorFailed reports that the aggregator gave up on the set, along
// with every part it had accepted before giving up.
type AggregatorFailed struct {
	Reason AggregatorFailReason
	Parts  []HTLC
}

// AggregatorSucceeded reports that the aggregator considers the
// sender-declared total amount reached.
type AggregatorSucceeded struct {
	Parts []HTLC
}
