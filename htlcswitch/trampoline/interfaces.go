package trampoline

import (
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
)

// PendingRelaySender is the durable fail/fulfill send path: it persists the
// fail or fulfill command under the (channel, htlc) key and then dispatches
// it to the channel's register.
// Both methods are idempotent and fire-and-forget from the relay's point
// of view; the persistence layer is responsible for replaying any command
// that was not yet delivered across a node restart.
type PendingRelaySender interface {
	// FailHTLC durably records and dispatches a fail command for the
	// given upstream HTLC.
	FailHTLC(key HTLCKey, reason lnwire.FailureMessage)

	// FulfillHTLC durably records and dispatches a fulfill command for
	// the given upstream HTLC.
	FulfillHTLC(key HTLCKey, preimage lntypes.Preimage)
}

// EventBus publishes relay-lifecycle events for external subscribers.
// Publication is fire-and-forget.
type EventBus interface {
	Publish(event TrampolinePaymentRelayed)
}

// MetricsSink records relay outcome metrics.
type MetricsSink interface {
	// RecordPaymentRelayFailed records that a trampoline relay failed,
	// labelled with the upstream failure message's Error() string. For
	// messages that carry fields (such as
	// IncorrectOrUnknownPaymentDetails) the label includes their values.
	RecordPaymentRelayFailed(failureClassName string)
}

// OutgoingPaymentRequest is the request the Dispatcher hands to the
// outgoing payment engine (the external multi-part/single-part sender
// FSM) to begin a new outgoing payment attempt for this relay.
type OutgoingPaymentRequest struct {
	// TargetNodeID is the node the outgoing payment is addressed to.
	TargetNodeID route.Vertex

	// AmountMsat is the amount to forward onward.
	AmountMsat lnwire.MilliSatoshi

	// FinalExpiry is the absolute CLTV expiry height of the final hop.
	FinalExpiry uint32

	// PaymentHash is the hash the outgoing HTLC(s) must use. It is
	// always the same hash as the incoming payment: trampoline relays do
	// not change the payment hash.
	PaymentHash lntypes.Hash

	// PaymentAddr is the payment secret/address to embed in the final
	// payload, when applicable. Always set for multi-part payments.
	PaymentAddr *[32]byte

	// IsMultiPart indicates whether the outgoing payment should be split
	// across multiple HTLCs from the start.
	IsMultiPart bool

	// TrampolineOnion carries the re-encrypted next-hop trampoline onion,
	// wrapped as a custom TLV record, set only when relaying to another
	// trampoline node.
	TrampolineOnion lnwire.CustomRecords

	// RoutingHints carries invoice routing hints, set only when relaying
	// to a non-trampoline recipient.
	RoutingHints [][]HopHint

	// RouteParams constrains the fee and timelock budget of the outgoing
	// payment.
	RouteParams RouteParams

	// MaxParts bounds the number of concurrent outgoing HTLC attempts.
	MaxParts uint32

	// StoreInDB and PublishEvent are always false for trampoline relay
	// payments: persistence and event publication of the relayed payment
	// are this package's Correlator's responsibility, not the payment
	// engine's.
	StoreInDB    bool
	PublishEvent bool
}

// OutgoingPaymentHandle identifies a dispatched outgoing payment and lets
// the caller observe its lifecycle.
type OutgoingPaymentHandle interface {
	// ID returns an identifier for the dispatched payment, unique for
	// the lifetime of the payment engine.
	ID() uint64
}

// PaymentEngine is the external outgoing-payment collaborator (single- or
// multi-part sender FSM). The Dispatcher calls SendPayment exactly once
// per relay instance; the returned handle's lifecycle is then
// observed exclusively through the PreimageReceived/PaymentSent/
// PaymentFailedEvent events, which are delivered to the relay instance
// through its HandlePreimageReceived, HandlePaymentSent and
// HandlePaymentFailed methods.
type PaymentEngine interface {
	SendPayment(req OutgoingPaymentRequest) (OutgoingPaymentHandle, error)
}

// OutgoingPaymentEvent is the tagged union of events the outgoing payment
// engine reports back for a dispatched payment. Exactly one of
// Preimage/Sent/Failed is populated.
type OutgoingPaymentEvent struct {
	PaymentID uint64

	Preimage *PreimageReceived
	Sent     *PaymentSent
	Failed   *PaymentFailedEvent
}

// PreimageReceived reports that the preimage for the outgoing payment has
// been observed, ahead of the payment engine reaching a terminal state.
// This can race with a later PaymentFailed for the same payment if, for
// example, one of several concurrent outgoing HTLC shards failed after
// another had already been fulfilled.
type PreimageReceived struct {
	Preimage lntypes.Preimage
}

// OutgoingPart summarizes one outgoing HTLC shard of a dispatched payment,
// used to build the TrampolinePaymentRelayed summary event.
type OutgoingPart struct {
	ChanID     lnwire.ChannelID
	AmountMsat lnwire.MilliSatoshi
}

// PaymentSent reports that the outgoing payment engine reached a
// successful terminal state.
type PaymentSent struct {
	Preimage lntypes.Preimage
	Parts    []OutgoingPart
}

// PaymentFailedEvent reports that the outgoing payment engine reached a
// failed terminal state, along with every failure its attempts collected.
type PaymentFailedEvent struct {
	Failures []PaymentFailure
}

// IncomingPart summarizes one incoming HTLC of the upstream set, used to
// build the TrampolinePaymentRelayed summary event.
type IncomingPart struct {
	ChanID     lnwire.ChannelID
	AmountMsat lnwire.MilliSatoshi
}

// TrampolinePaymentRelayed is published to the event bus once a relay
// completes successfully: the outgoing payment engine reported
// PaymentSent, whether or not the preimage had already been observed and
// fulfilled upstream via an earlier PreimageReceived.
type TrampolinePaymentRelayed struct {
	PaymentHash   lntypes.Hash
	IncomingParts []IncomingPart
	OutgoingParts []OutgoingPart
	Timestamp     time.Time
}
