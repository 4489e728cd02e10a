package trampoline

import (
	"github.com/lightningnetwork/lnd/fn"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
)

// HTLC describes a single incoming HTLC add that is a candidate part of a
// trampoline payment's upstream set.
type HTLC struct {
	// HTLCID is the short-lived identifier the owning channel assigned to
	// this HTLC.
	HTLCID uint64

	// ChanID identifies the channel this HTLC arrived on.
	ChanID lnwire.ChannelID

	// AmountMsat is the amount, in millisatoshis, of this HTLC.
	AmountMsat lnwire.MilliSatoshi

	// Expiry is the absolute block height at which this HTLC times out.
	Expiry uint32

	// PaymentHash is the payment hash carried by this HTLC.
	PaymentHash lntypes.Hash

	// OuterPaymentSecret is the payment secret from the outer onion
	// payload, if the sender included one. A nil value means the sender
	// omitted it, which is always treated as a protocol violation by the
	// relay.
	OuterPaymentSecret *[32]byte

	// OuterTotalAmountMsat is the sender-declared total amount for the
	// full multi-part payment this HTLC belongs to.
	OuterTotalAmountMsat lnwire.MilliSatoshi
}

// Key returns the identifier that uniquely addresses this HTLC within the
// switch: its (channel, htlc-id) pair.
func (h HTLC) Key() HTLCKey {
	return HTLCKey{ChanID: h.ChanID, HTLCID: h.HTLCID}
}

// HTLCKey uniquely identifies an incoming HTLC within the switch.
type HTLCKey struct {
	ChanID lnwire.ChannelID
	HTLCID uint64
}

// HopHint is a single hint about a channel that can be used to route a
// payment to a node without a public channel graph entry, taken verbatim
// from the inner onion's invoice_routing_info field.
type HopHint struct {
	// NodeID is the public key of the node at the start of the channel.
	NodeID route.Vertex

	// ChannelID is the short channel ID of the hint's channel.
	ChannelID uint64

	// FeeBaseMSat is the base fee, in millisatoshis, charged by NodeID
	// for forwarding across this channel.
	FeeBaseMSat uint32

	// FeeProportionalMillionths is the proportional fee, in millionths,
	// charged by NodeID for forwarding across this channel.
	FeeProportionalMillionths uint32

	// CLTVExpiryDelta is the CLTV delta NodeID requires for this channel.
	CLTVExpiryDelta uint16
}

// NodeRelayPayload is the decrypted inner onion payload instructing this
// node to relay a payment onward, either to another trampoline node or
// (when InvoiceFeatures is non-nil) directly to a non-trampoline recipient.
type NodeRelayPayload struct {
	// AmountToForwardMsat is the amount this node must forward onward.
	AmountToForwardMsat lnwire.MilliSatoshi

	// OutgoingCLTV is the absolute expiry height the outgoing HTLC(s)
	// must use.
	OutgoingCLTV uint32

	// OutgoingNodeID is the node this payment should be relayed to.
	OutgoingNodeID route.Vertex

	// PaymentSecret is the payment secret to use for the outgoing
	// payment, if the sender supplied one. It may be nil in every case,
	// including a single-part relay to a non-trampoline recipient.
	PaymentSecret *[32]byte

	// InvoiceFeatures, when non-nil, signals that OutgoingNodeID is a
	// non-trampoline recipient and carries that recipient's invoice
	// feature vector.
	InvoiceFeatures []byte

	// InvoiceRoutingInfo carries routing hints for the non-trampoline
	// recipient, one slice of hops per route.
	InvoiceRoutingInfo [][]HopHint
}

// HasBasicMPP returns true if the invoice feature vector signals support
// for the basic_mpp feature. Feature bit assignment follows BOLT-9: feature
// bits 16/17 (even/odd) for basic_mpp.
func (p *NodeRelayPayload) HasBasicMPP() bool {
	if len(p.InvoiceFeatures) == 0 {
		return false
	}

	const basicMPPBitEven = 16
	const basicMPPBitOdd = 17

	return featureBitSet(p.InvoiceFeatures, basicMPPBitEven) ||
		featureBitSet(p.InvoiceFeatures, basicMPPBitOdd)
}

// IsNonTrampolineRecipient returns true when this payload signals that the
// final hop is a plain (non-trampoline) recipient.
func (p *NodeRelayPayload) IsNonTrampolineRecipient() bool {
	return p.InvoiceFeatures != nil
}

// featureBitSet reports whether the given bit is set in a BOLT-9 style
// feature vector, where the vector is big-endian and bit 0 is the
// least-significant bit of the last byte.
func featureBitSet(features []byte, bit int) bool {
	byteIdx := len(features) - 1 - bit/8
	if byteIdx < 0 {
		return false
	}

	return features[byteIdx]&(1<<uint(bit%8)) != 0
}

// UpstreamSet is the aggregated, validated set of incoming HTLCs that make
// up one side of a trampoline relay.
type UpstreamSet struct {
	// Adds is the ordered set of incoming HTLCs that were aggregated for
	// this payment.
	Adds []HTLC

	// Secret is the payment secret shared by every HTLC in Adds.
	Secret [32]byte
}

// AmountIn returns the sum of the amounts of every HTLC in the set.
func (u UpstreamSet) AmountIn() lnwire.MilliSatoshi {
	var total lnwire.MilliSatoshi
	for _, htlc := range u.Adds {
		total += htlc.AmountMsat
	}

	return total
}

// ExpiryIn returns the minimum expiry height across every HTLC in the set.
// The set is assumed to be non-empty.
func (u UpstreamSet) ExpiryIn() uint32 {
	min := u.Adds[0].Expiry
	for _, htlc := range u.Adds[1:] {
		if htlc.Expiry < min {
			min = htlc.Expiry
		}
	}

	return min
}

// NodeFeePolicy holds the forwarding fee and timelock policy this node
// applies when relaying a trampoline payment.
type NodeFeePolicy struct {
	// FeeBaseMSat is the flat component of the forwarding fee.
	FeeBaseMSat lnwire.MilliSatoshi

	// FeeProportionalMillionths is the proportional component of the
	// forwarding fee, expressed in millionths of the forwarded amount.
	FeeProportionalMillionths uint64

	// ExpiryDelta is the minimum number of blocks this node requires
	// between the incoming HTLC expiry and the outgoing HTLC expiry.
	ExpiryDelta uint32
}

// RouteParams are the constraints this relay imposes on the outgoing
// payment it dispatches: a maximum fee budget derived from what the sender
// already paid, and a maximum total CLTV derived from the incoming
// timelock. The relay never advertises a percentage-based fee bound; it
// only spends what the sender explicitly funded.
type RouteParams struct {
	// MaxFeeBaseMSat is the maximum fee, in millisatoshis, the outgoing
	// payment may spend on routing fees.
	MaxFeeBaseMSat lnwire.MilliSatoshi

	// RouteMaxCLTV is the maximum total CLTV delta the outgoing route may
	// accumulate.
	RouteMaxCLTV uint32

	// MaxFeePct is always zero: this relay forbids percentage-based fee
	// bounds.
	MaxFeePct float64
}

// LocalFailureReason enumerates the reasons the outgoing payment engine can
// report for a locally-originated payment failure.
type LocalFailureReason int

const (
	// LocalFailureRouteNotFound indicates that no route to the
	// destination could be found given the route params.
	LocalFailureRouteNotFound LocalFailureReason = iota

	// LocalFailureBalanceTooLow indicates that this node lacked the
	// local channel liquidity to dispatch the payment.
	LocalFailureBalanceTooLow

	// LocalFailureOther covers any other locally-originated failure.
	LocalFailureOther
)

// PaymentFailure describes a single failure reported for an outgoing
// payment attempt, either locally-originated or relayed back from a remote
// node on the route.
type PaymentFailure struct {
	// Local is set when this is a locally-originated failure. Exactly
	// one of Local/Remote is populated.
	Local fn.Option[LocalFailureReason]

	// RemoteOriginNodeID identifies the node that produced RemoteMessage.
	// Only meaningful when RemoteMessage is non-nil.
	RemoteOriginNodeID route.Vertex

	// RemoteMessage is the onion failure message reported by a remote
	// node on the attempted route. Only meaningful when non-nil.
	RemoteMessage lnwire.FailureMessage
}

// IsLocal returns true if this is a locally-originated failure with the
// given reason.
func (f PaymentFailure) IsLocal(reason LocalFailureReason) bool {
	return fn.MapOptionZ(f.Local, func(r LocalFailureReason) bool {
		return r == reason
	})
}

// IsRemote returns true if this is a remote failure.
func (f PaymentFailure) IsRemote() bool {
	return f.RemoteMessage != nil
}
