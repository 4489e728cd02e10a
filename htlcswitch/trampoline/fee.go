package trampoline

import "github.com/lightningnetwork/lnd/lnwire"

// NodeFee computes the forwarding fee this node charges to relay the given
// amount, per its configured fee policy: a flat base fee plus a
// proportional component, with the proportional component rounded down
// (integer division, no rounding after the divide).
func (p NodeFeePolicy) NodeFee(amt lnwire.MilliSatoshi) lnwire.MilliSatoshi {
	proportional := (uint64(amt) * p.FeeProportionalMillionths) / 1_000_000

	return p.FeeBaseMSat + lnwire.MilliSatoshi(proportional)
}

// ValidateRelay checks that the incoming HTLC set funds both this node's
// forwarding fee and its required expiry delta for the requested outgoing
// payment. It returns the upstream failure message to use if either check
// fails, or nil if the relay is sufficiently funded and timelock-safe.
//
// Both comparisons are strict: a relay that pays exactly the required fee,
// or leaves exactly the required expiry delta, is accepted.
func (p NodeFeePolicy) ValidateRelay(amountIn lnwire.MilliSatoshi,
	expiryIn uint32, amountOut lnwire.MilliSatoshi,
	expiryOut uint32) lnwire.FailureMessage {

	if amountIn < amountOut {
		return &lnwire.FailTrampolineFeeInsufficient{}
	}

	offered := amountIn - amountOut
	if offered < p.NodeFee(amountOut) {
		return &lnwire.FailTrampolineFeeInsufficient{}
	}

	if expiryIn < expiryOut {
		return &lnwire.FailTrampolineExpiryTooSoon{}
	}

	if expiryIn-expiryOut < p.ExpiryDelta {
		return &lnwire.FailTrampolineExpiryTooSoon{}
	}

	return nil
}

// ComputeRouteParams derives the route constraints this relay imposes on
// the outgoing payment it is about to dispatch, from the already-validated
// incoming/outgoing amounts and expiries. Callers must have already
// confirmed ValidateRelay returns nil for the same inputs.
func (p NodeFeePolicy) ComputeRouteParams(amountIn lnwire.MilliSatoshi,
	expiryIn uint32, amountOut lnwire.MilliSatoshi,
	expiryOut uint32) RouteParams {

	return RouteParams{
		MaxFeeBaseMSat: amountIn - amountOut - p.NodeFee(amountOut),
		RouteMaxCLTV:   expiryIn - expiryOut - p.ExpiryDelta,
		MaxFeePct:      0,
	}
}
