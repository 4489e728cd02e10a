package trampoline

import (
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
)

// TranslateFailure maps the set of failures reported for a dispatched
// outgoing payment, together with the relay's own amount/fee context, onto
// the single upstream failure message the Coordinator should use to fail
// every HTLC in the upstream set. It returns nil if failures is empty,
// meaning no upstream failure should be issued (the caller has nothing to
// translate - e.g. the payment actually succeeded).
//
// The decision table is evaluated top to bottom; the first matching rule
// wins: TrampolineFeeInsufficient is preferred over TemporaryNodeFailure
// whenever the sender has not yet paid enough to make a retry worthwhile.
func TranslateFailure(failures []PaymentFailure, amountIn,
	amountToForward lnwire.MilliSatoshi, outgoingNodeID route.Vertex,
	feePolicy NodeFeePolicy) lnwire.FailureMessage {

	if len(failures) == 0 {
		return nil
	}

	if len(failures) == 1 && failures[0].IsLocal(LocalFailureBalanceTooLow) {
		fee := feePolicy.NodeFee(amountToForward)
		headroom := amountIn - amountToForward

		if amountIn >= amountToForward && headroom >= 5*fee {
			return &lnwire.FailTemporaryNodeFailure{}
		}

		return &lnwire.FailTrampolineFeeInsufficient{}
	}

	for _, f := range failures {
		if f.IsLocal(LocalFailureRouteNotFound) {
			return &lnwire.FailTrampolineFeeInsufficient{}
		}
	}

	var firstRemote lnwire.FailureMessage
	for _, f := range failures {
		if !f.IsRemote() {
			continue
		}

		if firstRemote == nil {
			firstRemote = f.RemoteMessage
		}

		if f.RemoteOriginNodeID == outgoingNodeID {
			return f.RemoteMessage
		}
	}

	if firstRemote != nil {
		return firstRemote
	}

	return &lnwire.FailTemporaryNodeFailure{}
}
