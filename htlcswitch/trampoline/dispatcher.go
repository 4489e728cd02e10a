package trampoline

import (
	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/record"
)

// TrampolineOnionCustomType is the custom TLV type used to carry the
// re-encrypted next-hop trampoline onion on the outgoing UpdateAddHTLC,
// chosen from the experimental custom-record range (above
// record.CustomTypeStart) the same way other experimental records (e.g.
// lnwire.ExperimentalEndorsementType) are assigned.
const TrampolineOnionCustomType = record.CustomTypeStart + 1

// Dispatcher builds exactly one outgoing payment request from a validated,
// complete upstream set and the relay's inner-onion payload, and hands it
// to the configured PaymentEngine. A Dispatcher instance is meant to be
// used at most once per relay; the RelayInstance enforces
// that invariant by only ever constructing the Dispatcher's request once,
// on the Receiving -> Sending transition.
type Dispatcher struct {
	engine             PaymentEngine
	newSecret          func() ([32]byte, error)
	maxPaymentAttempts uint32
}

// NewDispatcher returns a Dispatcher that sends outgoing payments through
// engine, using newSecret to mint a fresh anti-probing payment secret for
// trampoline-to-trampoline relays.
func NewDispatcher(engine PaymentEngine, maxPaymentAttempts uint32,
	newSecret func() ([32]byte, error)) *Dispatcher {

	return &Dispatcher{
		engine:             engine,
		maxPaymentAttempts: maxPaymentAttempts,
		newSecret:          newSecret,
	}
}

// Dispatch builds the outgoing payment request for the given relay context
// and sends it via the configured PaymentEngine.
func (d *Dispatcher) Dispatch(paymentHash lntypes.Hash,
	payload *NodeRelayPayload, trampolineOnion []byte,
	routeParams RouteParams) (OutgoingPaymentHandle, error) {

	req, err := d.buildRequest(paymentHash, payload, trampolineOnion, routeParams)
	if err != nil {
		return nil, err
	}

	return d.engine.SendPayment(*req)
}

// buildRequest chooses the outgoing payment variant:
//
//   - no invoice features: relay to another trampoline node, multi-part,
//     with a fresh anti-probing payment secret and the re-encrypted
//     trampoline onion attached as a custom TLV.
//   - invoice features present, basic_mpp supported, and a payment secret
//     was supplied: multi-part relay directly to the final (non-trampoline)
//     recipient, using their payment secret and routing hints.
//   - otherwise: single-part relay to the final recipient, with whatever
//     payment secret (possibly none) the invoice payload carried.
func (d *Dispatcher) buildRequest(paymentHash lntypes.Hash,
	payload *NodeRelayPayload, trampolineOnion []byte,
	routeParams RouteParams) (*OutgoingPaymentRequest, error) {

	base := OutgoingPaymentRequest{
		TargetNodeID: payload.OutgoingNodeID,
		AmountMsat:   payload.AmountToForwardMsat,
		FinalExpiry:  payload.OutgoingCLTV,
		PaymentHash:  paymentHash,
		RouteParams:  routeParams,
		MaxParts:     d.maxPaymentAttempts,
		StoreInDB:    false,
		PublishEvent: false,
	}

	switch {
	case !payload.IsNonTrampolineRecipient():
		secret, err := d.newSecret()
		if err != nil {
			return nil, errors.Errorf(
				"unable to mint fresh payment secret: %v", err,
			)
		}

		base.PaymentAddr = &secret
		base.IsMultiPart = true
		base.TrampolineOnion = customRecordsForOnion(trampolineOnion)

		return &base, nil

	case payload.HasBasicMPP() && payload.PaymentSecret != nil:
		base.PaymentAddr = payload.PaymentSecret
		base.IsMultiPart = true
		base.RoutingHints = payload.InvoiceRoutingInfo

		return &base, nil

	default:
		base.PaymentAddr = payload.PaymentSecret
		base.IsMultiPart = false

		return &base, nil
	}
}

// customRecordsForOnion wraps a re-encrypted trampoline onion as a
// lnwire.CustomRecords entry, exercising the same custom-records
// machinery the wire UpdateAddHTLC message uses for its ExtraData.
func customRecordsForOnion(onion []byte) lnwire.CustomRecords {
	if len(onion) == 0 {
		return nil
	}

	return lnwire.CustomRecords{
		uint64(TrampolineOnionCustomType): onion,
	}
}
