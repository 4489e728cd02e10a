package trampoline

import (
	"sync"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/queue"
)

// relayState is the tagged variant of the three states a RelayInstance can
// occupy.
type relayState int

const (
	// stateReceiving is the initial state: the relay is still collecting
	// and validating the incoming HTLC set.
	stateReceiving relayState = iota

	// stateSending is entered once the incoming set is complete and
	// funded, and the outgoing payment has been dispatched.
	stateSending

	// stateTerminal is the final state. All further input is ignored.
	stateTerminal
)

func (s relayState) String() string {
	switch s {
	case stateReceiving:
		return "receiving"
	case stateSending:
		return "sending"
	case stateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// IncomingPacket is the event delivered to a RelayInstance for every
// incoming HTLC the switch routed to it, bundled with the decrypted inner
// onion payload and the re-encrypted onion to forward to the next
// trampoline hop (when applicable).
type IncomingPacket struct {
	// Add is the incoming HTLC itself.
	Add HTLC

	// Inner is the decrypted inner onion payload instructing the relay.
	Inner *NodeRelayPayload

	// NextOnion is the re-encrypted onion packet to hand to the next
	// trampoline hop. Only meaningful when Inner.IsNonTrampolineRecipient
	// is false.
	NextOnion []byte
}

// relayEvent is the internal tagged-union event type fed through the
// instance's single-consumer inbound queue. Adapters at the edge of the
// package translate the seven heterogeneous upstream event types
// (IncomingPacket, three Aggregator events, three PaymentEngine events)
// into this one shape.
type relayEvent struct {
	incoming  *IncomingPacket
	aggExtra  *AggregatorExtraPart
	aggFailed *AggregatorFailed
	aggDone   *AggregatorSucceeded
	preimage  *PreimageReceived
	sent      *PaymentSent
	failed    *PaymentFailedEvent
}

// RelayInstance is the per-payment trampoline relay state machine, with
// downstream outgoing-payment event handling folded into its Sending-state
// handlers. Exactly one instance exists per incoming trampoline payment,
// keyed by payment hash and a node-assigned relay ID; its lifecycle is
// bounded by that payment's resolution.
//
// A RelayInstance processes one event at a time from its inbound queue,
// single-threaded, one actor per payment. No locks are held; all
// synchronization with external collaborators is by message passing.
type RelayInstance struct {
	// ID is this relay's node-assigned identifier, used only for logging
	// and correlating with the pending-relay durable store.
	ID uint64

	paymentHash lntypes.Hash
	feePolicy   NodeFeePolicy

	sender  PendingRelaySender
	bus     EventBus
	metrics MetricsSink
	clock   clock.Clock

	currentBlockHeight func() uint32

	dispatcher        *Dispatcher
	aggregatorFactory AggregatorFactory

	inbox *queue.ConcurrentQueue
	quit  chan struct{}
	wg    sync.WaitGroup

	// The remaining fields are only ever touched from the single
	// dispatch goroutine started by Start, so no further locking is
	// required for them.

	state relayState

	// partialSet and secret are only meaningful in stateReceiving.
	partialSet []HTLC
	secret     [32]byte
	payloadOut *NodeRelayPayload
	onionOut   []byte

	aggregator Aggregator

	// upstream, fulfilledUpstream are only meaningful in stateSending.
	upstream          UpstreamSet
	fulfilledUpstream bool
}

// NewRelayInstance constructs a RelayInstance for a fresh incoming
// trampoline payment. The instance does nothing until Start is called.
func NewRelayInstance(id uint64, paymentHash lntypes.Hash,
	feePolicy NodeFeePolicy, sender PendingRelaySender, bus EventBus,
	metrics MetricsSink, clk clock.Clock,
	currentBlockHeight func() uint32, dispatcher *Dispatcher,
	aggregatorFactory AggregatorFactory) *RelayInstance {

	return &RelayInstance{
		ID:                 id,
		paymentHash:        paymentHash,
		feePolicy:          feePolicy,
		sender:             sender,
		bus:                bus,
		metrics:            metrics,
		clock:              clk,
		currentBlockHeight: currentBlockHeight,
		dispatcher:         dispatcher,
		aggregatorFactory:  aggregatorFactory,
		inbox:              queue.NewConcurrentQueue(20),
		quit:               make(chan struct{}),
		state:              stateReceiving,
	}
}

// Start launches the instance's dispatch goroutine. It is safe to begin
// calling HandleIncomingPacket and the downstream-event handlers
// immediately after Start returns.
func (r *RelayInstance) Start() {
	r.inbox.Start()

	r.wg.Add(1)
	go r.dispatchLoop()
}

// Stop tears down the instance's dispatch goroutine and any aggregator it
// may still own. It is safe to call once the instance has reached
// stateTerminal, or to force an early shutdown.
func (r *RelayInstance) Stop() {
	close(r.quit)
	r.inbox.Stop()
	r.wg.Wait()

	// The dispatch goroutine has exited, so the aggregator field can be
	// touched from here.
	r.stopAggregator()
}

// HandleIncomingPacket feeds a newly arrived incoming HTLC, together with
// its decrypted inner onion payload, to the instance.
func (r *RelayInstance) HandleIncomingPacket(pkt IncomingPacket) {
	r.enqueue(relayEvent{incoming: &pkt})
}

// HandlePreimageReceived feeds a preimage observed for the dispatched
// outgoing payment to the instance, ahead of that payment's terminal
// event.
func (r *RelayInstance) HandlePreimageReceived(preimage lntypes.Preimage) {
	r.enqueue(relayEvent{preimage: &PreimageReceived{Preimage: preimage}})
}

// HandlePaymentSent feeds the outgoing payment engine's successful
// terminal event to the instance.
func (r *RelayInstance) HandlePaymentSent(sent PaymentSent) {
	r.enqueue(relayEvent{sent: &sent})
}

// HandlePaymentFailed feeds the outgoing payment engine's failed terminal
// event to the instance.
func (r *RelayInstance) HandlePaymentFailed(failed PaymentFailedEvent) {
	r.enqueue(relayEvent{failed: &failed})
}

func (r *RelayInstance) enqueue(ev relayEvent) {
	select {
	case r.inbox.ChanIn() <- ev:
	case <-r.quit:
	}
}

// bindAggregator starts a goroutine that forwards every event the
// aggregator reports into this instance's own inbound queue, translating
// it into the shared relayEvent shape. This is the adapter fan-in that
// lets the aggregator's three event types join the same queue as
// IncomingPacket and the outgoing-payment events.
func (r *RelayInstance) bindAggregator(events <-chan AggregatorEvent) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}

				r.forwardAggregatorEvent(ev)

			case <-r.quit:
				return
			}
		}
	}()
}

func (r *RelayInstance) forwardAggregatorEvent(ev AggregatorEvent) {
	switch {
	case ev.Extra != nil:
		r.enqueue(relayEvent{aggExtra: ev.Extra})
	case ev.Failed != nil:
		r.enqueue(relayEvent{aggFailed: ev.Failed})
	case ev.Succeeded != nil:
		r.enqueue(relayEvent{aggDone: ev.Succeeded})
	}
}

// dispatchLoop is the instance's single consumer: it reads one event at a
// time off the inbound queue and dispatches it to the state-specific
// handler. This is the only goroutine that ever touches state, making the
// rest of the type's fields safe to access without locks.
//
// The loop keeps running after the instance reaches stateTerminal: a late
// duplicate HTLC or a stray aggregator message arriving after resolution
// must still be explicitly rejected rather than silently
// dropped, so only Stop (or the queue shutting down) ends the loop. The
// owner is expected to call Stop once it no longer needs to guard against
// such stragglers for this payment hash.
func (r *RelayInstance) dispatchLoop() {
	defer r.wg.Done()

	for {
		select {
		case item, ok := <-r.inbox.ChanOut():
			if !ok {
				return
			}

			ev, ok := item.(relayEvent)
			if !ok {
				log.Errorf("relay %v: unexpected item on "+
					"inbox: %T", r.ID, item)
				continue
			}

			r.handle(ev)

		case <-r.quit:
			return
		}
	}
}

func (r *RelayInstance) handle(ev relayEvent) {
	switch {
	case ev.incoming != nil:
		r.handleIncomingPacket(*ev.incoming)
	case ev.aggExtra != nil:
		r.handleAggregatorExtra(*ev.aggExtra)
	case ev.aggFailed != nil:
		r.handleAggregatorFailed(*ev.aggFailed)
	case ev.aggDone != nil:
		r.handleAggregatorSucceeded(*ev.aggDone)
	case ev.preimage != nil:
		r.handlePreimageReceived(*ev.preimage)
	case ev.sent != nil:
		r.handlePaymentSent(*ev.sent)
	case ev.failed != nil:
		r.handlePaymentFailed(*ev.failed)
	}
}

// handleIncomingPacket implements the Start->Receiving transition (the
// very first packet) and the rest of the Receiving state's incoming-HTLC
// handling. Once the instance has left Receiving, every incoming packet
// is an extra HTLC and is rejected outright.
func (r *RelayInstance) handleIncomingPacket(pkt IncomingPacket) {
	if r.state != stateReceiving {
		r.rejectExtraHTLC(pkt.Add)
		return
	}

	if len(r.partialSet) == 0 {
		if pkt.Add.OuterPaymentSecret == nil {
			r.failIncomingAmount(pkt.Add)
			r.state = stateTerminal

			return
		}

		r.secret = *pkt.Add.OuterPaymentSecret
		r.payloadOut = pkt.Inner
		r.onionOut = pkt.NextOnion

		aggregator, events := r.aggregatorFactory(
			pkt.Add.PaymentHash, pkt.Add.OuterTotalAmountMsat,
		)
		r.aggregator = aggregator
		r.bindAggregator(events)

		r.partialSet = append(r.partialSet, pkt.Add)
		r.aggregator.AddHTLC(pkt.Add)

		return
	}

	if pkt.Add.OuterPaymentSecret == nil ||
		*pkt.Add.OuterPaymentSecret != r.secret {

		r.failIncomingAmount(pkt.Add)
		return
	}

	r.partialSet = append(r.partialSet, pkt.Add)
	r.aggregator.AddHTLC(pkt.Add)
}

// handleAggregatorExtra rejects a late or surplus HTLC the aggregator
// observed after the set was already resolved. This runs regardless of
// current state: the aggregator may still deliver stray messages briefly
// after being stopped.
func (r *RelayInstance) handleAggregatorExtra(extra AggregatorExtraPart) {
	r.rejectExtraHTLC(extra.HTLC)
}

func (r *RelayInstance) handleAggregatorFailed(failed AggregatorFailed) {
	if r.state != stateReceiving {
		return
	}

	for _, htlc := range failed.Parts {
		if !r.ownsHTLC(htlc.Key()) {
			continue
		}

		reason := lnwire.NewFailIncorrectDetails(
			htlc.AmountMsat, r.currentBlockHeight(),
		)
		r.sender.FailHTLC(htlc.Key(), reason)
	}

	r.stopAggregator()
	r.state = stateTerminal
}

func (r *RelayInstance) handleAggregatorSucceeded(done AggregatorSucceeded) {
	if r.state != stateReceiving {
		return
	}

	r.stopAggregator()

	upstream := UpstreamSet{Adds: done.Parts, Secret: r.secret}
	amountOut := r.payloadOut.AmountToForwardMsat
	expiryOut := r.payloadOut.OutgoingCLTV

	if failMsg := r.feePolicy.ValidateRelay(
		upstream.AmountIn(), upstream.ExpiryIn(), amountOut, expiryOut,
	); failMsg != nil {
		for _, htlc := range upstream.Adds {
			r.sender.FailHTLC(htlc.Key(), failMsg)
		}

		r.metrics.RecordPaymentRelayFailed(failMsg.Error())
		r.state = stateTerminal

		return
	}

	routeParams := r.feePolicy.ComputeRouteParams(
		upstream.AmountIn(), upstream.ExpiryIn(), amountOut, expiryOut,
	)

	handle, err := r.dispatcher.Dispatch(
		r.paymentHash, r.payloadOut, r.onionOut, routeParams,
	)
	if err != nil {
		log.Errorf("relay %v: dispatch failed: %v", r.ID, err)

		failMsg := &lnwire.FailTemporaryNodeFailure{}
		for _, htlc := range upstream.Adds {
			r.sender.FailHTLC(htlc.Key(), failMsg)
		}

		r.metrics.RecordPaymentRelayFailed(failMsg.Error())
		r.state = stateTerminal

		return
	}

	r.upstream = upstream
	r.state = stateSending

	log.Debugf("relay %v: dispatched outgoing payment %v", r.ID, handle.ID())
}

// handlePreimageReceived implements the preimage race: the first preimage
// observed, whether from PreimageReceived or PaymentSent, latches
// fulfilledUpstream and is never reissued.
func (r *RelayInstance) handlePreimageReceived(pr PreimageReceived) {
	if r.state != stateSending {
		return
	}

	r.fulfillUpstream(pr.Preimage)
}

func (r *RelayInstance) handlePaymentSent(sent PaymentSent) {
	if r.state != stateSending {
		return
	}

	r.fulfillUpstream(sent.Preimage)

	r.bus.Publish(TrampolinePaymentRelayed{
		PaymentHash:   r.paymentHash,
		IncomingParts: incomingParts(r.upstream.Adds),
		OutgoingParts: sent.Parts,
		Timestamp:     r.clock.Now(),
	})

	r.state = stateTerminal
}

func (r *RelayInstance) handlePaymentFailed(failed PaymentFailedEvent) {
	if r.state != stateSending {
		return
	}

	if r.fulfilledUpstream {
		log.Warnf("relay %v: payment failed after upstream was "+
			"already fulfilled, ignoring (preimage race)", r.ID)

		return
	}

	failMsg := TranslateFailure(
		failed.Failures, r.upstream.AmountIn(),
		r.payloadOut.AmountToForwardMsat, r.payloadOut.OutgoingNodeID,
		r.feePolicy,
	)

	for _, htlc := range r.upstream.Adds {
		r.sender.FailHTLC(htlc.Key(), failMsg)
	}

	r.metrics.RecordPaymentRelayFailed(failMsg.Error())
	r.state = stateTerminal
}

func (r *RelayInstance) fulfillUpstream(preimage lntypes.Preimage) {
	if r.fulfilledUpstream {
		return
	}

	for _, htlc := range r.upstream.Adds {
		r.sender.FulfillHTLC(htlc.Key(), preimage)
	}

	r.fulfilledUpstream = true
}

func (r *RelayInstance) rejectExtraHTLC(htlc HTLC) {
	r.failIncomingAmount(htlc)
}

func (r *RelayInstance) failIncomingAmount(htlc HTLC) {
	r.sender.FailHTLC(htlc.Key(), lnwire.NewFailIncorrectDetails(
		htlc.AmountMsat, r.currentBlockHeight(),
	))
}

func (r *RelayInstance) ownsHTLC(key HTLCKey) bool {
	for _, htlc := range r.partialSet {
		if htlc.Key() == key {
			return true
		}
	}

	return false
}

func (r *RelayInstance) stopAggregator() {
	if r.aggregator == nil {
		return
	}

	r.aggregator.Stop()
	r.aggregator = nil
}

func incomingParts(adds []HTLC) []IncomingPart {
	parts := make([]IncomingPart, 0, len(adds))
	for _, htlc := range adds {
		parts = append(parts, IncomingPart{
			ChanID:     htlc.ChanID,
			AmountMsat: htlc.AmountMsat,
		})
	}

	return parts
}
