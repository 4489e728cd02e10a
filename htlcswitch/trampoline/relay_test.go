package trampoline

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/stretchr/testify/require"
)

type failCall struct {
	key    HTLCKey
	reason lnwire.FailureMessage
}

type fulfillCall struct {
	key      HTLCKey
	preimage lntypes.Preimage
}

// fakeSender records every fail/fulfill command issued by a RelayInstance
// and signals a buffered notify channel so tests can block until a given
// number of commands have been observed, instead of sleeping.
type fakeSender struct {
	mu       sync.Mutex
	fails    []failCall
	fulfills []fulfillCall
	notify   chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{notify: make(chan struct{}, 256)}
}

func (f *fakeSender) FailHTLC(key HTLCKey, reason lnwire.FailureMessage) {
	f.mu.Lock()
	f.fails = append(f.fails, failCall{key: key, reason: reason})
	f.mu.Unlock()
	f.notify <- struct{}{}
}

func (f *fakeSender) FulfillHTLC(key HTLCKey, preimage lntypes.Preimage) {
	f.mu.Lock()
	f.fulfills = append(f.fulfills, fulfillCall{key: key, preimage: preimage})
	f.mu.Unlock()
	f.notify <- struct{}{}
}

func (f *fakeSender) waitForCalls(t *testing.T, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		select {
		case <-f.notify:
		case <-time.After(5 * time.Second):
			require.FailNow(t, "timed out waiting for sender call")
		}
	}
}

func (f *fakeSender) snapshot() ([]failCall, []fulfillCall) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]failCall(nil), f.fails...),
		append([]fulfillCall(nil), f.fulfills...)
}

type fakeBus struct {
	mu     sync.Mutex
	events []TrampolinePaymentRelayed
}

func (b *fakeBus) Publish(ev TrampolinePaymentRelayed) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *fakeBus) snapshot() []TrampolinePaymentRelayed {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]TrampolinePaymentRelayed(nil), b.events...)
}

type fakeMetrics struct {
	mu    sync.Mutex
	fails []string
}

func (m *fakeMetrics) RecordPaymentRelayFailed(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails = append(m.fails, name)
}

// fakeAggregator just records the HTLCs handed to it; the test drives its
// reported events directly through the channel the factory hands back.
type fakeAggregator struct {
	mu    sync.Mutex
	added []HTLC
}

func (a *fakeAggregator) AddHTLC(htlc HTLC) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.added = append(a.added, htlc)
}

func (a *fakeAggregator) Stop() {}

// newTestAggregatorFactory returns an AggregatorFactory together with the
// send side of the channel its single Aggregator reports events on, and a
// called flag the test can inspect from outside the relay's own goroutine.
func newTestAggregatorFactory() (AggregatorFactory, chan AggregatorEvent, *atomic.Bool) {
	eventsCh := make(chan AggregatorEvent, 16)
	var called atomic.Bool

	factory := func(paymentHash [32]byte,
		totalAmount lnwire.MilliSatoshi) (Aggregator, <-chan AggregatorEvent) {

		called.Store(true)

		return &fakeAggregator{}, eventsCh
	}

	return factory, eventsCh, &called
}

func newTestDispatcher(engine PaymentEngine) *Dispatcher {
	return NewDispatcher(engine, 16, newTestSecret)
}

func newTestRelay(t *testing.T, sender *fakeSender, bus *fakeBus,
	metrics *fakeMetrics, engine PaymentEngine,
	aggFactory AggregatorFactory) *RelayInstance {

	t.Helper()

	clk := clock.NewTestClock(time.Unix(1700000000, 0))
	relay := NewRelayInstance(
		1, testPaymentHash, testFeePolicy, sender, bus, metrics, clk,
		func() uint32 { return 600100 }, newTestDispatcher(engine),
		aggFactory,
	)
	relay.Start()
	t.Cleanup(relay.Stop)

	return relay
}

func testHTLC(id uint64, amt lnwire.MilliSatoshi, expiry uint32,
	secret *[32]byte, total lnwire.MilliSatoshi) HTLC {

	return HTLC{
		HTLCID:               id,
		ChanID:               lnwire.ChannelID{byte(id)},
		AmountMsat:           amt,
		Expiry:               expiry,
		PaymentHash:          testPaymentHash,
		OuterPaymentSecret:   secret,
		OuterTotalAmountMsat: total,
	}
}

// TestRelayHappyPathTrampolineToTrampoline covers the full MPP
// trampoline-to-trampoline relay: two incoming HTLCs aggregate, the fee
// budget is satisfied, the outgoing payment is dispatched, and once it
// succeeds both upstream HTLCs are fulfilled and a summary event published.
func TestRelayHappyPathTrampolineToTrampoline(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	bus := &fakeBus{}
	metrics := &fakeMetrics{}
	engine := &capturingPaymentEngine{}
	aggFactory, events, called := newTestAggregatorFactory()

	relay := newTestRelay(t, sender, bus, metrics, engine, aggFactory)

	secret := [32]byte{0x42}
	payload := &NodeRelayPayload{
		AmountToForwardMsat: 980_000,
		OutgoingCLTV:        600150,
		OutgoingNodeID:      route.Vertex{0x09},
	}

	htlc1 := testHTLC(1, 500_500, 600200, &secret, 1_001_000)
	htlc2 := testHTLC(2, 500_500, 600210, &secret, 1_001_000)

	relay.HandleIncomingPacket(IncomingPacket{Add: htlc1, Inner: payload})
	relay.HandleIncomingPacket(IncomingPacket{Add: htlc2, Inner: payload})

	require.Eventually(t, func() bool { return called.Load() }, time.Second, time.Millisecond)

	events <- AggregatorEvent{Succeeded: &AggregatorSucceeded{
		Parts: []HTLC{htlc1, htlc2},
	}}

	preimage := lntypes.Preimage{0x01, 0x02}
	require.Eventually(t, func() bool {
		return engine.lastReq.AmountMsat == payload.AmountToForwardMsat
	}, time.Second, time.Millisecond)

	relay.HandlePaymentSent(PaymentSent{
		Preimage: preimage,
		Parts: []OutgoingPart{
			{ChanID: lnwire.ChannelID{0x09}, AmountMsat: 980_000},
		},
	})

	sender.waitForCalls(t, 2)

	_, fulfills := sender.snapshot()
	require.Len(t, fulfills, 2)
	require.Equal(t, preimage, fulfills[0].preimage)
	require.Equal(t, preimage, fulfills[1].preimage)

	require.Eventually(t, func() bool {
		return len(bus.snapshot()) == 1
	}, time.Second, time.Millisecond)

	published := bus.snapshot()[0]
	require.Equal(t, testPaymentHash, published.PaymentHash)
	require.Len(t, published.IncomingParts, 2)
}

// TestRelayInsufficientFee covers the case where the aggregated upstream
// set does not cover this node's forwarding fee: every upstream HTLC is
// failed with TrampolineFeeInsufficient and no outgoing payment is ever
// dispatched.
func TestRelayInsufficientFee(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	bus := &fakeBus{}
	metrics := &fakeMetrics{}
	engine := &capturingPaymentEngine{}
	aggFactory, events, _ := newTestAggregatorFactory()

	relay := newTestRelay(t, sender, bus, metrics, engine, aggFactory)

	secret := [32]byte{0x42}
	payload := &NodeRelayPayload{
		AmountToForwardMsat: 999_500,
		OutgoingCLTV:        600150,
		OutgoingNodeID:      route.Vertex{0x09},
	}

	htlc := testHTLC(1, 1_000_000, 600200, &secret, 1_000_000)
	relay.HandleIncomingPacket(IncomingPacket{Add: htlc, Inner: payload})

	events <- AggregatorEvent{Succeeded: &AggregatorSucceeded{
		Parts: []HTLC{htlc},
	}}

	sender.waitForCalls(t, 1)

	fails, fulfills := sender.snapshot()
	require.Len(t, fails, 1)
	require.Empty(t, fulfills)
	require.Equal(t, &lnwire.FailTrampolineFeeInsufficient{}, fails[0].reason)
	require.Equal(t, uint64(0), engine.nextID)
}

// TestRelayRejectsFirstHTLCWithoutSecret covers the immediate-termination
// boundary case: the very first incoming HTLC carries no payment secret at
// all, so the relay fails it outright and never spawns an aggregator.
func TestRelayRejectsFirstHTLCWithoutSecret(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	bus := &fakeBus{}
	metrics := &fakeMetrics{}
	engine := &capturingPaymentEngine{}
	aggFactory, _, called := newTestAggregatorFactory()

	relay := newTestRelay(t, sender, bus, metrics, engine, aggFactory)

	payload := &NodeRelayPayload{AmountToForwardMsat: 900_000}
	htlc := testHTLC(1, 1_000_000, 600200, nil, 1_000_000)

	relay.HandleIncomingPacket(IncomingPacket{Add: htlc, Inner: payload})

	sender.waitForCalls(t, 1)

	fails, _ := sender.snapshot()
	require.Len(t, fails, 1)
	require.IsType(t, &lnwire.FailIncorrectOrUnknownPaymentDetails{}, fails[0].reason)
	require.False(t, called.Load())
}

// TestRelaySecretMismatchRejectsOnlyExtraHTLC covers the probing-defense
// boundary case: a second HTLC for the same in-progress set arrives with a
// mismatched payment secret. It alone is rejected; the first HTLC's place
// in the aggregator is untouched.
func TestRelaySecretMismatchRejectsOnlyExtraHTLC(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	bus := &fakeBus{}
	metrics := &fakeMetrics{}
	engine := &capturingPaymentEngine{}
	aggFactory, _, _ := newTestAggregatorFactory()

	relay := newTestRelay(t, sender, bus, metrics, engine, aggFactory)

	secret := [32]byte{0x42}
	wrongSecret := [32]byte{0x43}
	payload := &NodeRelayPayload{AmountToForwardMsat: 900_000}

	htlc1 := testHTLC(1, 500_000, 600200, &secret, 1_000_000)
	htlc2 := testHTLC(2, 500_000, 600200, &wrongSecret, 1_000_000)

	relay.HandleIncomingPacket(IncomingPacket{Add: htlc1, Inner: payload})
	relay.HandleIncomingPacket(IncomingPacket{Add: htlc2, Inner: payload})

	sender.waitForCalls(t, 1)

	fails, fulfills := sender.snapshot()
	require.Len(t, fails, 1)
	require.Empty(t, fulfills)
	require.Equal(t, htlc2.Key(), fails[0].key)
}

// TestRelayPreimageRaceIgnoresLatePaymentFailed covers the preimage-then-
// failure race: once a preimage has been observed and the upstream set
// fulfilled, a later PaymentFailed for the same dispatched payment must be
// ignored rather than re-failing already-fulfilled HTLCs.
func TestRelayPreimageRaceIgnoresLatePaymentFailed(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	bus := &fakeBus{}
	metrics := &fakeMetrics{}
	engine := &capturingPaymentEngine{}
	aggFactory, events, _ := newTestAggregatorFactory()

	relay := newTestRelay(t, sender, bus, metrics, engine, aggFactory)

	secret := [32]byte{0x42}
	payload := &NodeRelayPayload{
		AmountToForwardMsat: 980_000,
		OutgoingCLTV:        600150,
		OutgoingNodeID:      route.Vertex{0x09},
	}
	htlc := testHTLC(1, 1_001_000, 600200, &secret, 1_001_000)

	relay.HandleIncomingPacket(IncomingPacket{Add: htlc, Inner: payload})
	events <- AggregatorEvent{Succeeded: &AggregatorSucceeded{Parts: []HTLC{htlc}}}

	require.Eventually(t, func() bool {
		return engine.nextID == 1
	}, time.Second, time.Millisecond)

	preimage := lntypes.Preimage{0x07}
	relay.HandlePreimageReceived(preimage)

	sender.waitForCalls(t, 1)

	relay.HandlePaymentFailed(PaymentFailedEvent{
		Failures: []PaymentFailure{
			{RemoteMessage: &lnwire.FailTemporaryNodeFailure{}},
		},
	})

	// Give the (ignored) event a moment to be processed; no further
	// sender calls should ever arrive for this relay.
	select {
	case <-sender.notify:
		require.FailNow(t, "unexpected extra sender call after preimage race")
	case <-time.After(100 * time.Millisecond):
	}

	fails, fulfills := sender.snapshot()
	require.Empty(t, fails)
	require.Len(t, fulfills, 1)
	require.Equal(t, preimage, fulfills[0].preimage)
}

// TestRelayRejectsHTLCAfterTerminal covers a stray incoming packet arriving
// after the relay has already reached its terminal state: it must be
// rejected the same way an extra HTLC mid-aggregation would be.
func TestRelayRejectsHTLCAfterTerminal(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	bus := &fakeBus{}
	metrics := &fakeMetrics{}
	engine := &capturingPaymentEngine{}
	aggFactory, _, _ := newTestAggregatorFactory()

	relay := newTestRelay(t, sender, bus, metrics, engine, aggFactory)

	payload := &NodeRelayPayload{AmountToForwardMsat: 900_000}
	htlc := testHTLC(1, 1_000_000, 600200, nil, 1_000_000)

	relay.HandleIncomingPacket(IncomingPacket{Add: htlc, Inner: payload})
	sender.waitForCalls(t, 1)

	late := testHTLC(2, 1_000_000, 600200, nil, 1_000_000)
	relay.HandleIncomingPacket(IncomingPacket{Add: late, Inner: payload})
	sender.waitForCalls(t, 1)

	fails, _ := sender.snapshot()
	require.Len(t, fails, 2)
	require.Equal(t, late.Key(), fails[1].key)
}
