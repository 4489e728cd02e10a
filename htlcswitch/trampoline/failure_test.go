package trampoline

import (
	"testing"

	"github.com/lightningnetwork/lnd/fn"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/stretchr/testify/require"
)

var (
	testOutgoingNode = route.Vertex{0x01}
	testOtherNode    = route.Vertex{0x02}
)

func TestTranslateFailureNoFailures(t *testing.T) {
	t.Parallel()

	got := TranslateFailure(
		nil, 1000, 900, testOutgoingNode, testFeePolicy,
	)
	require.Nil(t, got)
}

// TestTranslateFailureBalanceTooLowWithHeadroom covers the seed scenario
// where the downstream hop reports local liquidity exhaustion but the
// sender has already paid in comfortable fee headroom: the relay should
// tell the sender to simply retry (TemporaryNodeFailure) rather than
// demanding more fee.
func TestTranslateFailureBalanceTooLowWithHeadroom(t *testing.T) {
	t.Parallel()

	reason := LocalFailureBalanceTooLow
	amountToForward := lnwire.MilliSatoshi(950_000)
	fee := testFeePolicy.NodeFee(amountToForward)

	// Headroom of exactly 5x the fee should qualify.
	amountIn := amountToForward + 5*fee

	got := TranslateFailure(
		[]PaymentFailure{{Local: fn.Some(reason)}}, amountIn, amountToForward,
		testOutgoingNode, testFeePolicy,
	)
	require.Equal(t, &lnwire.FailTemporaryNodeFailure{}, got)
}

func TestTranslateFailureBalanceTooLowNoHeadroom(t *testing.T) {
	t.Parallel()

	reason := LocalFailureBalanceTooLow
	amountToForward := lnwire.MilliSatoshi(950_000)
	fee := testFeePolicy.NodeFee(amountToForward)

	amountIn := amountToForward + fee

	got := TranslateFailure(
		[]PaymentFailure{{Local: fn.Some(reason)}}, amountIn, amountToForward,
		testOutgoingNode, testFeePolicy,
	)
	require.Equal(t, &lnwire.FailTrampolineFeeInsufficient{}, got)
}

func TestTranslateFailureRouteNotFound(t *testing.T) {
	t.Parallel()

	reason := LocalFailureRouteNotFound

	got := TranslateFailure(
		[]PaymentFailure{{Local: fn.Some(reason)}}, 1_000_000, 950_000,
		testOutgoingNode, testFeePolicy,
	)
	require.Equal(t, &lnwire.FailTrampolineFeeInsufficient{}, got)
}

func TestTranslateFailurePrefersOutgoingNode(t *testing.T) {
	t.Parallel()

	otherMsg := &lnwire.FailTemporaryNodeFailure{}
	outgoingMsg := lnwire.NewFailIncorrectDetails(123, 600000)

	got := TranslateFailure(
		[]PaymentFailure{
			{RemoteOriginNodeID: testOtherNode, RemoteMessage: otherMsg},
			{RemoteOriginNodeID: testOutgoingNode, RemoteMessage: outgoingMsg},
		},
		1_000_000, 950_000, testOutgoingNode, testFeePolicy,
	)
	require.Equal(t, outgoingMsg, got)
}

func TestTranslateFailureFallsBackToFirstRemote(t *testing.T) {
	t.Parallel()

	firstMsg := &lnwire.FailTemporaryNodeFailure{}

	got := TranslateFailure(
		[]PaymentFailure{
			{RemoteOriginNodeID: testOtherNode, RemoteMessage: firstMsg},
		},
		1_000_000, 950_000, testOutgoingNode, testFeePolicy,
	)
	require.Equal(t, firstMsg, got)
}

func TestTranslateFailureDefaultsToTemporaryNodeFailure(t *testing.T) {
	t.Parallel()

	reason := LocalFailureOther

	got := TranslateFailure(
		[]PaymentFailure{{Local: fn.Some(reason)}}, 1_000_000, 950_000,
		testOutgoingNode, testFeePolicy,
	)
	require.Equal(t, &lnwire.FailTemporaryNodeFailure{}, got)
}
