package trampoline

import (
	"testing"

	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/stretchr/testify/require"
)

var testFeePolicy = NodeFeePolicy{
	FeeBaseMSat:               1000,
	FeeProportionalMillionths: 100,
	ExpiryDelta:               40,
}

func TestNodeFee(t *testing.T) {
	t.Parallel()

	require.Equal(t, lnwire.MilliSatoshi(1095), testFeePolicy.NodeFee(950_000))
	require.Equal(t, lnwire.MilliSatoshi(1000), testFeePolicy.NodeFee(0))
}

func TestValidateRelayExactFee(t *testing.T) {
	t.Parallel()

	amountOut := lnwire.MilliSatoshi(950_000)
	fee := testFeePolicy.NodeFee(amountOut)
	amountIn := amountOut + fee

	failMsg := testFeePolicy.ValidateRelay(amountIn, 600200, amountOut, 600150)
	require.Nil(t, failMsg)
}

func TestValidateRelayExactExpiry(t *testing.T) {
	t.Parallel()

	amountOut := lnwire.MilliSatoshi(950_000)
	amountIn := amountOut + testFeePolicy.NodeFee(amountOut) + 1

	failMsg := testFeePolicy.ValidateRelay(
		amountIn, 600150+testFeePolicy.ExpiryDelta, amountOut, 600150,
	)
	require.Nil(t, failMsg)
}

func TestValidateRelayInsufficientFee(t *testing.T) {
	t.Parallel()

	amountOut := lnwire.MilliSatoshi(999_500)
	amountIn := lnwire.MilliSatoshi(1_000_000)

	failMsg := testFeePolicy.ValidateRelay(amountIn, 600200, amountOut, 600150)
	require.Equal(t, &lnwire.FailTrampolineFeeInsufficient{}, failMsg)
}

func TestValidateRelayExpiryTooSoon(t *testing.T) {
	t.Parallel()

	amountOut := lnwire.MilliSatoshi(950_000)
	amountIn := amountOut + testFeePolicy.NodeFee(amountOut) + 1

	failMsg := testFeePolicy.ValidateRelay(
		amountIn, 600150+testFeePolicy.ExpiryDelta-1, amountOut, 600150,
	)
	require.Equal(t, &lnwire.FailTrampolineExpiryTooSoon{}, failMsg)
}

func TestComputeRouteParams(t *testing.T) {
	t.Parallel()

	amountOut := lnwire.MilliSatoshi(950_000)
	fee := testFeePolicy.NodeFee(amountOut)
	amountIn := lnwire.MilliSatoshi(1_000_000)

	params := testFeePolicy.ComputeRouteParams(amountIn, 600200, amountOut, 600150)

	require.Equal(t, amountIn-amountOut-fee, params.MaxFeeBaseMSat)
	require.Equal(t, uint32(600200-600150-testFeePolicy.ExpiryDelta), params.RouteMaxCLTV)
	require.Zero(t, params.MaxFeePct)
}
