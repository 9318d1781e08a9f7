package feebumper

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestNewFeeRate(t *testing.T) {
	// 1000 sat over 200 vbytes is 5 sat/vB.
	require.Equal(t, FeeRate(5000), NewFeeRate(1000, 200))

	// Rounds down.
	require.Equal(t, FeeRate(8403), NewFeeRate(1000, 119))

	// Degenerate sizes yield a zero rate rather than dividing by zero.
	require.Equal(t, FeeRate(0), NewFeeRate(1000, 0))
	require.Equal(t, FeeRate(0), NewFeeRate(1000, -5))
}

func TestFeeFor(t *testing.T) {
	require.Equal(t, btcutil.Amount(1000), FeeRate(5000).FeeFor(200))

	require.Equal(t, btcutil.Amount(595), FeeRate(5000).FeeFor(119))

	// Rounds down: 5001 * 119 / 1000 is 595.119.
	require.Equal(t, btcutil.Amount(595), FeeRate(5001).FeeFor(119))

	// A nonzero rate never charges zero.
	require.Equal(t, btcutil.Amount(1), FeeRate(3).FeeFor(100))
	require.Equal(t, btcutil.Amount(0), FeeRate(0).FeeFor(100))
}

func TestIncrementalRelayFloor(t *testing.T) {
	f := newFakeWallet()

	// The node default of 1000 sat/kvB is below the wallet's floor.
	f.incrementalRate = 1000
	require.Equal(t, WalletIncrementalRelayFee, incrementalRelayFeeRate(f))

	// A stricter node wins over the floor.
	f.incrementalRate = 9000
	require.Equal(t, FeeRate(9000), incrementalRelayFeeRate(f))
}

// The estimate recovers the old rate from fee and size, adds one sat/kvB
// for the rounding loss, then the incremental relay requirement.
func TestEstimateBumpFeeRate(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)

	oldFee := btcutil.Amount(1000)
	vsize := vsizeOf(wtx.Tx)
	want := NewFeeRate(oldFee, vsize) + 1 + WalletIncrementalRelayFee
	require.Equal(t, want, EstimateBumpFeeRate(f, wtx, oldFee, nil))

	// The estimate is always at least the old rate plus the incremental
	// relay rate.
	require.GreaterOrEqual(t, EstimateBumpFeeRate(f, wtx, oldFee, nil),
		NewFeeRate(oldFee, vsize)+incrementalRelayFeeRate(f))
}

func TestEstimateBumpFeeRateWalletFloor(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)

	// A wallet minimum above the computed estimate takes over.
	f.minFeeRate = 500_000
	require.Equal(t, FeeRate(500_000), EstimateBumpFeeRate(f, wtx, 1000, nil))
}

func TestCheckFeeRate(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)

	oldFee := btcutil.Amount(1000)
	maxTxSize := vsizeOf(wtx.Tx)
	oldRate := NewFeeRate(oldFee, maxTxSize)
	incremental := incrementalRelayFeeRate(f)
	minTotal := oldRate.FeeFor(maxTxSize) + incremental.FeeFor(maxTxSize)

	// A rate whose total clears the old fee plus the incremental fee
	// passes.
	goodRate := NewFeeRate(minTotal, maxTxSize) + 1000
	var errs Errors
	require.Equal(t, CodeOK,
		checkFeeRate(f, wtx, goodRate, maxTxSize, oldFee, &errs))
	require.Empty(t, errs)

	// Merely matching the old rate is not enough.
	errs = nil
	require.Equal(t, CodeInvalidParameter,
		checkFeeRate(f, wtx, oldRate, maxTxSize, oldFee, &errs))
	require.Contains(t, errs[0], "Insufficient total fee")

	// Below the mempool minimum fails before anything else.
	f.mempoolMinRate = 100_000
	errs = nil
	require.Equal(t, CodeWalletError,
		checkFeeRate(f, wtx, oldRate, maxTxSize, oldFee, &errs))
	require.Contains(t, errs[0], "minimum fee rate")
	f.mempoolMinRate = 1000

	// Below the wallet's required fee fails even when the incremental
	// check passes.
	f.requiredRate = goodRate + 50_000
	errs = nil
	require.Equal(t, CodeInvalidParameter,
		checkFeeRate(f, wtx, goodRate, maxTxSize, oldFee, &errs))
	require.Contains(t, errs[0], "required fee")
	f.requiredRate = 1000

	// Above the wallet ceiling fails closed.
	f.maxTxFee = 10
	errs = nil
	require.Equal(t, CodeWalletError,
		checkFeeRate(f, wtx, goodRate, maxTxSize, oldFee, &errs))
	require.Contains(t, errs[0], "too high")
}

func TestCoinControlClone(t *testing.T) {
	rate := FeeRate(25_000)
	signal := true
	cc := &CoinControl{
		FeeRate:           &rate,
		ChangeDestination: p2pkhScript(0x07),
		SignalRBF:         &signal,
		MinDepth:          3,
	}
	op := outPoint(0x11, 0)
	ext := outPoint(0x12, 1)
	cc.Select(op)
	cc.SelectExternal(ext, wire.NewTxOut(4000, p2pkhScript(0x08)))
	cc.SetInputWeight(ext, 500)

	clone := cc.Clone()
	require.Equal(t, cc.SelectedInputs(), clone.SelectedInputs())
	require.True(t, clone.IsExternalSelected(ext))

	// Mutating the clone must not leak back.
	*clone.FeeRate = 99_000
	clone.Select(outPoint(0x13, 0))
	clone.ChangeDestination[0] = 0x00
	require.Equal(t, FeeRate(25_000), *cc.FeeRate)
	require.Len(t, cc.SelectedInputs(), 2)
	require.Equal(t, byte(0x76), cc.ChangeDestination[0])

	// A nil receiver clones to a usable empty value.
	var nilCC *CoinControl
	empty := nilCC.Clone()
	require.NotNil(t, empty)
	require.Empty(t, empty.SelectedInputs())
}
