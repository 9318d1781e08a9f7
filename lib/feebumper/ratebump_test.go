package feebumper

import (
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// rateBumpFixture builds a replaceable transaction spending one wallet
// input and one external input, paying a payee with change at output 1.
// Each input carries 6000 sat, so the original fee is 2500.
func rateBumpFixture(f *fakeWallet) *WalletTx {
	tx := makeTx(rbfSequence,
		[]wire.OutPoint{outPoint(0xa1, 0), outPoint(0xb1, 0)},
		[]*wire.TxOut{
			wire.NewTxOut(8000, p2pkhScript(0x02)),
			wire.NewTxOut(1500, p2pkhScript(0x03)),
		})
	wtx := f.addWalletTx(tx, 12000)
	f.changeIdx[wtx.Hash] = []int{1}

	// The second input is somebody else's coin.
	f.ownedInputs[outPoint(0xb1, 0)] = false

	return wtx
}

func TestRateBumpSelectsAllOriginalInputs(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)

	res, result := CreateRateBumpTransaction(f, wtx.Hash, nil, false)
	require.True(t, result.OK())
	require.NotNil(t, res.Tx)

	// Every input of the original must be force-selected, so no two
	// replacements of the same transaction can both confirm.
	cc := f.lastCC
	require.NotNil(t, cc)
	for _, txIn := range wtx.Tx.TxIn {
		require.True(t, cc.IsSelected(txIn.PreviousOutPoint))
	}

	// ...and must appear in the built replacement.
	spent := make(map[wire.OutPoint]bool)
	for _, txIn := range res.Tx.TxIn {
		spent[txIn.PreviousOutPoint] = true
	}
	for _, txIn := range wtx.Tx.TxIn {
		require.True(t, spent[txIn.PreviousOutPoint])
	}

	// The engine may still add confirmed coins on top.
	require.True(t, cc.AllowOtherInputs)
	require.Equal(t, int32(1), cc.MinDepth)
}

func TestRateBumpKeepsPayeesAndChangeScript(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)

	_, result := CreateRateBumpTransaction(f, wtx.Hash, nil, false)
	require.True(t, result.OK())

	// The payee is passed through untouched; the change output is not a
	// recipient but donates its script as the change destination.
	require.Len(t, f.lastRecipients, 1)
	require.Equal(t, int64(8000), f.lastRecipients[0].Value)
	require.Equal(t, p2pkhScript(0x02), f.lastRecipients[0].PkScript)
	require.Equal(t, p2pkhScript(0x03), f.lastCC.ChangeDestination)
}

func TestRateBumpEstimatesRateWhenUnset(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)

	res, result := CreateRateBumpTransaction(f, wtx.Hash, nil, false)
	require.True(t, result.OK())
	require.Equal(t, int64(2500), int64(res.OldFee))

	require.NotNil(t, f.lastCC.FeeRate)
	require.Equal(t, EstimateBumpFeeRate(f, wtx, res.OldFee, f.lastCC),
		*f.lastCC.FeeRate)
}

func TestRateBumpExternalInputWeight(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)

	_, result := CreateRateBumpTransaction(f, wtx.Hash, nil, false)
	require.True(t, result.OK())

	external := outPoint(0xb1, 0)
	require.True(t, f.lastCC.IsExternalSelected(external))
	require.NotNil(t, f.lastCC.ExternalOutput(external))

	// The pinned weight must cover at least the input's base serialization.
	weight, ok := f.lastCC.InputWeight(external)
	require.True(t, ok)
	require.GreaterOrEqual(t, weight, int64(41*blockchain.WitnessScaleFactor))

	// The wallet's own input needs no pinned weight.
	_, ok = f.lastCC.InputWeight(outPoint(0xa1, 0))
	require.False(t, ok)
}

func TestRateBumpExplicitRateAccepted(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)

	rate := FeeRate(50_000)
	cc := &CoinControl{FeeRate: &rate}
	res, result := CreateRateBumpTransaction(f, wtx.Hash, cc, false)
	require.True(t, result.OK())
	require.Equal(t, rate, *f.lastCC.FeeRate)
	require.Greater(t, res.NewFee, res.OldFee)
}

func TestRateBumpExplicitRateTooLow(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)

	// The old rate itself cannot pay for the incremental relay fee.
	rate := NewFeeRate(2500, vsizeOf(wtx.Tx))
	cc := &CoinControl{FeeRate: &rate}
	_, result := CreateRateBumpTransaction(f, wtx.Hash, cc, false)
	require.Equal(t, CodeInvalidParameter, result.Code)
	require.Contains(t, result.Errors[0], "Insufficient total fee")
}

func TestRateBumpExplicitRateBelowMempoolMin(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)
	f.mempoolMinRate = 30_000

	rate := FeeRate(20_000)
	cc := &CoinControl{FeeRate: &rate}
	_, result := CreateRateBumpTransaction(f, wtx.Hash, cc, false)
	require.Equal(t, CodeWalletError, result.Code)
	require.Contains(t, result.Errors[0],
		"lower than the minimum fee rate")
}

func TestRateBumpSpentInput(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)
	spent := wtx.Tx.TxIn[1].PreviousOutPoint
	delete(f.coins, spent)

	_, result := CreateRateBumpTransaction(f, wtx.Hash, nil, false)
	require.Equal(t, CodeMiscError, result.Code)
	require.Contains(t, result.Errors[0], "is already spent")
	require.Contains(t, result.Errors[0], spent.Hash.String())
}

func TestRateBumpUnknownTransaction(t *testing.T) {
	f := newFakeWallet()

	_, result := CreateRateBumpTransaction(f, outPoint(0xee, 0).Hash, nil, false)
	require.Equal(t, CodeInvalidAddressOrKey, result.Code)
	require.Equal(t, []string{"Invalid or non-wallet transaction id"},
		result.Errors)
}

func TestRateBumpRequireMineRejectsExternal(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)

	_, result := CreateRateBumpTransaction(f, wtx.Hash, nil, true)
	require.Equal(t, CodeWalletError, result.Code)
	require.Contains(t, result.Errors[0], "don't belong to this wallet")
}

func TestRateBumpCreateFailure(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)
	f.createErr = errNotEnoughFunds

	_, result := CreateRateBumpTransaction(f, wtx.Hash, nil, false)
	require.Equal(t, CodeWalletError, result.Code)
	require.Contains(t, result.Errors[0], "Unable to create transaction.")
	require.Contains(t, result.Errors[0], errNotEnoughFunds.Error())
}

// The caller's coin control is cloned before use; a bump attempt must not
// leave selections or an estimated rate behind in it.
func TestRateBumpDoesNotMutateCallerCoinControl(t *testing.T) {
	f := newFakeWallet()
	wtx := rateBumpFixture(f)

	cc := &CoinControl{}
	_, result := CreateRateBumpTransaction(f, wtx.Hash, cc, false)
	require.True(t, result.OK())

	require.Nil(t, cc.FeeRate)
	require.Empty(t, cc.SelectedInputs())
	require.Empty(t, cc.ChangeDestination)
	require.False(t, cc.AllowOtherInputs)
	require.Zero(t, cc.MinDepth)
}

func TestRateBumpRefusedWhenNotSignaling(t *testing.T) {
	f := newFakeWallet()
	tx := makeTx(wire.MaxTxInSequenceNum-1,
		[]wire.OutPoint{outPoint(0xa1, 0)},
		[]*wire.TxOut{wire.NewTxOut(8000, p2pkhScript(0x02))})
	wtx := f.addWalletTx(tx, 9000)

	_, result := CreateRateBumpTransaction(f, wtx.Hash, nil, false)
	require.Equal(t, CodeWalletError, result.Code)
	require.Equal(t, []string{"Transaction is not BIP 125 replaceable"},
		result.Errors)
}
