package feebumper

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func bumpableTx(f *fakeWallet) *WalletTx {
	tx := makeTx(rbfSequence,
		[]wire.OutPoint{outPoint(0xa1, 0), outPoint(0xa2, 1)},
		[]*wire.TxOut{
			wire.NewTxOut(8000, p2pkhScript(0x02)),
			wire.NewTxOut(1500, p2pkhScript(0x03)),
		})
	return f.addWalletTx(tx, 12000)
}

func TestPreconditionsPass(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)

	var errs Errors
	require.Equal(t, CodeOK, preconditionChecks(f, wtx, true, &errs))
	require.Empty(t, errs)
}

func TestPreconditionsWalletDescendants(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)
	f.walletSpends[wtx.Hash] = true

	var errs Errors
	require.Equal(t, CodeInvalidParameter,
		preconditionChecks(f, wtx, true, &errs))
	require.Equal(t, Errors{"Transaction has descendants in the wallet"}, errs)
}

func TestPreconditionsMempoolDescendants(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)
	f.mempoolDescendants[wtx.Hash] = true

	var errs Errors
	require.Equal(t, CodeInvalidParameter,
		preconditionChecks(f, wtx, true, &errs))
	require.Equal(t, Errors{"Transaction has descendants in the mempool"}, errs)
}

// Wallet descendants are reported before mempool descendants when both hold.
func TestPreconditionsFirstViolationWins(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)
	f.walletSpends[wtx.Hash] = true
	f.mempoolDescendants[wtx.Hash] = true
	f.depths[wtx.Hash] = 3

	var errs Errors
	preconditionChecks(f, wtx, true, &errs)
	require.Len(t, errs, 1)
	require.Equal(t, "Transaction has descendants in the wallet", errs[0])
}

func TestPreconditionsConfirmed(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)
	f.depths[wtx.Hash] = 1

	var errs Errors
	require.Equal(t, CodeWalletError, preconditionChecks(f, wtx, true, &errs))
	require.Contains(t, errs[0], "has been mined")
}

// A conflicted transaction reports a negative depth and is just as
// unbumpable as a mined one.
func TestPreconditionsConflicted(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)
	f.depths[wtx.Hash] = -2

	var errs Errors
	require.Equal(t, CodeWalletError, preconditionChecks(f, wtx, true, &errs))
}

func TestPreconditionsNotReplaceable(t *testing.T) {
	f := newFakeWallet()
	tx := makeTx(wire.MaxTxInSequenceNum,
		[]wire.OutPoint{outPoint(0xa1, 0)},
		[]*wire.TxOut{wire.NewTxOut(8000, p2pkhScript(0x02))})
	wtx := f.addWalletTx(tx, 9000)

	var errs Errors
	require.Equal(t, CodeWalletError, preconditionChecks(f, wtx, true, &errs))
	require.Equal(t, Errors{"Transaction is not BIP 125 replaceable"}, errs)
}

// Sequence MaxTxInSequenceNum-1 disables locktime but does not opt in to
// replacement; only sequences below that signal.
func TestSignalsOptInRBF(t *testing.T) {
	final := makeTx(wire.MaxTxInSequenceNum-1,
		[]wire.OutPoint{outPoint(0xa1, 0)}, nil)
	require.False(t, SignalsOptInRBF(final))

	signaling := makeTx(wire.MaxTxInSequenceNum-2,
		[]wire.OutPoint{outPoint(0xa1, 0)}, nil)
	require.True(t, SignalsOptInRBF(signaling))

	// One signaling input among final ones is enough.
	mixed := makeTx(wire.MaxTxInSequenceNum,
		[]wire.OutPoint{outPoint(0xa1, 0), outPoint(0xa2, 0)}, nil)
	mixed.TxIn[1].Sequence = 0
	require.True(t, SignalsOptInRBF(mixed))
}

func TestPreconditionsAlreadyBumped(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)
	replacement := outPoint(0xbb, 0).Hash
	wtx.ReplacedByTxid = &replacement

	var errs Errors
	require.Equal(t, CodeWalletError, preconditionChecks(f, wtx, true, &errs))
	require.Contains(t, errs[0], "already bumped by")
	require.Contains(t, errs[0], replacement.String())
}

func TestPreconditionsForeignInput(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)
	f.ownedInputs[wtx.Tx.TxIn[1].PreviousOutPoint] = false

	var errs Errors
	require.Equal(t, CodeWalletError, preconditionChecks(f, wtx, true, &errs))
	require.Equal(t,
		Errors{"Transaction contains inputs that don't belong to this wallet"},
		errs)

	// The same transaction passes once ownership is not demanded.
	errs = nil
	require.Equal(t, CodeOK, preconditionChecks(f, wtx, false, &errs))
}

// With private keys disabled the ownership check consults the watch-only
// set instead of the spendable set.
func TestPreconditionsWatchOnly(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)
	f.privKeysDisabled = true

	var errs Errors
	require.Equal(t, CodeWalletError, preconditionChecks(f, wtx, true, &errs))

	for _, txIn := range wtx.Tx.TxIn {
		f.watchOnlyInputs[txIn.PreviousOutPoint] = true
	}
	errs = nil
	require.Equal(t, CodeOK, preconditionChecks(f, wtx, true, &errs))
}

func TestTransactionCanBeBumped(t *testing.T) {
	f := newFakeWallet()
	wtx := bumpableTx(f)

	require.True(t, TransactionCanBeBumped(f, wtx.Hash))

	require.False(t, TransactionCanBeBumped(f, outPoint(0xee, 0).Hash))

	f.depths[wtx.Hash] = 1
	require.False(t, TransactionCanBeBumped(f, wtx.Hash))
	f.depths[wtx.Hash] = 0

	require.NoError(t, f.MarkReplaced(wtx.Hash, outPoint(0xcc, 0).Hash))
	require.False(t, TransactionCanBeBumped(f, wtx.Hash))
}
