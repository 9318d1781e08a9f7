package feebumper

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/wire"
)

// fakeWallet is an in-memory WalletBackend for exercising the builders
// without a real wallet, chain view or network.
type fakeWallet struct {
	txs                map[chainhash.Hash]*WalletTx
	walletSpends       map[chainhash.Hash]bool
	mempoolDescendants map[chainhash.Hash]bool
	depths             map[chainhash.Hash]int32
	ownedInputs        map[wire.OutPoint]bool
	watchOnlyInputs    map[wire.OutPoint]bool
	privKeysDisabled   bool
	coins              map[wire.OutPoint]*wire.TxOut
	changeIdx          map[chainhash.Hash][]int
	totalDebits        map[chainhash.Hash]btcutil.Amount

	mempoolMinRate  FeeRate
	incrementalRate FeeRate
	minFeeRate      FeeRate
	requiredRate    FeeRate
	maxTxFee        btcutil.Amount
	signalsRBF      bool
	dust            btcutil.Amount

	minimumFee    btcutil.Amount // overrides minFeeRate-based MinimumFee when set
	maxSignedSize int64          // overrides actual vsize when set
	maxSizeErr    error

	// captured by CreateTransaction
	lastCC         *CoinControl
	lastRecipients []*wire.TxOut
	createErr      error
	createFee      btcutil.Amount

	committed       []*wire.MsgTx
	committedParent []chainhash.Hash
	commitErr       error
	signErr         error
	markReplacedErr error
	replacedPairs   [][2]chainhash.Hash
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		txs:                make(map[chainhash.Hash]*WalletTx),
		walletSpends:       make(map[chainhash.Hash]bool),
		mempoolDescendants: make(map[chainhash.Hash]bool),
		depths:             make(map[chainhash.Hash]int32),
		ownedInputs:        make(map[wire.OutPoint]bool),
		watchOnlyInputs:    make(map[wire.OutPoint]bool),
		coins:              make(map[wire.OutPoint]*wire.TxOut),
		changeIdx:          make(map[chainhash.Hash][]int),
		totalDebits:        make(map[chainhash.Hash]btcutil.Amount),

		mempoolMinRate:  1000,
		incrementalRate: 1000,
		minFeeRate:      1000,
		requiredRate:    1000,
		maxTxFee:        btcutil.Amount(1_000_000),
		dust:            546,
	}
}

// addWalletTx registers wtx's record, marks all of its inputs owned, and
// makes the coins it spends resolvable.
func (f *fakeWallet) addWalletTx(tx *wire.MsgTx, inputValue int64) *WalletTx {
	wtx := &WalletTx{Hash: tx.TxHash(), Tx: tx}
	f.txs[wtx.Hash] = wtx

	per := inputValue / int64(len(tx.TxIn))
	for _, txIn := range tx.TxIn {
		f.ownedInputs[txIn.PreviousOutPoint] = true
		f.coins[txIn.PreviousOutPoint] = wire.NewTxOut(per, p2pkhScript(0x01))
	}
	f.totalDebits[wtx.Hash] = btcutil.Amount(inputValue)
	return wtx
}

func (f *fakeWallet) FindTransaction(txid chainhash.Hash) (*WalletTx, error) {
	return f.txs[txid], nil
}

func (f *fakeWallet) IsOwnedInput(op wire.OutPoint) bool { return f.ownedInputs[op] }

func (f *fakeWallet) ChangeOutputs(tx *wire.MsgTx) []int {
	return f.changeIdx[tx.TxHash()]
}

func (f *fakeWallet) HasWalletSpend(txid chainhash.Hash) bool { return f.walletSpends[txid] }

func (f *fakeWallet) HasMempoolDescendants(txid chainhash.Hash) bool {
	return f.mempoolDescendants[txid]
}

func (f *fakeWallet) ConfirmationDepth(txid chainhash.Hash) int32 { return f.depths[txid] }

func (f *fakeWallet) PrivateKeysDisabled() bool { return f.privKeysDisabled }

func (f *fakeWallet) IsWatchOnlyInput(op wire.OutPoint) bool { return f.watchOnlyInputs[op] }

func (f *fakeWallet) FindCoin(op wire.OutPoint) *wire.TxOut { return f.coins[op] }

func (f *fakeWallet) MempoolMinFeeRate() FeeRate       { return f.mempoolMinRate }
func (f *fakeWallet) IncrementalRelayFeeRate() FeeRate { return f.incrementalRate }

func (f *fakeWallet) MinimumFeeRate(*CoinControl) FeeRate { return f.minFeeRate }

func (f *fakeWallet) MinimumFee(vsize int64, _ *CoinControl) btcutil.Amount {
	if f.minimumFee != 0 {
		return f.minimumFee
	}
	return f.minFeeRate.FeeFor(vsize)
}

func (f *fakeWallet) RequiredFee(vsize int64) btcutil.Amount {
	return f.requiredRate.FeeFor(vsize)
}

func (f *fakeWallet) MaxTxFee() btcutil.Amount { return f.maxTxFee }
func (f *fakeWallet) SignalsRBF() bool         { return f.signalsRBF }

func (f *fakeWallet) TotalDebit(wtx *WalletTx) btcutil.Amount {
	return f.totalDebits[wtx.Hash]
}

func (f *fakeWallet) MaxSignedTxSize(tx *wire.MsgTx, _ *CoinControl) (int64, error) {
	if f.maxSizeErr != nil {
		return 0, f.maxSizeErr
	}
	if f.maxSignedSize != 0 {
		return f.maxSignedSize, nil
	}
	return mempool.GetTxVirtualSize(btcutil.NewTx(tx)), nil
}

func (f *fakeWallet) DustThreshold(*wire.TxOut) btcutil.Amount { return f.dust }

func (f *fakeWallet) CreateTransaction(recipients []*wire.TxOut,
	cc *CoinControl) (*wire.MsgTx, btcutil.Amount, error) {

	f.lastCC = cc
	f.lastRecipients = recipients
	if f.createErr != nil {
		return nil, 0, f.createErr
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, op := range cc.SelectedInputs() {
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	for _, out := range recipients {
		tx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
	}
	if len(cc.ChangeDestination) > 0 {
		tx.AddTxOut(wire.NewTxOut(1000, cc.ChangeDestination))
	}

	fee := f.createFee
	if fee == 0 && cc.FeeRate != nil {
		fee = cc.FeeRate.FeeFor(mempool.GetTxVirtualSize(btcutil.NewTx(tx)))
	}
	return tx, fee, nil
}

func (f *fakeWallet) SignTransaction(*wire.MsgTx) error { return f.signErr }

func (f *fakeWallet) CommitTransaction(tx *wire.MsgTx,
	replacesTxid chainhash.Hash) error {

	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, tx)
	f.committedParent = append(f.committedParent, replacesTxid)
	return nil
}

func (f *fakeWallet) MarkReplaced(oldTxid, newTxid chainhash.Hash) error {
	if f.markReplacedErr != nil {
		return f.markReplacedErr
	}
	f.replacedPairs = append(f.replacedPairs, [2]chainhash.Hash{oldTxid, newTxid})
	if wtx := f.txs[oldTxid]; wtx != nil {
		id := newTxid
		wtx.ReplacedByTxid = &id
	}
	return nil
}

var _ WalletBackend = (*fakeWallet)(nil)

var errNotEnoughFunds = errors.New("insufficient funds available to construct transaction")

// rbfSequence opts a transaction into BIP 125 replaceability.
const rbfSequence = wire.MaxTxInSequenceNum - 2

// p2pkhScript returns a syntactically valid-looking 25-byte pay-to-pubkey-
// hash script whose hash160 bytes are all tag, so distinct scripts can be
// told apart in assertions.
func p2pkhScript(tag byte) []byte {
	script := make([]byte, 25)
	script[0] = 0x76 // OP_DUP
	script[1] = 0xa9 // OP_HASH160
	script[2] = 0x14 // 20-byte push
	for i := 3; i < 23; i++ {
		script[i] = tag
	}
	script[23] = 0x88 // OP_EQUALVERIFY
	script[24] = 0xac // OP_CHECKSIG
	return script
}

// outPoint builds a deterministic outpoint for tests.
func outPoint(tag byte, index uint32) wire.OutPoint {
	var h chainhash.Hash
	for i := range h {
		h[i] = tag
	}
	return wire.OutPoint{Hash: h, Index: index}
}

// makeTx builds a transaction spending the given outpoints at the given
// sequence, paying the given outputs.
func makeTx(seq uint32, inputs []wire.OutPoint, outputs []*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for i := range inputs {
		txIn := wire.NewTxIn(&inputs[i], nil, nil)
		txIn.Sequence = seq
		tx.AddTxIn(txIn)
	}
	for _, out := range outputs {
		tx.AddTxOut(out)
	}
	return tx
}

// vsizeOf is a shorthand for the virtual size the builders see.
func vsizeOf(tx *wire.MsgTx) int64 {
	return mempool.GetTxVirtualSize(btcutil.NewTx(tx))
}
