package feebumper

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// WalletTx is a transaction known to the wallet, together with the
// replacement lineage the wallet has recorded for it. The embedded raw
// transaction is immutable once broadcast; builders always work on copies.
type WalletTx struct {
	// Hash is the transaction id.
	Hash chainhash.Hash

	// Tx is the raw transaction. Callers must not mutate it.
	Tx *wire.MsgTx

	// ReplacesTxid is set when this transaction was itself created as a
	// fee bump of another wallet transaction.
	ReplacesTxid *chainhash.Hash

	// ReplacedByTxid is set exactly once, when this transaction is
	// successfully bumped.
	ReplacedByTxid *chainhash.Hash
}

// Variant is the strategy for the operations that differ between wallet
// flavors (a plain key wallet versus an extended record-keeping wallet).
// The concrete variant is chosen when the wallet backend is constructed,
// so the builders never branch on a wallet-mode flag.
type Variant interface {
	// FindTransaction returns the wallet's record of txid, or nil if the
	// wallet does not know the transaction.
	FindTransaction(txid chainhash.Hash) (*WalletTx, error)

	// IsOwnedInput reports whether the wallet can spend the referenced
	// output.
	IsOwnedInput(op wire.OutPoint) bool

	// ChangeOutputs returns the indices of tx's outputs that pay change
	// back to the wallet, in output order.
	ChangeOutputs(tx *wire.MsgTx) []int
}

// WalletBackend is the full collaborator surface the builders need: the
// wallet's transaction index and coin view, the node's relay-policy view,
// and the construction/signing/broadcast services. Implementations must be
// called under the wallet's exclusive lock; none of the methods may block
// on network I/O beyond local state queries.
type WalletBackend interface {
	Variant

	// HasWalletSpend reports whether another wallet transaction spends
	// any output of txid.
	HasWalletSpend(txid chainhash.Hash) bool

	// HasMempoolDescendants reports whether the external mempool holds a
	// descendant of txid.
	HasMempoolDescendants(txid chainhash.Hash) bool

	// ConfirmationDepth returns the depth of txid in the main chain:
	// zero for unconfirmed, positive once mined, negative when
	// conflicting with a mined transaction.
	ConfirmationDepth(txid chainhash.Hash) int32

	// PrivateKeysDisabled reports whether the wallet runs without
	// private keys, in which case input ownership is judged watch-only.
	PrivateKeysDisabled() bool

	// IsWatchOnlyInput reports whether the referenced output is owned
	// watch-only by the wallet.
	IsWatchOnlyInput(op wire.OutPoint) bool

	// FindCoin resolves the output an input references. It returns nil
	// when the output is unknown or already spent.
	FindCoin(op wire.OutPoint) *wire.TxOut

	// MempoolMinFeeRate returns the node mempool's current minimum
	// acceptance fee rate.
	MempoolMinFeeRate() FeeRate

	// IncrementalRelayFeeRate returns the node's configured incremental
	// relay fee rate for replacements.
	IncrementalRelayFeeRate() FeeRate

	// MinimumFeeRate returns the wallet's general minimum fee rate
	// estimate for a new transaction under the given coin control.
	MinimumFeeRate(coinControl *CoinControl) FeeRate

	// MinimumFee returns the wallet's minimum absolute fee for a
	// transaction of the given virtual size under the coin control.
	MinimumFee(vsize int64, coinControl *CoinControl) btcutil.Amount

	// RequiredFee returns the wallet's hard floor fee for the size.
	RequiredFee(vsize int64) btcutil.Amount

	// MaxTxFee returns the wallet's configured maximum transaction fee.
	MaxTxFee() btcutil.Amount

	// SignalsRBF returns the wallet's default for opting new
	// transactions into BIP 125 replaceability.
	SignalsRBF() bool

	// TotalDebit returns the wallet's total debit across wtx's inputs.
	TotalDebit(wtx *WalletTx) btcutil.Amount

	// MaxSignedTxSize estimates the virtual size of tx once fully
	// signed, assuming worst-case signatures for inputs selected in the
	// coin control. A negative/error return means an input cannot be
	// signed by this wallet.
	MaxSignedTxSize(tx *wire.MsgTx, coinControl *CoinControl) (int64, error)

	// DustThreshold returns the value at or below which the given
	// output is uneconomical to spend.
	DustThreshold(out *wire.TxOut) btcutil.Amount

	// CreateTransaction runs coin selection and builds an unsigned
	// transaction paying the recipients under the coin control,
	// returning the transaction and the fee it pays. The change output
	// position must be randomized by the engine.
	CreateTransaction(recipients []*wire.TxOut, coinControl *CoinControl) (
		*wire.MsgTx, btcutil.Amount, error)

	// SignTransaction signs tx in place.
	SignTransaction(tx *wire.MsgTx) error

	// CommitTransaction records tx as a new wallet transaction that
	// replaces replacesTxid and submits it for broadcast.
	CommitTransaction(tx *wire.MsgTx, replacesTxid chainhash.Hash) error

	// MarkReplaced records newTxid as the replacement of oldTxid on the
	// original wallet transaction.
	MarkReplaced(oldTxid, newTxid chainhash.Hash) error
}

// SignalsOptInRBF reports whether tx signals BIP 125 opt-in replaceability,
// i.e. whether any input carries a sequence below 0xfffffffe.
func SignalsOptInRBF(tx *wire.MsgTx) bool {
	for _, txIn := range tx.TxIn {
		if txIn.Sequence < wire.MaxTxInSequenceNum-1 {
			return true
		}
	}
	return false
}
