package feebumper

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// preconditionChecks validates that wtx is eligible for bumping. The checks
// run in order and short-circuit on the first violation. They are read-only
// and must run under the wallet's exclusive lock so that the answer cannot
// be invalidated by a concurrent spend.
//
// requireMine additionally demands that every input belongs to this wallet;
// without that the wallet cannot know the input values and therefore the
// fee. Commit re-runs the checks with requireMine=false, since ownership
// was already verified before signing.
func preconditionChecks(w WalletBackend, wtx *WalletTx, requireMine bool,
	errs *Errors) Code {

	if w.HasWalletSpend(wtx.Hash) {
		errs.add("Transaction has descendants in the wallet")
		return CodeInvalidParameter
	}

	if w.HasMempoolDescendants(wtx.Hash) {
		errs.add("Transaction has descendants in the mempool")
		return CodeInvalidParameter
	}

	if w.ConfirmationDepth(wtx.Hash) != 0 {
		errs.add("Transaction has been mined, or is conflicted with a " +
			"mined transaction")
		return CodeWalletError
	}

	if !SignalsOptInRBF(wtx.Tx) {
		errs.add("Transaction is not BIP 125 replaceable")
		return CodeWalletError
	}

	if wtx.ReplacedByTxid != nil {
		errs.addf("Cannot bump transaction %v which was already bumped by "+
			"transaction %v", wtx.Hash, *wtx.ReplacedByTxid)
		return CodeWalletError
	}

	if requireMine {
		owned := w.IsOwnedInput
		if w.PrivateKeysDisabled() {
			owned = w.IsWatchOnlyInput
		}
		for _, txIn := range wtx.Tx.TxIn {
			if !owned(txIn.PreviousOutPoint) {
				errs.add("Transaction contains inputs that don't belong " +
					"to this wallet")
				return CodeWalletError
			}
		}
	}

	return CodeOK
}

// TransactionCanBeBumped is a cheap eligibility probe for RPC and GUI
// layers: it reports whether a bump attempt on txid could pass the
// precondition checks right now. Callers must hold the wallet lock.
func TransactionCanBeBumped(w WalletBackend, txid chainhash.Hash) bool {
	wtx, err := w.FindTransaction(txid)
	if err != nil || wtx == nil {
		return false
	}

	var discard Errors
	return preconditionChecks(w, wtx, true, &discard) == CodeOK
}

// totalOutputValue sums the values of tx's outputs in satoshis.
func totalOutputValue(tx *wire.MsgTx) int64 {
	var total int64
	for _, txOut := range tx.TxOut {
		total += txOut.Value
	}
	return total
}
