package feebumper

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// CommitTransaction records and broadcasts a signed replacement for txid,
// then links the two transactions: the new record carries a back-reference
// to the original, and the original is marked replaced-by the new txid.
//
// priorErrors carries any diagnostics accumulated by the caller between
// build and commit; a non-empty list fails closed before anything is
// broadcast. The preconditions are re-checked with ownership relaxed, since
// the original may have been mined or gained descendants since the build.
//
// Marking the original as replaced is best-effort: once the broadcast has
// happened it cannot be rolled back, so a bookkeeping failure is reported
// as a warning on an otherwise-OK result.
func CommitTransaction(w WalletBackend, txid chainhash.Hash, tx *wire.MsgTx,
	priorErrors Errors) (chainhash.Hash, Result) {

	errs := priorErrors
	if len(errs) != 0 {
		return chainhash.Hash{}, resultErr(CodeMiscError, errs)
	}

	wtx, err := w.FindTransaction(txid)
	if err != nil || wtx == nil {
		errs.add("Invalid or non-wallet transaction id")
		return chainhash.Hash{}, resultErr(CodeMiscError, errs)
	}

	if code := preconditionChecks(w, wtx, false, &errs); code != CodeOK {
		return chainhash.Hash{}, resultErr(code, errs)
	}

	if err := w.CommitTransaction(tx, wtx.Hash); err != nil {
		errs.addf("Unable to commit replacement transaction: %v", err)
		return chainhash.Hash{}, resultErr(CodeWalletError, errs)
	}

	bumpedTxid := tx.TxHash()

	result := resultOK()
	if err := w.MarkReplaced(wtx.Hash, bumpedTxid); err != nil {
		result.Warnings = append(result.Warnings, "Created new bumpfee "+
			"transaction but could not mark the original transaction "+
			"as replaced")
	}
	return bumpedTxid, result
}

// SignTransaction signs the unsigned replacement in place through the
// wallet's signer. It exists so callers of the builder never have to reach
// past the backend interface.
func SignTransaction(w WalletBackend, tx *wire.MsgTx) error {
	return w.SignTransaction(tx)
}
