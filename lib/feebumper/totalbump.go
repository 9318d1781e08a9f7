package feebumper

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/wire"
)

// CreateTotalBumpTransaction builds a replacement for txid by editing the
// original transaction in place: the fee delta is taken out of its single
// change output, and no coin selection runs. It requires exactly one
// identifiable change output and that every input belongs to the wallet.
//
// If paying the delta would leave the change at or below the dust
// threshold, the output is dropped entirely and its residual value folded
// into the fee; an uneconomical output helps nobody.
func CreateTotalBumpTransaction(w WalletBackend, txid chainhash.Hash,
	coinControl *CoinControl) (*BumpResult, Result) {

	var errs Errors

	wtx, err := w.FindTransaction(txid)
	if err != nil || wtx == nil {
		errs.add("Invalid or non-wallet transaction id")
		return nil, resultErr(CodeInvalidAddressOrKey, errs)
	}

	if code := preconditionChecks(w, wtx, true, &errs); code != CodeOK {
		return nil, resultErr(code, errs)
	}

	// Find the change output. Zero or several means this mode cannot
	// know which output to debit.
	changeOutputs := w.ChangeOutputs(wtx.Tx)
	if len(changeOutputs) > 1 {
		errs.add("Transaction has multiple change outputs")
		return nil, resultErr(CodeWalletError, errs)
	}
	if len(changeOutputs) == 0 {
		errs.add("Transaction does not have a change output")
		return nil, resultErr(CodeWalletError, errs)
	}
	changeIdx := changeOutputs[0]

	txSize := mempool.GetTxVirtualSize(btcutil.NewTx(wtx.Tx))
	maxNewTxSize, err := w.MaxSignedTxSize(wtx.Tx, coinControl)
	if err != nil {
		errs.add("Transaction contains inputs that cannot be signed")
		return nil, resultErr(CodeInvalidAddressOrKey, errs)
	}

	oldFee := w.TotalDebit(wtx) - btcutil.Amount(totalOutputValue(wtx.Tx))
	oldRate := NewFeeRate(oldFee, txSize)

	newFee := w.MinimumFee(maxNewTxSize, coinControl)
	newRate := NewFeeRate(newFee, maxNewTxSize)

	// The new rate must beat the old rate by the incremental relay rate.
	// The old rate was recovered from fee/size and may have been rounded
	// down, so one extra sat/kvB covers the loss.
	incremental := incrementalRelayFeeRate(w)
	if newRate < oldRate+1+incremental {
		newRate = oldRate + 1 + incremental
		newFee = newRate.FeeFor(maxNewTxSize)
	}

	maxTxFee := w.MaxTxFee()
	if newFee > maxTxFee {
		errs.addf("Specified or calculated fee %v is too high (cannot be "+
			"higher than the maximum transaction fee %v)", newFee, maxTxFee)
		return nil, resultErr(CodeWalletError, errs)
	}

	// No point building a replacement the mempool will refuse.
	minMempoolRate := w.MempoolMinFeeRate()
	if newRate < minMempoolRate {
		errs.addf("New fee rate (%v) is lower than the minimum fee rate "+
			"(%v) to get into the mempool", newRate, minMempoolRate)
		return nil, resultErr(CodeWalletError, errs)
	}

	delta := newFee - oldFee
	if delta <= 0 {
		// The rate math above guarantees newFee > oldFee; a violation
		// is a logic defect, not a user condition.
		panic(fmt.Sprintf("feebumper: non-positive fee delta %d", delta))
	}

	mtx := wtx.Tx.Copy()
	changeOut := mtx.TxOut[changeIdx]
	if btcutil.Amount(changeOut.Value) <= delta {
		errs.add("Change output is too small to bump the fee")
		return nil, resultErr(CodeWalletError, errs)
	}

	changeOut.Value -= int64(delta)
	if btcutil.Amount(changeOut.Value) <= w.DustThreshold(changeOut) {
		// Discard the dust, converting its remainder to fee.
		newFee += btcutil.Amount(changeOut.Value)
		mtx.TxOut = append(mtx.TxOut[:changeIdx], mtx.TxOut[changeIdx+1:]...)
	}

	// Unless replaceability was asked for, finalize the sequences so the
	// replacement itself is not flagged replaceable.
	signalRBF := w.SignalsRBF()
	if coinControl != nil && coinControl.SignalRBF != nil {
		signalRBF = *coinControl.SignalRBF
	}
	if !signalRBF {
		for _, txIn := range mtx.TxIn {
			if txIn.Sequence < wire.MaxTxInSequenceNum-1 {
				txIn.Sequence = wire.MaxTxInSequenceNum - 1
			}
		}
	}

	return &BumpResult{OldFee: oldFee, NewFee: newFee, Tx: mtx}, resultOK()
}
