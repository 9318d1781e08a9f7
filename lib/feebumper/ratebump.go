package feebumper

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BumpResult is the successful outcome of a builder: the fee the original
// paid, the fee the unsigned replacement will pay, and the replacement
// itself. The transaction belongs to the caller, who signs and commits it.
type BumpResult struct {
	OldFee btcutil.Amount
	NewFee btcutil.Amount
	Tx     *wire.MsgTx
}

// CreateRateBumpTransaction builds a replacement for txid by running the
// wallet's coin-selection engine from scratch: original payees are kept,
// the original change destination is reused, every original input is
// force-selected (so two bumps of the same transaction can never both
// confirm), and the engine may add confirmed inputs if the fee no longer
// fits. The caller's coin control is cloned, never mutated.
//
// requireMine relaxes the ownership precondition for callers that already
// verified it, such as bumping a transaction with external inputs whose
// values are resolvable through the chain view.
func CreateRateBumpTransaction(w WalletBackend, txid chainhash.Hash,
	coinControl *CoinControl, requireMine bool) (*BumpResult, Result) {

	var errs Errors

	// The coin control is mutated below; work on a private copy.
	cc := coinControl.Clone()

	wtx, err := w.FindTransaction(txid)
	if err != nil || wtx == nil {
		errs.add("Invalid or non-wallet transaction id")
		return nil, resultErr(CodeInvalidAddressOrKey, errs)
	}

	if code := preconditionChecks(w, wtx, requireMine, &errs); code != CodeOK {
		return nil, resultErr(code, errs)
	}

	// Resolve every referenced output and classify each input as
	// wallet-owned or external. While we're here, sum the input value.
	var inputValue btcutil.Amount
	for _, txIn := range wtx.Tx.TxIn {
		coin := w.FindCoin(txIn.PreviousOutPoint)
		if coin == nil {
			errs.addf("%s:%d is already spent",
				txIn.PreviousOutPoint.Hash, txIn.PreviousOutPoint.Index)
			return nil, resultErr(CodeMiscError, errs)
		}
		if w.IsOwnedInput(txIn.PreviousOutPoint) {
			cc.Select(txIn.PreviousOutPoint)
		} else {
			cc.SelectExternal(txIn.PreviousOutPoint, coin)
		}
		inputValue += btcutil.Amount(coin.Value)
	}

	// External inputs keep their observed scripts in the replacement but
	// may be re-signed larger; pin a worst-case weight for each.
	for _, txIn := range wtx.Tx.TxIn {
		if cc.IsExternalSelected(txIn.PreviousOutPoint) {
			cc.SetInputWeight(txIn.PreviousOutPoint, maxInputWeight(txIn))
		}
	}

	// Partition the original outputs into payees to keep and the change
	// output, whose script becomes the preferred change destination.
	var (
		recipients  []*wire.TxOut
		outputValue btcutil.Amount
	)
	changeIdx := make(map[int]struct{})
	for _, idx := range w.ChangeOutputs(wtx.Tx) {
		changeIdx[idx] = struct{}{}
	}
	for i, txOut := range wtx.Tx.TxOut {
		if _, isChange := changeIdx[i]; isChange {
			cc.ChangeDestination = txOut.PkScript
		} else {
			recipients = append(recipients,
				wire.NewTxOut(txOut.Value, txOut.PkScript))
		}
		outputValue += btcutil.Amount(txOut.Value)
	}

	oldFee := inputValue - outputValue

	if cc.FeeRate != nil {
		// The caller chose a target rate. Validate it against the
		// maximum signed size of a replacement with this shape; the
		// probe must be unsigned for the size estimator.
		probe := stripSignatures(wtx.Tx)
		maxTxSize, err := w.MaxSignedTxSize(probe, cc)
		if err != nil {
			errs.add("Transaction contains inputs that cannot be signed")
			return nil, resultErr(CodeInvalidAddressOrKey, errs)
		}
		code := checkFeeRate(w, wtx, *cc.FeeRate, maxTxSize, oldFee, &errs)
		if code != CodeOK {
			return nil, resultErr(code, errs)
		}
	} else {
		rate := EstimateBumpFeeRate(w, wtx, oldFee, cc)
		cc.FeeRate = &rate
	}

	// Force-select all original inputs. BIP 125 itself doesn't require
	// the replacement to conflict with every input, but the wallet must:
	// otherwise a transaction could be bumped twice into replacements
	// that don't conflict with each other, and the sender would double
	// pay if both confirm.
	for _, txIn := range wtx.Tx.TxIn {
		cc.Select(txIn.PreviousOutPoint)
	}
	cc.AllowOtherInputs = true

	// New inputs must be confirmed (BIP 125 rule 2).
	cc.MinDepth = 1

	tx, newFee, err := w.CreateTransaction(recipients, cc)
	if err != nil {
		errs.addf("Unable to create transaction. %v", err)
		return nil, resultErr(CodeWalletError, errs)
	}

	return &BumpResult{OldFee: oldFee, NewFee: newFee, Tx: tx}, resultOK()
}
