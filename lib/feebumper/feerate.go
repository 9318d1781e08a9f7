package feebumper

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/mempool"
)

// FeeRate is a fee rate in satoshis per kilo-virtual-byte, the same unit
// used by txrules and the btcwallet fee estimation code.
type FeeRate btcutil.Amount

const (
	// WalletIncrementalRelayFee is the conservative incremental relay
	// floor the wallet enforces on replacements, in sat/kvB. It is kept
	// above the usual node default (1000 sat/kvB) to future proof
	// against network-wide policy changes our node may not see.
	WalletIncrementalRelayFee FeeRate = 5000
)

// NewFeeRate computes the rate paid by a fee over a virtual size. The
// division rounds down, which is why callers bumping an observed rate add
// one sat/kvB back.
func NewFeeRate(fee btcutil.Amount, vsize int64) FeeRate {
	if vsize <= 0 {
		return 0
	}
	return FeeRate(int64(fee) * 1000 / vsize)
}

// FeeFor returns the absolute fee this rate pays for vsize virtual bytes,
// rounding down but never returning zero for a nonzero rate.
func (r FeeRate) FeeFor(vsize int64) btcutil.Amount {
	fee := btcutil.Amount(int64(r) * vsize / 1000)
	if fee == 0 && r > 0 {
		fee = 1
	}
	return fee
}

// String renders the rate for diagnostics.
func (r FeeRate) String() string {
	return btcutil.Amount(r).String() + "/kvB"
}

// incrementalRelayFeeRate returns the stricter of the node's incremental
// relay fee and the wallet's conservative floor.
func incrementalRelayFeeRate(w WalletBackend) FeeRate {
	incremental := w.IncrementalRelayFeeRate()
	if incremental < WalletIncrementalRelayFee {
		incremental = WalletIncrementalRelayFee
	}
	return incremental
}

// EstimateBumpFeeRate computes the minimum sensible fee rate for a
// replacement of wtx that paid oldFee. The old rate is recovered from
// fee/vsize (rounded down, hence the +1 guard), bumped by the incremental
// relay requirement so BIP 125 rules 4 and 6 hold even if the node's policy
// view shifts before submission, and finally floored at the wallet's own
// minimum fee rate estimate.
func EstimateBumpFeeRate(w WalletBackend, wtx *WalletTx, oldFee btcutil.Amount,
	coinControl *CoinControl) FeeRate {

	vsize := mempool.GetTxVirtualSize(btcutil.NewTx(wtx.Tx))
	rate := NewFeeRate(oldFee, vsize) + 1

	rate += incrementalRelayFeeRate(w)

	if min := w.MinimumFeeRate(coinControl); rate < min {
		rate = min
	}
	return rate
}

// checkFeeRate validates a caller-supplied replacement fee rate against the
// mempool minimum, the incremental-fee floor over the old transaction, the
// wallet's required fee for the new size, and the wallet's maximum fee
// ceiling. The first failing check decides the returned code.
func checkFeeRate(w WalletBackend, wtx *WalletTx, newRate FeeRate,
	maxTxSize int64, oldFee btcutil.Amount, errs *Errors) Code {

	minMempoolRate := w.MempoolMinFeeRate()
	if newRate < minMempoolRate {
		errs.addf("New fee rate (%v) is lower than the minimum fee rate "+
			"(%v) to get into the mempool", newRate, minMempoolRate)
		return CodeWalletError
	}

	newTotalFee := newRate.FeeFor(maxTxSize)

	incremental := incrementalRelayFeeRate(w)
	oldVSize := mempool.GetTxVirtualSize(btcutil.NewTx(wtx.Tx))
	oldRate := NewFeeRate(oldFee, oldVSize)

	// The replacement must pay at least what the old rate would pay at
	// the new size, plus the incremental relay fee at the new size.
	minTotalFee := oldRate.FeeFor(maxTxSize) + incremental.FeeFor(maxTxSize)
	if newTotalFee < minTotalFee {
		errs.addf("Insufficient total fee %v, must be at least %v "+
			"(oldFee %v + incrementalFee %v)", newTotalFee, minTotalFee,
			oldRate.FeeFor(maxTxSize), incremental.FeeFor(maxTxSize))
		return CodeInvalidParameter
	}

	requiredFee := w.RequiredFee(maxTxSize)
	if newTotalFee < requiredFee {
		errs.addf("Insufficient total fee (cannot be less than required "+
			"fee %v)", requiredFee)
		return CodeInvalidParameter
	}

	maxTxFee := w.MaxTxFee()
	if newTotalFee > maxTxFee {
		errs.addf("Specified or calculated fee %v is too high (cannot be "+
			"higher than the maximum transaction fee %v)", newTotalFee,
			maxTxFee)
		return CodeWalletError
	}

	return CodeOK
}
