package wallet

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	walletstatedb "github.com/cypherstack/bumpwallet/internal/database"
	"github.com/cypherstack/bumpwallet/internal/logger"
	"github.com/cypherstack/bumpwallet/lib/feebumper"
	"github.com/cypherstack/bumpwallet/lib/policy"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/btcsuite/btcwallet/wallet"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/checksum0/go-electrum/electrum"
	"github.com/lightninglabs/neutrino"
	"github.com/spf13/viper"
)

// Backend adapts a running btcwallet/neutrino pair, the local transaction
// store and the public policy oracle into the view the fee bumper consumes.
// The Electrum client is optional; without it, transactions and coins the
// local store has no copy of cannot be resolved.
type Backend struct {
	Wallet       *wallet.Wallet
	ChainService *neutrino.ChainService
	Electrum     *electrum.Client
}

func NewBackend(w *wallet.Wallet, service *neutrino.ChainService,
	electrumClient *electrum.Client) *Backend {

	return &Backend{
		Wallet:       w,
		ChainService: service,
		Electrum:     electrumClient,
	}
}

var _ feebumper.WalletBackend = (*Backend)(nil)

// FindTransaction loads a transaction from the local store, falling back to
// Electrum, and attaches its replacement lineage.
func (b *Backend) FindTransaction(txid chainhash.Hash) (*feebumper.WalletTx, error) {
	rawTx, err := walletstatedb.GetRawTransaction(txid.String())
	if err != nil {
		if b.Electrum == nil {
			return nil, nil
		}
		txHex, err := policy.FetchRawTransaction(b.Electrum, txid.String())
		if err != nil || txHex == "" {
			return nil, nil
		}
		rawTx, err = hex.DecodeString(txHex)
		if err != nil {
			return nil, fmt.Errorf("corrupt transaction hex from Electrum: %v", err)
		}
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction %s: %v", txid, err)
	}

	wtx := &feebumper.WalletTx{Hash: txid, Tx: tx}

	rec, err := walletstatedb.GetBumpRecord(txid.String())
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if rec.ReplacesTxid != "" {
			if h, err := chainhash.NewHashFromStr(rec.ReplacesTxid); err == nil {
				wtx.ReplacesTxid = h
			}
		}
		if rec.ReplacedByTxid != "" {
			if h, err := chainhash.NewHashFromStr(rec.ReplacedByTxid); err == nil {
				wtx.ReplacedByTxid = h
			}
		}
	}

	return wtx, nil
}

// HasWalletSpend reports whether an unconfirmed wallet transaction spends
// an output of txid.
func (b *Backend) HasWalletSpend(txid chainhash.Hash) bool {
	items, err := b.Wallet.ListAllTransactions()
	if err != nil {
		logger.Error("Failed to list wallet transactions:", err)
		return false
	}

	for _, item := range items {
		if item.Confirmations != 0 || item.TxID == txid.String() {
			continue
		}
		rawTx, err := walletstatedb.GetRawTransaction(item.TxID)
		if err != nil {
			continue
		}
		child := wire.NewMsgTx(wire.TxVersion)
		if err := child.Deserialize(bytes.NewReader(rawTx)); err != nil {
			continue
		}
		for _, txIn := range child.TxIn {
			if txIn.PreviousOutPoint.Hash == txid {
				return true
			}
		}
	}
	return false
}

// HasMempoolDescendants asks the Electrum server whether any unconfirmed
// transaction spends an output of txid. Without an Electrum connection the
// wallet's own view is the only one available and was already consulted.
func (b *Backend) HasMempoolDescendants(txid chainhash.Hash) bool {
	if b.Electrum == nil {
		return false
	}

	wtx, err := b.FindTransaction(txid)
	if err != nil || wtx == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, txOut := range wtx.Tx.TxOut {
		history, err := b.Electrum.GetHistory(ctx, electrumScriptHash(txOut.PkScript))
		if err != nil {
			continue
		}
		for _, entry := range history {
			if entry.Hash != txid.String() && entry.Height <= 0 {
				return true
			}
		}
	}
	return false
}

// ConfirmationDepth returns the number of confirmations for txid: zero for
// unconfirmed, negative for conflicted.
func (b *Backend) ConfirmationDepth(txid chainhash.Hash) int32 {
	items, err := b.Wallet.ListAllTransactions()
	if err == nil {
		for _, item := range items {
			if item.TxID == txid.String() {
				return int32(item.Confirmations)
			}
		}
	}

	// Fall back on the recorded confirmation height for transactions the
	// wallet does not track.
	height, err := walletstatedb.GetTransactionHeight(txid.String())
	if err != nil || height == 0 {
		return 0
	}
	best, err := b.ChainService.BestBlock()
	if err != nil {
		return 0
	}
	return best.Height - height + 1
}

// PrivateKeysDisabled reports whether this wallet runs watch-only.
func (b *Backend) PrivateKeysDisabled() bool {
	return viper.GetBool("watch_only")
}

// IsOwnedInput reports whether the output op spends belongs to the wallet.
func (b *Backend) IsOwnedInput(op wire.OutPoint) bool {
	return b.scriptIsOurs(b.FindCoin(op))
}

// IsWatchOnlyInput reports whether op pays a tracked address. A watch-only
// wallet tracks its addresses through the same manager, so the lookup is
// identical to the spendable case.
func (b *Backend) IsWatchOnlyInput(op wire.OutPoint) bool {
	return b.scriptIsOurs(b.FindCoin(op))
}

func (b *Backend) scriptIsOurs(txOut *wire.TxOut) bool {
	if txOut == nil {
		return false
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(txOut.PkScript,
		b.Wallet.ChainParams())
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if have, err := b.Wallet.HaveAddress(addr); err == nil && have {
			return true
		}
	}
	return false
}

// ChangeOutputs returns the indices of tx's outputs that pay internal
// (change branch) wallet addresses.
func (b *Backend) ChangeOutputs(tx *wire.MsgTx) []int {
	var change []int
	for i, txOut := range tx.TxOut {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(txOut.PkScript,
			b.Wallet.ChainParams())
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			info, err := b.Wallet.AddressInfo(addr)
			if err == nil && info.Internal() {
				change = append(change, i)
				break
			}
		}
	}
	return change
}

// FindCoin resolves the output op refers to: from the wallet's unspent set
// first, then from the stored copy of the funding transaction.
func (b *Backend) FindCoin(op wire.OutPoint) *wire.TxOut {
	utxos, err := b.Wallet.ListUnspent(0, 9999999, "")
	if err == nil {
		for _, utxo := range utxos {
			if utxo.TxID == op.Hash.String() && utxo.Vout == op.Index {
				pkScript, err := hex.DecodeString(utxo.ScriptPubKey)
				if err != nil {
					break
				}
				value := int64(utxo.Amount * btcutil.SatoshiPerBitcoin)
				return wire.NewTxOut(value, pkScript)
			}
		}
	}

	funding, err := b.FindTransaction(op.Hash)
	if err != nil || funding == nil {
		return nil
	}
	if int(op.Index) >= len(funding.Tx.TxOut) {
		return nil
	}
	return funding.Tx.TxOut[op.Index]
}

// MempoolMinFeeRate returns the mempool admission floor in sat/kvB.
func (b *Backend) MempoolMinFeeRate() feebumper.FeeRate {
	return feebumper.FeeRate(policy.MempoolMinRate())
}

// IncrementalRelayFeeRate returns the configured BIP 125 rule 4 increment.
func (b *Backend) IncrementalRelayFeeRate() feebumper.FeeRate {
	return feebumper.FeeRate(viper.GetInt64("incremental_relay_fee"))
}

// MinimumFeeRate returns the lowest rate the wallet would use for a new
// transaction right now.
func (b *Backend) MinimumFeeRate(*feebumper.CoinControl) feebumper.FeeRate {
	return feebumper.FeeRate(policy.EstimateMinRate())
}

// MinimumFee returns the minimum total fee for a transaction of the given
// virtual size.
func (b *Backend) MinimumFee(vsize int64,
	cc *feebumper.CoinControl) btcutil.Amount {

	return b.MinimumFeeRate(cc).FeeFor(vsize)
}

// RequiredFee returns the relay-policy fee for the given virtual size.
func (b *Backend) RequiredFee(vsize int64) btcutil.Amount {
	relayFee := btcutil.Amount(viper.GetInt64("min_relay_fee"))
	return txrules.FeeForSerializeSize(relayFee, int(vsize))
}

// MaxTxFee returns the configured absolute fee ceiling.
func (b *Backend) MaxTxFee() btcutil.Amount {
	return btcutil.Amount(viper.GetInt64("max_tx_fee"))
}

// SignalsRBF reports whether new transactions signal replaceability by
// default.
func (b *Backend) SignalsRBF() bool {
	return viper.GetBool("signal_rbf")
}

// TotalDebit sums the values of the outputs wtx spends.
func (b *Backend) TotalDebit(wtx *feebumper.WalletTx) btcutil.Amount {
	var total btcutil.Amount
	for _, txIn := range wtx.Tx.TxIn {
		if coin := b.FindCoin(txIn.PreviousOutPoint); coin != nil {
			total += btcutil.Amount(coin.Value)
		}
	}
	return total
}

// MaxSignedTxSize estimates the virtual size of tx once fully signed.
// Inputs with pinned weights (external coins) contribute their worst-case
// weight instead of a type-based estimate.
func (b *Backend) MaxSignedTxSize(tx *wire.MsgTx,
	cc *feebumper.CoinControl) (int64, error) {

	var p2pkh, p2tr, p2wpkh, nested int
	var externalVBytes int64

	for _, txIn := range tx.TxIn {
		if cc != nil {
			if weight, ok := cc.InputWeight(txIn.PreviousOutPoint); ok {
				externalVBytes += (weight + 3) / 4
				continue
			}
		}
		coin := b.FindCoin(txIn.PreviousOutPoint)
		if coin == nil {
			return 0, fmt.Errorf("cannot resolve output %s:%d",
				txIn.PreviousOutPoint.Hash, txIn.PreviousOutPoint.Index)
		}
		switch {
		case txscript.IsPayToWitnessPubKeyHash(coin.PkScript):
			p2wpkh++
		case txscript.IsPayToTaproot(coin.PkScript):
			p2tr++
		case txscript.IsPayToScriptHash(coin.PkScript):
			nested++
		default:
			p2pkh++
		}
	}

	vsize := txsizes.EstimateVirtualSize(p2pkh, p2tr, p2wpkh, nested,
		tx.TxOut, 0)
	return int64(vsize) + externalVBytes, nil
}

// DustThreshold returns the dust limit for the given output at the default
// relay rate.
func (b *Backend) DustThreshold(txOut *wire.TxOut) btcutil.Amount {
	return btcutil.Amount(mempool.GetDustThreshold(txOut))
}

// CreateTransaction builds an unsigned transaction paying the recipients
// from the coin control's selected inputs, adding wallet coins if allowed
// and needed, with change to the requested destination.
func (b *Backend) CreateTransaction(recipients []*wire.TxOut,
	cc *feebumper.CoinControl) (*wire.MsgTx, btcutil.Amount, error) {

	feeRate := feebumper.FeeRate(policy.EstimateMinRate())
	if cc.FeeRate != nil {
		feeRate = *cc.FeeRate
	}

	type candidate struct {
		outPoint wire.OutPoint
		txOut    *wire.TxOut
	}

	// Required inputs first, in selection order.
	var inputs []candidate
	var inputValue btcutil.Amount
	for _, op := range cc.SelectedInputs() {
		coin := cc.ExternalOutput(op)
		if coin == nil {
			coin = b.FindCoin(op)
		}
		if coin == nil {
			return nil, 0, fmt.Errorf("selected input %s:%d cannot be resolved",
				op.Hash, op.Index)
		}
		inputs = append(inputs, candidate{outPoint: op, txOut: coin})
		inputValue += btcutil.Amount(coin.Value)
	}

	// Wallet coins the selector may add on top, largest first.
	var spare []candidate
	if cc.AllowOtherInputs {
		utxos, err := b.Wallet.ListUnspent(cc.MinDepth, 9999999, "")
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list unspent outputs: %v", err)
		}
		sort.Slice(utxos, func(i, j int) bool {
			return utxos[i].Amount > utxos[j].Amount
		})
		for _, utxo := range utxos {
			hash, err := chainhash.NewHashFromStr(utxo.TxID)
			if err != nil {
				continue
			}
			op := wire.OutPoint{Hash: *hash, Index: utxo.Vout}
			if cc.IsSelected(op) {
				continue
			}
			pkScript, err := hex.DecodeString(utxo.ScriptPubKey)
			if err != nil {
				continue
			}
			value := int64(utxo.Amount * btcutil.SatoshiPerBitcoin)
			spare = append(spare, candidate{
				outPoint: op,
				txOut:    wire.NewTxOut(value, pkScript),
			})
		}
	}

	changeScript := cc.ChangeDestination
	if len(changeScript) == 0 {
		changeAddr, err := b.Wallet.NewChangeAddress(0, waddrmgr.KeyScopeBIP0084)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to derive change address: %v", err)
		}
		changeScript, err = txscript.PayToAddrScript(changeAddr)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to build change script: %v", err)
		}
	}

	var targetValue btcutil.Amount
	for _, out := range recipients {
		targetValue += btcutil.Amount(out.Value)
	}

	estimateFee := func(ins []candidate) btcutil.Amount {
		var p2pkh, p2tr, p2wpkh, nested int
		var externalVBytes int64
		for _, in := range ins {
			if weight, ok := cc.InputWeight(in.outPoint); ok {
				externalVBytes += (weight + 3) / 4
				continue
			}
			switch {
			case txscript.IsPayToWitnessPubKeyHash(in.txOut.PkScript):
				p2wpkh++
			case txscript.IsPayToTaproot(in.txOut.PkScript):
				p2tr++
			case txscript.IsPayToScriptHash(in.txOut.PkScript):
				nested++
			default:
				p2pkh++
			}
		}
		vsize := txsizes.EstimateVirtualSize(p2pkh, p2tr, p2wpkh, nested,
			recipients, len(changeScript))
		return feeRate.FeeFor(int64(vsize) + externalVBytes)
	}

	fee := estimateFee(inputs)
	for inputValue < targetValue+fee {
		if len(spare) == 0 {
			return nil, 0, fmt.Errorf("insufficient funds: have %v, "+
				"need %v", inputValue, targetValue+fee)
		}
		next := spare[0]
		spare = spare[1:]
		inputs = append(inputs, next)
		inputValue += btcutil.Amount(next.txOut.Value)
		fee = estimateFee(inputs)
	}

	signalRBF := b.SignalsRBF()
	if cc.SignalRBF != nil {
		signalRBF = *cc.SignalRBF
	}
	sequence := uint32(wire.MaxTxInSequenceNum - 1)
	if signalRBF {
		sequence = wire.MaxTxInSequenceNum - 2
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, in := range inputs {
		txIn := wire.NewTxIn(&in.outPoint, nil, nil)
		txIn.Sequence = sequence
		tx.AddTxIn(txIn)
	}
	for _, out := range recipients {
		tx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
	}

	change := inputValue - targetValue - fee
	changeOut := wire.NewTxOut(int64(change), changeScript)
	if change > btcutil.Amount(mempool.GetDustThreshold(changeOut)) {
		tx.AddTxOut(changeOut)
		txauthor.RandomizeOutputPosition(tx.TxOut, len(tx.TxOut)-1)
	} else {
		// Sub-dust change is not worth an output.
		fee += change
	}

	return tx, fee, nil
}

// SignTransaction signs every wallet-owned input of tx in place. Inputs the
// wallet does not own are left untouched for their owner to sign. The
// wallet must be unlocked.
func (b *Backend) SignTransaction(tx *wire.MsgTx) error {
	for i, txIn := range tx.TxIn {
		coin := b.FindCoin(txIn.PreviousOutPoint)
		if coin == nil {
			return fmt.Errorf("cannot resolve output for input %d", i)
		}

		_, addrs, _, err := txscript.ExtractPkScriptAddrs(coin.PkScript,
			b.Wallet.ChainParams())
		if err != nil {
			return fmt.Errorf("failed to extract address for input %d: %v", i, err)
		}
		if len(addrs) == 0 {
			return fmt.Errorf("no addresses found for input %d", i)
		}

		if have, err := b.Wallet.HaveAddress(addrs[0]); err != nil || !have {
			continue
		}

		privKey, err := b.Wallet.PrivKeyForAddress(addrs[0])
		if err != nil {
			return fmt.Errorf("failed to get private key for input %d: %v", i, err)
		}

		prevOutputFetcher := txscript.NewCannedPrevOutputFetcher(coin.PkScript,
			coin.Value)

		if txscript.IsPayToWitnessPubKeyHash(coin.PkScript) {
			witness, err := txscript.WitnessSignature(tx,
				txscript.NewTxSigHashes(tx, prevOutputFetcher), i, coin.Value,
				coin.PkScript, txscript.SigHashAll, privKey, true)
			if err != nil {
				return fmt.Errorf("failed to create witness for input %d: %v", i, err)
			}
			tx.TxIn[i].Witness = witness
		} else {
			sigScript, err := txscript.SignatureScript(tx, i, coin.PkScript,
				txscript.SigHashAll, privKey, true)
			if err != nil {
				return fmt.Errorf("failed to create signature script for "+
					"input %d: %v", i, err)
			}
			tx.TxIn[i].SignatureScript = sigScript
		}

		valid, err := verifySignature(tx, i, coin.PkScript, coin.Value)
		if err != nil || !valid {
			return fmt.Errorf("signature verification failed for input %d: %v",
				i, err)
		}
	}
	return nil
}

// CommitTransaction records the replacement in the local store and
// broadcasts it.
func (b *Backend) CommitTransaction(tx *wire.MsgTx,
	replacesTxid chainhash.Hash) error {

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return fmt.Errorf("failed to serialize transaction: %v", err)
	}
	txid := tx.TxHash()

	if err := walletstatedb.SaveRawTransaction(txid.String(), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to store transaction: %v", err)
	}
	rec := walletstatedb.BumpRecord{
		TxHash:       txid.String(),
		ReplacesTxid: replacesTxid.String(),
		Status:       walletstatedb.TxStatusBroadcast,
		CreatedAt:    time.Now(),
	}
	if err := walletstatedb.SaveBumpRecord(rec); err != nil {
		return fmt.Errorf("failed to store bump record: %v", err)
	}

	_, verified, err := policy.BroadcastAndVerifyTransaction(tx, b.ChainService)
	if err != nil {
		return err
	}
	if !verified {
		logger.Warn("Replacement broadcast could not be verified in mempool:",
			txid.String())
	}
	return nil
}

// MarkReplaced links the original and its replacement in the lineage index.
func (b *Backend) MarkReplaced(oldTxid, newTxid chainhash.Hash) error {
	return walletstatedb.MarkTransactionReplaced(oldTxid.String(), newTxid.String())
}

// verifySignature runs the script engine over one signed input.
func verifySignature(tx *wire.MsgTx, index int, scriptPubKey []byte,
	amount int64) (bool, error) {

	prevOutputs := txscript.NewCannedPrevOutputFetcher(scriptPubKey, amount)
	engine, err := txscript.NewEngine(scriptPubKey, tx, index,
		txscript.StandardVerifyFlags, nil, nil, amount, prevOutputs)
	if err != nil {
		return false, fmt.Errorf("failed to create script engine: %v", err)
	}
	if err := engine.Execute(); err != nil {
		return false, fmt.Errorf("failed to execute script: %v", err)
	}
	return true, nil
}

// electrumScriptHash converts an output script to the Electrum protocol's
// reversed sha256 hex form.
func electrumScriptHash(pkScript []byte) string {
	digest := sha256.Sum256(pkScript)
	for i, j := 0, len(digest)-1; i < j; i, j = i+1, j-1 {
		digest[i], digest[j] = digest[j], digest[i]
	}
	return hex.EncodeToString(digest[:])
}
