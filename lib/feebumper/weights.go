package feebumper

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// maxSignatureSize is the largest serialized ECDSA signature we account
// for: 72 bytes of DER plus the sighash byte.
const maxSignatureSize = 73

// maxInputWeight estimates the weight an already-signed external input can
// reach in a replacement. The wallet cannot re-sign an input it does not
// own, but the owner will, and their new signature may be larger than the
// one observed on the original. Every datum that looks like a signature is
// therefore padded to the maximum size, so the size estimate for the
// replacement never comes up short.
func maxInputWeight(txIn *wire.TxIn) int64 {
	baseSize := 40 + // outpoint (36) + sequence (4)
		wire.VarIntSerializeSize(uint64(len(txIn.SignatureScript))) +
		len(txIn.SignatureScript)
	weight := int64(baseSize) * blockchain.WitnessScaleFactor

	// Signatures inside a scriptSig count at full weight.
	if pushes, err := txscript.PushedData(txIn.SignatureScript); err == nil {
		for _, datum := range pushes {
			if isSignature(datum) {
				weight += int64(maxSignatureSize-len(datum)) *
					blockchain.WitnessScaleFactor
			}
		}
	}

	if len(txIn.Witness) > 0 {
		weight += int64(txIn.Witness.SerializeSize())
		for _, item := range txIn.Witness {
			if isSignature(item) {
				weight += int64(maxSignatureSize - len(item))
			}
		}
	}

	return weight
}

// isSignature reports whether b plausibly holds a DER-encoded ECDSA
// signature plus sighash byte. 9 bytes is the smallest legal encoding.
func isSignature(b []byte) bool {
	return len(b) >= 9 && len(b) <= maxSignatureSize && b[0] == 0x30
}

// stripSignatures returns a copy of tx with all scriptSigs and witnesses
// cleared. Signed-size estimation expects unsigned inputs, so a probe of
// the original transaction's shape must not carry its signatures.
func stripSignatures(tx *wire.MsgTx) *wire.MsgTx {
	stripped := tx.Copy()
	for _, txIn := range stripped.TxIn {
		txIn.SignatureScript = nil
		txIn.Witness = nil
	}
	return stripped
}
