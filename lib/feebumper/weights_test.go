package feebumper

import (
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// derSignature fabricates a DER-looking signature of the given total
// length, sighash byte included.
func derSignature(n int) []byte {
	sig := make([]byte, n)
	sig[0] = 0x30
	sig[1] = byte(n - 3)
	return sig
}

func compressedPubKey() []byte {
	pk := make([]byte, 33)
	pk[0] = 0x02
	return pk
}

func TestMaxInputWeightLegacy(t *testing.T) {
	// A signed p2pkh scriptSig: push(71-byte sig) push(33-byte pubkey).
	sig := derSignature(71)
	pk := compressedPubKey()
	scriptSig := append([]byte{byte(len(sig))}, sig...)
	scriptSig = append(scriptSig, byte(len(pk)))
	scriptSig = append(scriptSig, pk...)

	op := outPoint(0x01, 0)
	txIn := wire.NewTxIn(&op, scriptSig, nil)

	base := int64(40+1+len(scriptSig)) * blockchain.WitnessScaleFactor
	// The 71-byte signature is padded to 73; the pubkey is left alone.
	want := base + 2*blockchain.WitnessScaleFactor
	require.Equal(t, want, maxInputWeight(txIn))
}

func TestMaxInputWeightWitness(t *testing.T) {
	sig := derSignature(71)
	pk := compressedPubKey()

	op := outPoint(0x02, 0)
	txIn := wire.NewTxIn(&op, nil, wire.TxWitness{sig, pk})

	base := int64(41) * blockchain.WitnessScaleFactor
	witness := int64(txIn.Witness.SerializeSize())
	// Witness bytes weigh 1 each, so the signature pad is only 2.
	want := base + witness + 2
	require.Equal(t, want, maxInputWeight(txIn))
}

// A maximum-size signature needs no padding, so the weight is exact.
func TestMaxInputWeightFullSizeSignature(t *testing.T) {
	sig := derSignature(maxSignatureSize)

	op := outPoint(0x03, 0)
	txIn := wire.NewTxIn(&op, nil, wire.TxWitness{sig})

	want := int64(41)*blockchain.WitnessScaleFactor +
		int64(txIn.Witness.SerializeSize())
	require.Equal(t, want, maxInputWeight(txIn))
}

func TestIsSignature(t *testing.T) {
	require.True(t, isSignature(derSignature(9)))
	require.True(t, isSignature(derSignature(73)))

	require.False(t, isSignature(derSignature(74)))     // too long
	require.False(t, isSignature([]byte{0x30, 1}))      // too short
	require.False(t, isSignature(compressedPubKey()))   // wrong prefix
}

func TestStripSignatures(t *testing.T) {
	sig := derSignature(71)
	op := outPoint(0x04, 0)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&op, append([]byte{byte(len(sig))}, sig...),
		wire.TxWitness{sig}))
	tx.AddTxOut(wire.NewTxOut(1000, p2pkhScript(0x05)))

	stripped := stripSignatures(tx)
	require.Empty(t, stripped.TxIn[0].SignatureScript)
	require.Empty(t, stripped.TxIn[0].Witness)

	// The input set and outputs survive, and the original is untouched.
	require.Equal(t, op, stripped.TxIn[0].PreviousOutPoint)
	require.Len(t, stripped.TxOut, 1)
	require.NotEmpty(t, tx.TxIn[0].SignatureScript)
	require.NotEmpty(t, tx.TxIn[0].Witness)
}
