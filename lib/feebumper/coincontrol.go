package feebumper

import (
	"github.com/btcsuite/btcd/wire"
)

// CoinControl describes the input-selection constraints for one builder
// call. A CoinControl is owned exclusively by that call: the builders clone
// the caller's value before mutating it, so a caller can reuse its own copy
// across attempts.
type CoinControl struct {
	// FeeRate, when non-nil, is an explicit target fee rate for the
	// replacement. When nil the builder estimates one.
	FeeRate *FeeRate

	// ChangeDestination, when non-empty, is the output script change
	// should be paid to.
	ChangeDestination []byte

	// SignalRBF overrides the wallet's default BIP 125 signaling for
	// the replacement when non-nil.
	SignalRBF *bool

	// AllowOtherInputs permits the selection engine to add inputs
	// beyond the explicitly selected set.
	AllowOtherInputs bool

	// MinDepth is the minimum confirmation depth for any newly sourced
	// input.
	MinDepth int32

	selected []wire.OutPoint
	selectedSet map[wire.OutPoint]struct{}
	external map[wire.OutPoint]*wire.TxOut
	inputWeights map[wire.OutPoint]int64
}

// Clone returns a deep copy the builder may mutate freely.
func (cc *CoinControl) Clone() *CoinControl {
	if cc == nil {
		return &CoinControl{}
	}
	out := &CoinControl{
		ChangeDestination: append([]byte(nil), cc.ChangeDestination...),
		AllowOtherInputs:  cc.AllowOtherInputs,
		MinDepth:          cc.MinDepth,
	}
	if cc.FeeRate != nil {
		rate := *cc.FeeRate
		out.FeeRate = &rate
	}
	if cc.SignalRBF != nil {
		signal := *cc.SignalRBF
		out.SignalRBF = &signal
	}
	for _, op := range cc.selected {
		out.Select(op)
	}
	for op, txOut := range cc.external {
		out.SelectExternal(op, txOut)
	}
	for op, weight := range cc.inputWeights {
		out.SetInputWeight(op, weight)
	}
	return out
}

// Select adds op to the set of inputs the replacement must spend. Selecting
// the same outpoint twice is a no-op, preserving first-selection order.
func (cc *CoinControl) Select(op wire.OutPoint) {
	if cc.selectedSet == nil {
		cc.selectedSet = make(map[wire.OutPoint]struct{})
	}
	if _, ok := cc.selectedSet[op]; ok {
		return
	}
	cc.selectedSet[op] = struct{}{}
	cc.selected = append(cc.selected, op)
}

// SelectExternal records an input the wallet does not own, together with
// the output it spends so the engine can account for its value.
func (cc *CoinControl) SelectExternal(op wire.OutPoint, txOut *wire.TxOut) {
	cc.Select(op)
	if cc.external == nil {
		cc.external = make(map[wire.OutPoint]*wire.TxOut)
	}
	cc.external[op] = txOut
}

// IsSelected reports whether op was selected.
func (cc *CoinControl) IsSelected(op wire.OutPoint) bool {
	_, ok := cc.selectedSet[op]
	return ok
}

// IsExternalSelected reports whether op was selected as an external input.
func (cc *CoinControl) IsExternalSelected(op wire.OutPoint) bool {
	_, ok := cc.external[op]
	return ok
}

// ExternalOutput returns the recorded output for an external input, or nil.
func (cc *CoinControl) ExternalOutput(op wire.OutPoint) *wire.TxOut {
	return cc.external[op]
}

// SetInputWeight fixes the signed weight estimate for op, used for external
// inputs whose final signature size the wallet cannot know.
func (cc *CoinControl) SetInputWeight(op wire.OutPoint, weight int64) {
	if cc.inputWeights == nil {
		cc.inputWeights = make(map[wire.OutPoint]int64)
	}
	cc.inputWeights[op] = weight
}

// InputWeight returns the fixed weight for op, if one was set.
func (cc *CoinControl) InputWeight(op wire.OutPoint) (int64, bool) {
	weight, ok := cc.inputWeights[op]
	return weight, ok
}

// SelectedInputs returns the selected outpoints in first-selection order.
func (cc *CoinControl) SelectedInputs() []wire.OutPoint {
	return append([]wire.OutPoint(nil), cc.selected...)
}
