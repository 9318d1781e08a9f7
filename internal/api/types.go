package api

import (
	walletstatedb "github.com/cypherstack/bumpwallet/internal/database"
	walletnode "github.com/cypherstack/bumpwallet/internal/wallet"
)

// API serves the fee-bump operations over HTTP on top of a running wallet
// node.
type API struct {
	Node    *walletnode.Node
	Backend *walletnode.Backend
}

// BumpFeeRequest asks for a replacement of an unconfirmed transaction.
// FeeRate is in sat/vB; zero lets the wallet estimate one. Mode selects the
// builder: "rate" (default) reruns coin selection, "total" debits the
// change output in place.
type BumpFeeRequest struct {
	TxID               string `json:"txid"`
	FeeRate            int64  `json:"fee_rate,omitempty"`
	Mode               string `json:"mode,omitempty"`
	AllowForeignInputs bool   `json:"allow_foreign_inputs,omitempty"`
}

type BumpFeeResponse struct {
	TxID     string   `json:"txid,omitempty"`
	Status   string   `json:"status"`
	Message  string   `json:"message,omitempty"`
	OldFee   int64    `json:"old_fee,omitempty"`
	NewFee   int64    `json:"new_fee,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type CanBumpResponse struct {
	TxID     string `json:"txid"`
	Bumpable bool   `json:"bumpable"`
}

type ReplacementChainResponse struct {
	TxID  string                     `json:"txid"`
	Chain []walletstatedb.BumpRecord `json:"chain"`
}

type AuthRequest struct {
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

type contextKey string
