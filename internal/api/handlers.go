package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	walletstatedb "github.com/cypherstack/bumpwallet/internal/database"
	"github.com/cypherstack/bumpwallet/internal/logger"
	walletnode "github.com/cypherstack/bumpwallet/internal/wallet"
	"github.com/cypherstack/bumpwallet/lib/feebumper"
	"github.com/cypherstack/bumpwallet/lib/policy"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/spf13/viper"
)

func httpStatusForCode(code feebumper.Code) int {
	switch code {
	case feebumper.CodeInvalidParameter:
		return http.StatusBadRequest
	case feebumper.CodeInvalidAddressOrKey:
		return http.StatusNotFound
	case feebumper.CodeWalletError:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleAuth exchanges the wallet password for a bearer token. The password
// is verified by decrypting the wallet's stored passphrases with it.
func (a *API) HandleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := walletnode.LoadCredentials(a.Node.Name, req.Password); err != nil {
		http.Error(w, "Unauthorized: invalid password", http.StatusUnauthorized)
		return
	}

	token, err := GenerateJWT(a.Node.Name)
	if err != nil {
		logger.Error("Failed to issue token:", err)
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token})
}

// PerformBumpFee builds, signs and broadcasts a replacement for the
// requested transaction. It returns the response body and the HTTP status
// it maps to, so both the HTTP and IPC surfaces can share it.
func (a *API) PerformBumpFee(req BumpFeeRequest) (BumpFeeResponse, int) {
	txid, err := chainhash.NewHashFromStr(req.TxID)
	if err != nil {
		return BumpFeeResponse{
			Status: "failed",
			Errors: []string{fmt.Sprintf("invalid txid: %v", err)},
		}, http.StatusBadRequest
	}

	cc := &feebumper.CoinControl{}
	if req.FeeRate > 0 {
		rate := feebumper.FeeRate(req.FeeRate * 1000) // sat/vB to sat/kvB
		cc.FeeRate = &rate
	}

	var res *feebumper.BumpResult
	var result feebumper.Result
	switch req.Mode {
	case "", "rate":
		res, result = feebumper.CreateRateBumpTransaction(a.Backend, *txid, cc,
			!req.AllowForeignInputs)
	case "total":
		res, result = feebumper.CreateTotalBumpTransaction(a.Backend, *txid, cc)
	default:
		return BumpFeeResponse{
			Status: "failed",
			Errors: []string{fmt.Sprintf("unknown bump mode %q", req.Mode)},
		}, http.StatusBadRequest
	}
	if !result.OK() {
		return BumpFeeResponse{
			Status:   "failed",
			Message:  result.Code.String(),
			Errors:   result.Errors,
			Warnings: result.Warnings,
		}, httpStatusForCode(result.Code)
	}

	if !viper.GetBool("watch_only") {
		if err := a.Node.Wallet.Unlock(a.Node.PrivPass, nil); err != nil {
			logger.Error("Failed to unlock wallet:", err)
			return BumpFeeResponse{
				Status: "failed",
				Errors: []string{"failed to unlock wallet"},
			}, http.StatusInternalServerError
		}
		defer a.Node.Wallet.Lock()
	}

	if err := feebumper.SignTransaction(a.Backend, res.Tx); err != nil {
		logger.Error("Failed to sign replacement:", err)
		return BumpFeeResponse{
			Status: "failed",
			OldFee: int64(res.OldFee),
			NewFee: int64(res.NewFee),
			Errors: []string{fmt.Sprintf("failed to sign replacement: %v", err)},
		}, http.StatusInternalServerError
	}

	newTxid, commitResult := feebumper.CommitTransaction(a.Backend, *txid,
		res.Tx, nil)
	if !commitResult.OK() {
		return BumpFeeResponse{
			Status:   "failed",
			Message:  commitResult.Code.String(),
			OldFee:   int64(res.OldFee),
			NewFee:   int64(res.NewFee),
			Errors:   commitResult.Errors,
			Warnings: commitResult.Warnings,
		}, httpStatusForCode(commitResult.Code)
	}

	return BumpFeeResponse{
		TxID:     newTxid.String(),
		Status:   "success",
		Message:  "Replacement transaction broadcast",
		OldFee:   int64(res.OldFee),
		NewFee:   int64(res.NewFee),
		Warnings: commitResult.Warnings,
	}, http.StatusOK
}

// HandleBumpFee is the HTTP surface of PerformBumpFee.
func (a *API) HandleBumpFee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req BumpFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, status := a.PerformBumpFee(req)
	writeJSON(w, status, resp)
}

// CanBump reports whether txid is currently bumpable.
func (a *API) CanBump(txid chainhash.Hash) CanBumpResponse {
	return CanBumpResponse{
		TxID:     txid.String(),
		Bumpable: feebumper.TransactionCanBeBumped(a.Backend, txid),
	}
}

// HandleCanBump reports whether the transaction in the txid query parameter
// is currently bumpable.
func (a *API) HandleCanBump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	txid, err := chainhash.NewHashFromStr(r.URL.Query().Get("txid"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid txid: %v", err), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, a.CanBump(*txid))
}

// HandleReplacementChain returns the recorded chain of replacements rooted
// at the transaction in the txid query parameter.
func (a *API) HandleReplacementChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	txid, err := chainhash.NewHashFromStr(r.URL.Query().Get("txid"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid txid: %v", err), http.StatusBadRequest)
		return
	}

	chain, err := walletstatedb.GetReplacementChain(txid.String())
	if err != nil {
		logger.Error("Failed to load replacement chain:", err)
		http.Error(w, "Failed to load replacement chain", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ReplacementChainResponse{
		TxID:  txid.String(),
		Chain: chain,
	})
}

// HandleFeeRecommendation proxies the oracle's current fee tiers.
func (a *API) HandleFeeRecommendation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	feeRec, err := policy.GetFeeRecommendation()
	if err != nil {
		logger.Error("Fee oracle request failed:", err)
		http.Error(w, "Fee oracle unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, feeRec)
}
