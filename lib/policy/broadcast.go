package policy

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cypherstack/bumpwallet/internal/logger"
	"github.com/lightninglabs/neutrino"
)

// BroadcastTransactionMultiAPI pushes the transaction through the public
// APIs in order, stopping at the first success.
func BroadcastTransactionMultiAPI(tx *wire.MsgTx) error {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return fmt.Errorf("failed to serialize transaction: %v", err)
	}
	txHex := hex.EncodeToString(buf.Bytes())

	// Try mempool.space API
	err := broadcastToMempoolSpace(txHex)
	if err == nil {
		return nil
	}
	logger.Warn("mempool.space broadcast failed:", err, "Trying BlockCypher...")

	// Try BlockCypher API
	err = broadcastToBlockCypher(txHex)
	if err == nil {
		return nil
	}
	logger.Warn("BlockCypher broadcast failed:", err, "Trying Blockstream...")

	// Try Blockstream API
	err = broadcastToBlockstream(txHex)
	if err == nil {
		return nil
	}
	logger.Error("Blockstream broadcast failed:", err)

	return fmt.Errorf("all API broadcasts failed")
}

func broadcastToMempoolSpace(txHex string) error {
	url := "https://mempool.space/api/tx"
	return broadcastToAPI(url, txHex, "text/plain")
}

func broadcastToBlockCypher(txHex string) error {
	url := "https://api.blockcypher.com/v1/btc/main/txs/push"
	jsonData := map[string]string{"tx": txHex}
	jsonBytes, err := json.Marshal(jsonData)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %v", err)
	}
	return broadcastToAPI(url, string(jsonBytes), "application/json")
}

func broadcastToBlockstream(txHex string) error {
	url := "https://blockstream.info/api/tx"
	return broadcastToAPI(url, txHex, "text/plain")
}

func broadcastToAPI(url, data, contentType string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, contentType, bytes.NewBufferString(data))
	if err != nil {
		return fmt.Errorf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode == http.StatusOK {
		logger.Info("Transaction broadcast successfully via", url)
		return nil
	}

	return fmt.Errorf("API returned non-200 status code: %d, Body: %s",
		resp.StatusCode, string(body))
}

// BroadcastAndVerifyTransaction broadcasts through the public APIs first
// and the neutrino ChainService second, then confirms mempool acceptance.
// The bool reports whether acceptance was verified.
func BroadcastAndVerifyTransaction(tx *wire.MsgTx,
	service *neutrino.ChainService) (chainhash.Hash, bool, error) {

	err := BroadcastTransactionMultiAPI(tx)
	if err == nil {
		logger.Info("Transaction broadcast via API. TxID:", tx.TxHash().String())
		return tx.TxHash(), true, nil
	}

	logger.Warn("API broadcast failed:", err, "Trying neutrino ChainService...")

	err = service.SendTransaction(tx)
	if err == nil {
		logger.Info("Transaction broadcast via neutrino. TxID:",
			tx.TxHash().String())
		return tx.TxHash(), true, nil
	}

	logger.Warn("Neutrino broadcast failed:", err, "Performing mempool check...")

	// All submission paths failed; the transaction may still have
	// propagated, so give the network a moment and look for it.
	time.Sleep(5 * time.Second)

	inMempool, err := VerifyTransactionInMempool(tx.TxHash())
	if err != nil {
		return chainhash.Hash{}, false,
			fmt.Errorf("all broadcasts failed and mempool check error: %v", err)
	}

	if inMempool {
		logger.Info("Transaction found in mempool despite broadcast failures")
		return tx.TxHash(), true, nil
	}

	return tx.TxHash(), false,
		fmt.Errorf("all broadcast attempts failed and transaction not found in mempool")
}
