package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/checksum0/go-electrum/electrum"
	"github.com/spf13/viper"
)

// VerifyTransactionInMempool asks a public block explorer whether the
// transaction is known.
func VerifyTransactionInMempool(txHash chainhash.Hash) (bool, error) {
	url := fmt.Sprintf("https://api.blockcypher.com/v1/btc/main/txs/%s",
		txHash.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to get transaction: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("failed to get transaction: status code %d",
			resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode response: %v", err)
	}

	return result["hash"] == txHash.String(), nil
}

// NewElectrumClient connects to the configured Electrum server.
func NewElectrumClient() (*electrum.Client, error) {
	config := ElectrumConfig{
		ServerAddr: viper.GetString("electrum_server"),
		UseSSL:     viper.GetBool("electrum_use_ssl"),
	}
	return CreateElectrumClient(config)
}

// CreateElectrumClient connects to the given Electrum server.
func CreateElectrumClient(config ElectrumConfig) (*electrum.Client, error) {
	ctx := context.Background()
	if config.UseSSL {
		return electrum.NewClientSSL(ctx, config.ServerAddr, nil)
	}
	return electrum.NewClientTCP(ctx, config.ServerAddr)
}

// VerifyTransactionInElectrumMempool reports whether the Electrum server
// knows the transaction.
func VerifyTransactionInElectrumMempool(client *electrum.Client,
	txid string) (bool, error) {

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := client.GetRawTransaction(ctx, txid)
	if err != nil {
		return false, fmt.Errorf("error checking Electrum mempool: %v", err)
	}
	return tx != "", nil
}

// FetchRawTransaction retrieves the raw transaction hex from Electrum, for
// transactions the local store has no copy of.
func FetchRawTransaction(client *electrum.Client, txid string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := client.GetRawTransaction(ctx, txid)
	if err != nil {
		return "", fmt.Errorf("error fetching transaction from Electrum: %v", err)
	}
	return tx, nil
}
