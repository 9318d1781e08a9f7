// Package rescanner watches the chain for confirmations of broadcast
// replacement transactions and settles their records in the lineage index.
package rescanner

import (
	"fmt"
	"time"

	walletstatedb "github.com/cypherstack/bumpwallet/internal/database"
	"github.com/cypherstack/bumpwallet/internal/logger"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/neutrino"
	"github.com/lightninglabs/neutrino/headerfs"
)

// MonitorReplacements rescans the chain from the last scanned height (or
// config.StartBlock, whichever is higher) over the wallet's addresses. Any
// transaction found in a block that has a bump record gets its confirmation
// height recorded and its status settled to confirmed.
func MonitorReplacements(config MonitorConfig) error {
	if config.Wallet == nil || config.ChainClient == nil {
		return fmt.Errorf("wallet or chain client is nil, cannot scan")
	}

	startHeight := config.StartBlock
	if lastScanned, err := walletstatedb.GetLastScannedBlockHeight(); err == nil &&
		lastScanned > startHeight {
		startHeight = lastScanned
	}

	_, bestHeight, err := config.ChainClient.GetBestBlock()
	if err != nil {
		return fmt.Errorf("failed to get best block: %v", err)
	}
	if startHeight >= bestHeight {
		return nil
	}

	allAddresses, err := config.Wallet.AccountAddresses(0)
	if err != nil {
		return fmt.Errorf("failed to get addresses from wallet: %v", err)
	}
	if len(allAddresses) == 0 {
		return nil
	}

	logger.Info("Scanning blocks", startHeight, "to", bestHeight,
		"over", len(allAddresses), "addresses")

	chainSource := &neutrino.RescanChainSource{
		ChainService: config.ChainClient.CS,
	}

	quit := make(chan struct{})
	defer close(quit)

	ntfn := rpcclient.NotificationHandlers{
		OnFilteredBlockConnected: func(height int32, header *wire.BlockHeader,
			txns []*btcutil.Tx) {

			for _, tx := range txns {
				settleConfirmedTransaction(tx.Hash().String(), height)
			}
		},
	}

	rescan := neutrino.NewRescan(
		chainSource,
		neutrino.StartBlock(&headerfs.BlockStamp{Height: startHeight}),
		neutrino.EndBlock(&headerfs.BlockStamp{Height: bestHeight}),
		neutrino.WatchAddrs(allAddresses...),
		neutrino.NotificationHandlers(ntfn),
		neutrino.QuitChan(quit),
		neutrino.QueryOptions(
			neutrino.NumRetries(10),
			neutrino.Timeout(time.Minute*20),
		),
	)

	errChan := rescan.Start()
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("rescan error: %v", err)
		}
	case <-time.After(time.Minute * 30):
		return fmt.Errorf("rescan timed out at height range %d-%d",
			startHeight, bestHeight)
	}

	if err := walletstatedb.SetLastScannedBlockHeight(bestHeight); err != nil {
		logger.Warn("Failed to record last scanned height:", err)
	}

	logger.Info("Replacement scan completed at height", bestHeight)
	return nil
}

// settleConfirmedTransaction records the confirmation height for a tracked
// transaction. A confirmed transaction ends its replacement chain: nothing
// that conflicts with it can ever confirm.
func settleConfirmedTransaction(txHash string, height int32) {
	rec, err := walletstatedb.GetBumpRecord(txHash)
	if err != nil || rec == nil {
		return
	}

	if err := walletstatedb.SetTransactionHeight(txHash, height); err != nil {
		logger.Warn("Failed to record confirmation height:", err)
		return
	}

	if rec.Status != walletstatedb.TxStatusConfirmed {
		rec.Status = walletstatedb.TxStatusConfirmed
		if err := walletstatedb.SaveBumpRecord(*rec); err != nil {
			logger.Warn("Failed to settle bump record:", err)
			return
		}
		logger.Info("Replacement confirmed in block", height, ":", txHash)
	}
}
