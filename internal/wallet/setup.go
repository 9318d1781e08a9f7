package wallet

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	walletstatedb "github.com/cypherstack/bumpwallet/internal/database"
	"github.com/cypherstack/bumpwallet/internal/logger"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/chain"
	"github.com/btcsuite/btcwallet/wallet"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/lightninglabs/neutrino"
	"github.com/spf13/viper"
)

const (
	dbTimeout      = 120 * time.Second
	recoveryWindow = uint32(250)
)

// Node bundles the running wallet and its chain backend.
type Node struct {
	Wallet       *wallet.Wallet
	ChainParams  *chaincfg.Params
	ChainService *neutrino.ChainService
	ChainClient  *chain.NeutrinoClient
	NeutrinoDB   walletdb.DB
	PrivPass     []byte
	Name         string
}

// OpenNode opens an existing wallet, initializes the local transaction
// store and brings up the neutrino chain backend. The wallet must already
// exist; this application does not create wallets.
func OpenNode(walletName string, creds *Credentials) (*Node, error) {
	chainParams, err := networkParams()
	if err != nil {
		return nil, err
	}

	if err := initTransactionStore(walletName); err != nil {
		return nil, err
	}

	baseDir := viper.GetString("wallet_dir")
	neutrinoDBPath := filepath.Join(baseDir, "neutrino_db")
	if err := os.MkdirAll(neutrinoDBPath, os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating neutrino DB directory: %v", err)
	}

	walletDir := filepath.Join(neutrinoDBPath, walletName+"_wallet")
	if err := os.MkdirAll(walletDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating wallet directory: %v", err)
	}

	loader := wallet.NewLoader(chainParams, walletDir, false, dbTimeout,
		recoveryWindow)

	walletExists, err := loader.WalletExists()
	if err != nil {
		return nil, fmt.Errorf("error checking wallet existence: %v", err)
	}
	if !walletExists {
		return nil, fmt.Errorf("wallet %q not found under %s", walletName,
			walletDir)
	}

	w, err := loader.OpenExistingWallet(creds.PubPass, false)
	if err != nil {
		return nil, fmt.Errorf("error opening wallet: %v", err)
	}
	logger.Info("Opened wallet", walletName)

	neutrinoDB, err := walletdb.Create("bdb",
		filepath.Join(neutrinoDBPath, "neutrino.db"), true, time.Second*60)
	if err != nil {
		return nil, fmt.Errorf("error creating neutrino database: %v", err)
	}

	addPeers := viper.GetStringSlice("add_peers")
	if len(addPeers) == 0 {
		addPeers = []string{
			"seed.bitcoin.sipa.be:8333",
			"dnsseed.bluematt.me:8333",
		}
		logger.Info("Using default peers as none were configured")
	}

	chainService, err := neutrino.NewChainService(neutrino.Config{
		DataDir:         neutrinoDBPath,
		Database:        neutrinoDB,
		ChainParams:     *chainParams,
		AddPeers:        addPeers,
		PersistToDisk:   true,
		FilterCacheSize: neutrino.DefaultFilterCacheSize,
		BlockCacheSize:  neutrino.DefaultBlockCacheSize,
	})
	if err != nil {
		neutrinoDB.Close()
		return nil, fmt.Errorf("error creating chain service: %v", err)
	}

	if err := chainService.Start(); err != nil {
		neutrinoDB.Close()
		return nil, fmt.Errorf("error starting chain service: %v", err)
	}

	waitForChainSync(chainService)

	chainClient := chain.NewNeutrinoClient(chainParams, chainService)
	if err := chainClient.Start(); err != nil {
		chainService.Stop()
		neutrinoDB.Close()
		return nil, fmt.Errorf("error starting chain client: %v", err)
	}

	w.SynchronizeRPC(chainClient)

	if _, height, err := chainClient.GetBestBlock(); err == nil {
		if err := walletstatedb.SetLastScannedBlockHeight(height); err != nil {
			logger.Warn("Failed to record best block height:", err)
		}
	}

	return &Node{
		Wallet:       w,
		ChainParams:  chainParams,
		ChainService: chainService,
		ChainClient:  chainClient,
		NeutrinoDB:   neutrinoDB,
		PrivPass:     creds.PrivPass,
		Name:         walletName,
	}, nil
}

// Close locks the wallet and shuts down the chain backend.
func (n *Node) Close() {
	if n.Wallet != nil {
		n.Wallet.Lock()
	}
	if n.ChainClient != nil {
		n.ChainClient.Stop()
	}
	if n.ChainService != nil {
		n.ChainService.Stop()
	}
	if n.NeutrinoDB != nil {
		n.NeutrinoDB.Close()
	}
}

func networkParams() (*chaincfg.Params, error) {
	switch network := viper.GetString("network"); network {
	case "mainnet", "":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

func initTransactionStore(walletName string) error {
	switch backend := viper.GetString("db_backend"); backend {
	case "sqlite":
		walletstatedb.SetDatabaseBackend(walletstatedb.DBTypeSQLite)
	case "graviton", "":
		walletstatedb.SetDatabaseBackend(walletstatedb.DBTypeGraviton)
	default:
		return fmt.Errorf("unknown db_backend %q", backend)
	}

	dbPath := viper.GetString("wallet_db_path")
	if dbPath == "" {
		dbPath = filepath.Join(viper.GetString("wallet_dir"),
			walletName+"_state.db")
	}
	if err := walletstatedb.InitializeDatabase(dbPath); err != nil {
		return fmt.Errorf("error initializing transaction store: %v", err)
	}
	return nil
}

func waitForChainSync(chainService *neutrino.ChainService) {
	logger.Info("Waiting for chain sync...")
	for i := 0; i < 120; i++ {
		time.Sleep(10 * time.Second)
		bestBlock, err := chainService.BestBlock()
		if err != nil {
			logger.Warn("Error getting best block:", err)
			continue
		}
		logger.Info("Current block height:", bestBlock.Height,
			"peers:", len(chainService.Peers()))

		if chainService.IsCurrent() {
			logger.Info("Chain is synced")
			return
		}
	}
	logger.Warn("Chain sync did not complete within the wait window")
}
