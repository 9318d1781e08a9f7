package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cypherstack/bumpwallet/internal/api"
	walletstatedb "github.com/cypherstack/bumpwallet/internal/database"
	"github.com/cypherstack/bumpwallet/internal/ipc"
	"github.com/cypherstack/bumpwallet/internal/logger"
	walletnode "github.com/cypherstack/bumpwallet/internal/wallet"
	"github.com/cypherstack/bumpwallet/lib/policy"
	"github.com/cypherstack/bumpwallet/lib/rescanner"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [wallet-name] [password]",
	Short: "Open a wallet and serve the fee-bump API",
	Long: `Open the named wallet, sync the chain over neutrino and serve the
fee-bump operations over HTTP and the local command socket until killed.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(args[0], args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runServe(walletName, password string) error {
	creds, err := walletnode.LoadCredentials(walletName, password)
	if err != nil {
		return err
	}

	node, err := walletnode.OpenNode(walletName, creds)
	if err != nil {
		return err
	}
	defer node.Close()

	electrumClient, err := policy.NewElectrumClient()
	if err != nil {
		logger.Warn("Electrum connection failed, continuing without it:", err)
		electrumClient = nil
	}

	backend := walletnode.NewBackend(node.Wallet, node.ChainService,
		electrumClient)

	if err := api.EnsureJWTKey(walletName); err != nil {
		return fmt.Errorf("failed to initialize JWT key: %v", err)
	}

	server := api.NewAPI(node, backend)

	ipcServer, err := ipc.NewServer()
	if err != nil {
		return fmt.Errorf("failed to start IPC server: %v", err)
	}
	defer ipcServer.Close()
	go serveIPC(ipcServer, server)
	go monitorConfirmations(node)

	logger.Info("Wallet daemon initialized, serving API")
	return server.Serve()
}

// monitorConfirmations periodically scans the chain for confirmations of
// broadcast replacements.
func monitorConfirmations(node *walletnode.Node) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for ; ; <-ticker.C {
		err := rescanner.MonitorReplacements(rescanner.MonitorConfig{
			ChainClient: node.ChainClient,
			Wallet:      node.Wallet,
		})
		if err != nil {
			logger.Warn("Replacement scan failed:", err)
		}
	}
}

// serveIPC dispatches local CLI commands against the same API logic the
// HTTP handlers use.
func serveIPC(ipcServer *ipc.Server, server *api.API) {
	for cmd := range ipcServer.Commands() {
		switch cmd.Command {
		case "bump-fee":
			if len(cmd.Args) < 3 {
				ipcServer.SendResponse(cmd.ID, ipc.Response{
					ID: cmd.ID, Error: "bump-fee requires txid, fee rate and mode",
				})
				continue
			}
			feeRate, err := strconv.ParseInt(cmd.Args[1], 10, 64)
			if err != nil {
				ipcServer.SendResponse(cmd.ID, ipc.Response{
					ID: cmd.ID, Error: fmt.Sprintf("invalid fee rate: %v", err),
				})
				continue
			}
			resp, _ := server.PerformBumpFee(api.BumpFeeRequest{
				TxID:    cmd.Args[0],
				FeeRate: feeRate,
				Mode:    cmd.Args[2],
			})
			ipcServer.SendResponse(cmd.ID, ipc.Response{ID: cmd.ID, Result: resp})

		case "can-bump":
			resp, err := canBumpOverIPC(server, cmd.Args)
			if err != nil {
				ipcServer.SendResponse(cmd.ID, ipc.Response{
					ID: cmd.ID, Error: err.Error(),
				})
				continue
			}
			ipcServer.SendResponse(cmd.ID, ipc.Response{ID: cmd.ID, Result: resp})

		case "replacements":
			resp, err := replacementsOverIPC(cmd.Args)
			if err != nil {
				ipcServer.SendResponse(cmd.ID, ipc.Response{
					ID: cmd.ID, Error: err.Error(),
				})
				continue
			}
			ipcServer.SendResponse(cmd.ID, ipc.Response{ID: cmd.ID, Result: resp})

		default:
			ipcServer.SendResponse(cmd.ID, ipc.Response{
				ID: cmd.ID, Error: fmt.Sprintf("unknown command %q", cmd.Command),
			})
		}
	}
}

func canBumpOverIPC(server *api.API, args []string) (api.CanBumpResponse, error) {
	if len(args) < 1 {
		return api.CanBumpResponse{}, fmt.Errorf("can-bump requires a txid")
	}
	txid, err := chainhash.NewHashFromStr(args[0])
	if err != nil {
		return api.CanBumpResponse{}, fmt.Errorf("invalid txid: %v", err)
	}
	return server.CanBump(*txid), nil
}

func replacementsOverIPC(args []string) (api.ReplacementChainResponse, error) {
	if len(args) < 1 {
		return api.ReplacementChainResponse{}, fmt.Errorf("replacements requires a txid")
	}
	txid, err := chainhash.NewHashFromStr(args[0])
	if err != nil {
		return api.ReplacementChainResponse{}, fmt.Errorf("invalid txid: %v", err)
	}
	chain, err := walletstatedb.GetReplacementChain(txid.String())
	if err != nil {
		return api.ReplacementChainResponse{}, err
	}
	return api.ReplacementChainResponse{TxID: txid.String(), Chain: chain}, nil
}
