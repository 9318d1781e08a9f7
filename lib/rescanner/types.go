package rescanner

import (
	"github.com/btcsuite/btcwallet/chain"
	"github.com/btcsuite/btcwallet/wallet"
)

type MonitorConfig struct {
	ChainClient *chain.NeutrinoClient
	StartBlock  int32
	Wallet      *wallet.Wallet
}
