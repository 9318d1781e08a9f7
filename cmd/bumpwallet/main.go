package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/cypherstack/bumpwallet/internal/config"
	"github.com/cypherstack/bumpwallet/internal/ipc"
	"github.com/cypherstack/bumpwallet/internal/logger"
	"github.com/cypherstack/bumpwallet/lib/policy"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "bumpwallet",
	Short: "Bitcoin fee-bump wallet daemon",
	Long: `A wallet daemon that builds, signs and broadcasts BIP 125
replacement transactions for unconfirmed payments, serving both an HTTP
API and a local CLI.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bumpFeeCmd)
	rootCmd.AddCommand(canBumpCmd)
	rootCmd.AddCommand(replacementsCmd)
	rootCmd.AddCommand(feesCmd)
	rootCmd.AddCommand(migrateDBCmd)
}

func initConfig() {
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Error reading viper config: %s", err.Error())
	}

	if err := logger.Init(viper.GetString("log_file")); err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runIPCCommand(command string, args []string) {
	client, err := ipc.NewClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to wallet daemon (is it running?): %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	result, err := client.SendCommand(command, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	json.NewEncoder(os.Stdout).Encode(result)
}

var bumpFeeCmd = &cobra.Command{
	Use:   "bumpfee [txid] [fee-rate]",
	Short: "Replace an unconfirmed transaction with a higher-fee version",
	Long: `Build, sign and broadcast a replacement for the given transaction.
The fee rate is in sat/vB; pass 0 to let the wallet estimate one.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		feeRate := "0"
		if len(args) > 1 {
			if _, err := strconv.ParseInt(args[1], 10, 64); err != nil {
				fmt.Fprintf(os.Stderr, "Invalid fee rate: %v\n", err)
				os.Exit(1)
			}
			feeRate = args[1]
		}
		mode, _ := cmd.Flags().GetString("mode")
		runIPCCommand("bump-fee", []string{args[0], feeRate, mode})
	},
}

var canBumpCmd = &cobra.Command{
	Use:   "canbump [txid]",
	Short: "Check whether a transaction can be fee-bumped",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runIPCCommand("can-bump", args)
	},
}

var replacementsCmd = &cobra.Command{
	Use:   "replacements [txid]",
	Short: "Show the recorded replacement chain of a transaction",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runIPCCommand("replacements", args)
	},
}

var feesCmd = &cobra.Command{
	Use:   "fees",
	Short: "Show the oracle's current fee recommendations",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		feeRec, err := policy.GetFeeRecommendation()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching fee recommendation: %v\n", err)
			os.Exit(1)
		}
		json.NewEncoder(os.Stdout).Encode(feeRec)
	},
}

func init() {
	bumpFeeCmd.Flags().String("mode", "rate", `Bump mode: "rate" reruns coin selection, "total" debits the change output`)
}
