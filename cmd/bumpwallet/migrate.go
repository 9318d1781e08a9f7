package main

import (
	"fmt"
	"os"

	walletstatedb "github.com/cypherstack/bumpwallet/internal/database"
	"github.com/spf13/cobra"
)

var migrateDBCmd = &cobra.Command{
	Use:   "migrate-db [graviton-db-path] [sqlite-db-path]",
	Short: "Migrate the transaction store from Graviton to SQLite",
	Long: `Copy the raw transactions and replacement records from a Graviton
store into a fresh SQLite database. The source store is not modified; point
db_backend at "sqlite" once the copy is verified.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := walletstatedb.MigrateFromGravitonToSQLite(args[0], args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migration complete.")
	},
}
