package walletstatedb

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/deroproject/graviton"
)

// MigrateFromGravitonToSQLite copies the raw transaction store and the bump
// lineage index from a Graviton store into a fresh SQLite database. The
// Graviton store is left untouched so the migration can be retried.
func MigrateFromGravitonToSQLite(gravitonDBPath, sqliteDBPath string) error {
	store, err := graviton.NewDiskStore(gravitonDBPath)
	if err != nil {
		return fmt.Errorf("failed to open graviton store: %w", err)
	}

	if err := InitSQLiteDB(sqliteDBPath); err != nil {
		return fmt.Errorf("failed to initialize sqlite database: %w", err)
	}

	ss, err := store.LoadSnapshot(0)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	migrated := 0
	if tree, err := ss.GetTree(RawTransactionsTree); err == nil {
		cursor := tree.Cursor()
		for k, v, err := cursor.First(); err == nil; k, v, err = cursor.Next() {
			if err := SaveRawTransactionToSQLite(string(k), v); err != nil {
				return fmt.Errorf("failed to migrate transaction %s: %w",
					string(k), err)
			}
			migrated++
		}
	}

	if tree, err := ss.GetTree(BumpRecordsTree); err == nil {
		cursor := tree.Cursor()
		for k, v, err := cursor.First(); err == nil; k, v, err = cursor.Next() {
			var rec BumpRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt bump record %s: %w", string(k), err)
			}
			if err := SaveBumpRecordToSQLite(rec); err != nil {
				return fmt.Errorf("failed to migrate bump record %s: %w",
					string(k), err)
			}
			migrated++
		}
	}

	log.Printf("Migrated %d records from %s to %s", migrated,
		gravitonDBPath, sqliteDBPath)
	return nil
}
