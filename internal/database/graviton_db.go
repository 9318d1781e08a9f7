package walletstatedb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/deroproject/graviton"
)

const (
	RawTransactionsTree = "raw_transactions"
	BumpRecordsTree     = "bump_records"
	ChainStateTree      = "chain_state"

	LastScannedBlockKey = "last_scanned_block_height"
)

// Store is the process-wide Graviton store, populated by InitDB.
var Store *graviton.Store

// InitDB opens (or creates) the Graviton store at dbPath.
func InitDB(dbPath string) error {
	var err error
	Store, err = graviton.NewDiskStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open graviton store: %w", err)
	}
	return nil
}

func getTree(name string) (*graviton.Tree, error) {
	if Store == nil {
		return nil, fmt.Errorf("graviton store is not initialized")
	}
	ss, err := Store.LoadSnapshot(0)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return ss.GetTree(name)
}

// SaveRawTransactionToGraviton stores the serialized transaction keyed by
// its hash.
func SaveRawTransactionToGraviton(txHash string, rawTx []byte) error {
	tree, err := getTree(RawTransactionsTree)
	if err != nil {
		return err
	}
	if err := tree.Put([]byte(txHash), rawTx); err != nil {
		return fmt.Errorf("failed to store raw transaction: %w", err)
	}
	_, err = graviton.Commit(tree)
	return err
}

// GetRawTransactionFromGraviton fetches a serialized transaction by hash.
func GetRawTransactionFromGraviton(txHash string) ([]byte, error) {
	tree, err := getTree(RawTransactionsTree)
	if err != nil {
		return nil, err
	}
	rawTx, err := tree.Get([]byte(txHash))
	if err != nil {
		return nil, fmt.Errorf("transaction %s not found: %w", txHash, err)
	}
	return rawTx, nil
}

// SaveBumpRecordToGraviton writes a lineage record as JSON.
func SaveBumpRecordToGraviton(rec BumpRecord) error {
	tree, err := getTree(BumpRecordsTree)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode bump record: %w", err)
	}
	if err := tree.Put([]byte(rec.TxHash), encoded); err != nil {
		return fmt.Errorf("failed to store bump record: %w", err)
	}
	_, err = graviton.Commit(tree)
	return err
}

// GetBumpRecordFromGraviton returns the lineage record for txHash, or nil
// when none exists.
func GetBumpRecordFromGraviton(txHash string) (*BumpRecord, error) {
	tree, err := getTree(BumpRecordsTree)
	if err != nil {
		return nil, err
	}
	encoded, err := tree.Get([]byte(txHash))
	if err != nil {
		// Graviton reports missing keys as errors; absence is not a
		// failure here.
		return nil, nil
	}
	var rec BumpRecord
	if err := json.Unmarshal(encoded, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode bump record: %w", err)
	}
	return &rec, nil
}

// MarkTransactionReplacedInGraviton links the two lineage records in one
// commit.
func MarkTransactionReplacedInGraviton(oldTxid, newTxid string) error {
	oldRec, err := GetBumpRecordFromGraviton(oldTxid)
	if err != nil {
		return err
	}
	if oldRec == nil {
		oldRec = &BumpRecord{TxHash: oldTxid, CreatedAt: time.Now()}
	}
	oldRec.ReplacedByTxid = newTxid
	oldRec.Status = TxStatusReplaced

	newRec, err := GetBumpRecordFromGraviton(newTxid)
	if err != nil {
		return err
	}
	if newRec == nil {
		newRec = &BumpRecord{TxHash: newTxid, CreatedAt: time.Now()}
	}
	newRec.ReplacesTxid = oldTxid

	tree, err := getTree(BumpRecordsTree)
	if err != nil {
		return err
	}
	for _, rec := range []*BumpRecord{oldRec, newRec} {
		encoded, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode bump record: %w", err)
		}
		if err := tree.Put([]byte(rec.TxHash), encoded); err != nil {
			return fmt.Errorf("failed to store bump record: %w", err)
		}
	}
	_, err = graviton.Commit(tree)
	return err
}

// SetTransactionHeightInGraviton records the confirmation height of a
// transaction.
func SetTransactionHeightInGraviton(txHash string, height int32) error {
	tree, err := getTree(ChainStateTree)
	if err != nil {
		return err
	}
	key := "tx_height_" + txHash
	if err := tree.Put([]byte(key), []byte(strconv.Itoa(int(height)))); err != nil {
		return fmt.Errorf("failed to store transaction height: %w", err)
	}
	_, err = graviton.Commit(tree)
	return err
}

// GetTransactionHeightFromGraviton returns the recorded height, or zero
// when the transaction has no record.
func GetTransactionHeightFromGraviton(txHash string) (int32, error) {
	tree, err := getTree(ChainStateTree)
	if err != nil {
		return 0, err
	}
	value, err := tree.Get([]byte("tx_height_" + txHash))
	if err != nil {
		return 0, nil
	}
	height, err := strconv.Atoi(string(value))
	if err != nil {
		return 0, fmt.Errorf("corrupt height record for %s: %w", txHash, err)
	}
	return int32(height), nil
}

// SetLastScannedBlockHeightInGraviton records rescan progress.
func SetLastScannedBlockHeightInGraviton(height int32) error {
	tree, err := getTree(ChainStateTree)
	if err != nil {
		return err
	}
	if err := tree.Put([]byte(LastScannedBlockKey),
		[]byte(strconv.Itoa(int(height)))); err != nil {
		return fmt.Errorf("failed to store last scanned height: %w", err)
	}
	_, err = graviton.Commit(tree)
	return err
}

// GetLastScannedBlockHeightFromGraviton returns the recorded rescan
// progress, or zero when no scan has run.
func GetLastScannedBlockHeightFromGraviton() (int32, error) {
	tree, err := getTree(ChainStateTree)
	if err != nil {
		return 0, err
	}
	value, err := tree.Get([]byte(LastScannedBlockKey))
	if err != nil {
		return 0, nil
	}
	height, err := strconv.Atoi(string(value))
	if err != nil {
		return 0, fmt.Errorf("corrupt last scanned height record: %w", err)
	}
	return int32(height), nil
}
