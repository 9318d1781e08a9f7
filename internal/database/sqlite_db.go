package walletstatedb

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global SQLite database instance
var DB *gorm.DB

// InitSQLiteDB initializes the SQLite database
func InitSQLiteDB(dbPath string) error {
	var err error

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := ensureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory: %v", err)
		}
	}

	// Configure GORM to be less verbose
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	// Open the database
	DB, err = gorm.Open(sqlite.Open(dbPath), config)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}

	// Auto-migrate schemas
	err = DB.AutoMigrate(
		&SQLiteRawTransaction{},
		&SQLiteBumpRecord{},
		&SQLiteMetadata{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %v", err)
	}

	log.Println("SQLite database initialized successfully")
	return nil
}

// ensureDir creates a directory if it doesn't exist
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// SaveRawTransactionToSQLite stores the serialized transaction under its
// hash, overwriting any previous copy.
func SaveRawTransactionToSQLite(txHash string, rawTx []byte) error {
	var existing SQLiteRawTransaction
	result := DB.Where("tx_hash = ?", txHash).First(&existing)
	if result.Error == nil {
		existing.RawTx = rawTx
		return DB.Save(&existing).Error
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}

	return DB.Create(&SQLiteRawTransaction{TxHash: txHash, RawTx: rawTx}).Error
}

// GetRawTransactionFromSQLite fetches a serialized transaction by hash.
func GetRawTransactionFromSQLite(txHash string) ([]byte, error) {
	var record SQLiteRawTransaction
	result := DB.Where("tx_hash = ?", txHash).First(&record)
	if result.Error != nil {
		return nil, fmt.Errorf("transaction %s not found: %v", txHash, result.Error)
	}
	return record.RawTx, nil
}

// SaveBumpRecordToSQLite writes a lineage record, replacing any existing
// record for the same hash.
func SaveBumpRecordToSQLite(rec BumpRecord) error {
	model, err := findOrNewBumpRecord(rec.TxHash)
	if err != nil {
		return err
	}

	model.ReplacesTxid = rec.ReplacesTxid
	model.ReplacedByTxid = rec.ReplacedByTxid
	model.Fee = rec.Fee
	model.FeeRate = rec.FeeRate
	model.Status = rec.Status
	model.RecordedAt = rec.CreatedAt

	return DB.Save(model).Error
}

// GetBumpRecordFromSQLite returns the lineage record for txHash, or nil
// when none exists.
func GetBumpRecordFromSQLite(txHash string) (*BumpRecord, error) {
	var model SQLiteBumpRecord
	result := DB.Where("tx_hash = ?", txHash).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &BumpRecord{
		TxHash:         model.TxHash,
		ReplacesTxid:   model.ReplacesTxid,
		ReplacedByTxid: model.ReplacedByTxid,
		Fee:            model.Fee,
		FeeRate:        model.FeeRate,
		Status:         model.Status,
		CreatedAt:      model.RecordedAt,
	}, nil
}

// MarkTransactionReplacedInSQLite links the two lineage records inside one
// transaction.
func MarkTransactionReplacedInSQLite(oldTxid, newTxid string) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		oldRec, err := findOrNewBumpRecordTx(tx, oldTxid)
		if err != nil {
			return err
		}
		oldRec.ReplacedByTxid = newTxid
		oldRec.Status = TxStatusReplaced
		if err := tx.Save(oldRec).Error; err != nil {
			return err
		}

		newRec, err := findOrNewBumpRecordTx(tx, newTxid)
		if err != nil {
			return err
		}
		newRec.ReplacesTxid = oldTxid
		return tx.Save(newRec).Error
	})
}

func findOrNewBumpRecord(txHash string) (*SQLiteBumpRecord, error) {
	return findOrNewBumpRecordTx(DB, txHash)
}

func findOrNewBumpRecordTx(tx *gorm.DB, txHash string) (*SQLiteBumpRecord, error) {
	var model SQLiteBumpRecord
	result := tx.Where("tx_hash = ?", txHash).First(&model)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, result.Error
		}
		model = SQLiteBumpRecord{TxHash: txHash, RecordedAt: time.Now()}
	}
	return &model, nil
}

// SetTransactionHeightInSQLite records the confirmation height of a
// transaction.
func SetTransactionHeightInSQLite(txHash string, height int32) error {
	return setMetadata("tx_height_"+txHash, strconv.Itoa(int(height)))
}

// GetTransactionHeightFromSQLite returns the recorded height, or zero when
// the transaction has no record.
func GetTransactionHeightFromSQLite(txHash string) (int32, error) {
	return getMetadataHeight("tx_height_" + txHash)
}

// SetLastScannedBlockHeightInSQLite records rescan progress.
func SetLastScannedBlockHeightInSQLite(height int32) error {
	return setMetadata(LastScannedBlockKey, strconv.Itoa(int(height)))
}

// GetLastScannedBlockHeightFromSQLite returns the recorded rescan progress.
func GetLastScannedBlockHeightFromSQLite() (int32, error) {
	return getMetadataHeight(LastScannedBlockKey)
}

func setMetadata(key, value string) error {
	var record SQLiteMetadata
	result := DB.Where("key = ?", key).First(&record)
	if result.Error == nil {
		record.Value = value
		return DB.Save(&record).Error
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return DB.Create(&SQLiteMetadata{Key: key, Value: value}).Error
}

func getMetadataHeight(key string) (int32, error) {
	var record SQLiteMetadata
	result := DB.Where("key = ?", key).First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, result.Error
	}
	height, err := strconv.Atoi(record.Value)
	if err != nil {
		return 0, fmt.Errorf("corrupt height record %s: %v", key, err)
	}
	return int32(height), nil
}
