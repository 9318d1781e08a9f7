package walletstatedb

import (
	"time"

	"gorm.io/gorm"
)

// SQLiteRawTransaction stores raw transaction data by hash
type SQLiteRawTransaction struct {
	gorm.Model
	TxHash string `gorm:"uniqueIndex"`
	RawTx  []byte
}

// SQLiteBumpRecord is one entry in the replacement lineage index
type SQLiteBumpRecord struct {
	gorm.Model
	TxHash         string    `gorm:"uniqueIndex"`
	ReplacesTxid   string    `gorm:"index"`
	ReplacedByTxid string    `gorm:"index"`
	Fee            int64
	FeeRate        int64 // sat/kvB
	Status         string `gorm:"index"` // built, broadcast, replaced
	RecordedAt     time.Time
}

// SQLiteMetadata stores miscellaneous metadata about the wallet
type SQLiteMetadata struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex"`
	Value string
}
