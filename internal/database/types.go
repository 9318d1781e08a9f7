package walletstatedb

import "time"

// Transaction statuses as recorded in the bump index.
const (
	TxStatusBuilt     = "built"
	TxStatusBroadcast = "broadcast"
	TxStatusReplaced  = "replaced"
	TxStatusConfirmed = "confirmed"
)

// BumpRecord is one entry in the replacement lineage index. Each wallet
// transaction that participates in a fee bump gets a record: the original
// points forward through ReplacedByTxid, the replacement points back through
// ReplacesTxid.
type BumpRecord struct {
	TxHash         string    `json:"tx_hash"`
	ReplacesTxid   string    `json:"replaces_txid,omitempty"`
	ReplacedByTxid string    `json:"replaced_by_txid,omitempty"`
	Fee            int64     `json:"fee"`
	FeeRate        int64     `json:"fee_rate"` // sat/kvB
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}
