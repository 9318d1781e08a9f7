package walletstatedb

// DatabaseType represents the type of database backend to use
type DatabaseType string

const (
	// DBTypeGraviton represents the Graviton database backend
	DBTypeGraviton DatabaseType = "graviton"
	// DBTypeSQLite represents the SQLite database backend
	DBTypeSQLite DatabaseType = "sqlite"
)

// DBBackend is the global variable that holds the active database backend
var DBBackend DatabaseType = DBTypeGraviton

// SetDatabaseBackend sets the database backend type
func SetDatabaseBackend(dbType DatabaseType) {
	DBBackend = dbType
}

// InitializeDatabase initializes the database using the specified backend
func InitializeDatabase(dbPath string) error {
	switch DBBackend {
	case DBTypeSQLite:
		return InitSQLiteDB(dbPath)
	default:
		return InitDB(dbPath)
	}
}

// DatabaseInterface defines the interface for database operations.
// This allows us to switch between Graviton and SQLite implementations.
type DatabaseInterface interface {
	// Raw transaction store
	SaveRawTransaction(txHash string, rawTx []byte) error
	GetRawTransaction(txHash string) ([]byte, error)

	// Replacement lineage
	SaveBumpRecord(rec BumpRecord) error
	GetBumpRecord(txHash string) (*BumpRecord, error)
	MarkTransactionReplaced(oldTxid, newTxid string) error
	GetReplacementChain(txHash string) ([]BumpRecord, error)

	// Chain bookkeeping
	SetTransactionHeight(txHash string, height int32) error
	GetTransactionHeight(txHash string) (int32, error)
	SetLastScannedBlockHeight(height int32) error
	GetLastScannedBlockHeight() (int32, error)
}

// The functions below dispatch to the active backend based on DBBackend.

// SaveRawTransaction persists the serialized transaction under its hash.
func SaveRawTransaction(txHash string, rawTx []byte) error {
	switch DBBackend {
	case DBTypeSQLite:
		return SaveRawTransactionToSQLite(txHash, rawTx)
	default:
		return SaveRawTransactionToGraviton(txHash, rawTx)
	}
}

// GetRawTransaction retrieves a serialized transaction by hash.
func GetRawTransaction(txHash string) ([]byte, error) {
	switch DBBackend {
	case DBTypeSQLite:
		return GetRawTransactionFromSQLite(txHash)
	default:
		return GetRawTransactionFromGraviton(txHash)
	}
}

// SaveBumpRecord writes a lineage record, replacing any existing record for
// the same hash.
func SaveBumpRecord(rec BumpRecord) error {
	switch DBBackend {
	case DBTypeSQLite:
		return SaveBumpRecordToSQLite(rec)
	default:
		return SaveBumpRecordToGraviton(rec)
	}
}

// GetBumpRecord returns the lineage record for txHash, or nil if the
// transaction never participated in a bump.
func GetBumpRecord(txHash string) (*BumpRecord, error) {
	switch DBBackend {
	case DBTypeSQLite:
		return GetBumpRecordFromSQLite(txHash)
	default:
		return GetBumpRecordFromGraviton(txHash)
	}
}

// MarkTransactionReplaced links oldTxid forward to newTxid and newTxid back
// to oldTxid, creating records as needed.
func MarkTransactionReplaced(oldTxid, newTxid string) error {
	switch DBBackend {
	case DBTypeSQLite:
		return MarkTransactionReplacedInSQLite(oldTxid, newTxid)
	default:
		return MarkTransactionReplacedInGraviton(oldTxid, newTxid)
	}
}

// GetReplacementChain walks the lineage forward from txHash and returns
// every record on the way, oldest first.
func GetReplacementChain(txHash string) ([]BumpRecord, error) {
	seen := make(map[string]bool)
	var chain []BumpRecord

	for txHash != "" && !seen[txHash] {
		seen[txHash] = true
		rec, err := GetBumpRecord(txHash)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			break
		}
		chain = append(chain, *rec)
		txHash = rec.ReplacedByTxid
	}

	return chain, nil
}

// SetTransactionHeight records the block height a transaction confirmed at.
func SetTransactionHeight(txHash string, height int32) error {
	switch DBBackend {
	case DBTypeSQLite:
		return SetTransactionHeightInSQLite(txHash, height)
	default:
		return SetTransactionHeightInGraviton(txHash, height)
	}
}

// GetTransactionHeight returns the recorded confirmation height, or zero
// for an unconfirmed transaction.
func GetTransactionHeight(txHash string) (int32, error) {
	switch DBBackend {
	case DBTypeSQLite:
		return GetTransactionHeightFromSQLite(txHash)
	default:
		return GetTransactionHeightFromGraviton(txHash)
	}
}

// SetLastScannedBlockHeight records rescan progress.
func SetLastScannedBlockHeight(height int32) error {
	switch DBBackend {
	case DBTypeSQLite:
		return SetLastScannedBlockHeightInSQLite(height)
	default:
		return SetLastScannedBlockHeightInGraviton(height)
	}
}

// GetLastScannedBlockHeight returns the recorded rescan progress.
func GetLastScannedBlockHeight() (int32, error) {
	switch DBBackend {
	case DBTypeSQLite:
		return GetLastScannedBlockHeightFromSQLite()
	default:
		return GetLastScannedBlockHeightFromGraviton()
	}
}
