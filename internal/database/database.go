package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

// Models

// Balance is one tracked position: what is held, the allocation target, and
// the band around it that triggers buy/sell alerts.
type Balance struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	Symbol          string `gorm:"uniqueIndex"`
	AltSymbol       string // ticker the market data provider knows this asset by
	Name            string
	Exclude         bool             // cash and anything not quoted/rebalanced
	Amount          *decimal.Decimal `gorm:"type:decimal(30,12)"`
	BalanceTarget   decimal.Decimal  `gorm:"type:decimal(20,2)"`
	BuyTargetRatio  decimal.Decimal  `gorm:"type:decimal(10,4)"`
	SellTargetRatio decimal.Decimal  `gorm:"type:decimal(10,4)"`
	NotifiedAt      decimal.Decimal  `gorm:"type:decimal(20,2)"` // value at which the last alert fired
	// BuyAlertMuted keeps an unaffordable buy from alerting every pass. It
	// survives snapshot reloads and restarts; cleared when cash recovers or
	// the asset re-enters its band.
	BuyAlertMuted bool
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Price is not persisted; it comes from the latest quote pass.
	Price decimal.Decimal `gorm:"-"`
}

// Transaction is one ledger row. A TRANSFER in an export file produces two of
// these (negative origin, positive destination) sharing an ExternalID.
type Transaction struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	ExternalID       string `gorm:"uniqueIndex:idx_transactions_external_currency"`
	CryptoCurrencyID uint   `gorm:"uniqueIndex:idx_transactions_external_currency"`
	Amount           decimal.Decimal `gorm:"type:decimal(30,12)"` // signed; positive = acquired
	Origin           string
	Destination      string
	Status           string
	Type             string // TRANSFER, IN, OUT
	TransactionDate  time.Time
	CreatedAt        time.Time

	CryptoCurrency CryptoCurrency
}

// CryptoCurrency is the master record for a tracked asset
type CryptoCurrency struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	Symbol          string `gorm:"uniqueIndex"`
	AltSymbol       string
	Name            string
	Slug            string
	ExternalID      int64 // market data provider's id
	AddedToExchange *time.Time
	Exclude         bool
	CreatedAt       time.Time
}

func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	// Check if this is a PostgreSQL connection string
	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		// SQLite fallback
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Balance{}, &CryptoCurrency{}, &Transaction{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Balance operations

// ListBalances returns every balance row. Price is not persisted, so each
// row starts a pass at 1 (correct for cash, overwritten by quotes for the
// rest).
func (d *Database) ListBalances() ([]*Balance, error) {
	var balances []*Balance
	if err := d.db.Order("symbol").Find(&balances).Error; err != nil {
		return nil, err
	}
	for _, b := range balances {
		b.Price = decimal.NewFromInt(1)
	}
	return balances, nil
}

func (d *Database) CreateBalance(balance *Balance) error {
	return d.db.Create(balance).Error
}

// SaveBalances persists the given rows in a single transaction so a pass is
// either fully recorded or not at all.
func (d *Database) SaveBalances(balances []*Balance) error {
	if len(balances) == 0 {
		return nil
	}
	return d.db.Transaction(func(tx *gorm.DB) error {
		for _, b := range balances {
			if err := tx.Save(b).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Transaction operations

func (d *Database) ListTransactions() ([]Transaction, error) {
	var txs []Transaction
	err := d.db.Order("transaction_date").Find(&txs).Error
	return txs, err
}

// ListTransactionIDs returns the distinct external ids already ingested
func (d *Database) ListTransactionIDs() ([]string, error) {
	var ids []string
	err := d.db.Model(&Transaction{}).Distinct("external_id").Pluck("external_id", &ids).Error
	return ids, err
}

// InsertTransactions writes a ledger batch all-or-nothing. The composite
// unique index on (external_id, crypto_currency_id) rejects the whole batch
// if any row was already ingested.
func (d *Database) InsertTransactions(txs []Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&txs).Error
	})
}

// ApplyImport writes an import's ledger rows and the balance rows they
// adjust in one transaction, so an import is never half applied. Balances
// with a zero id are created.
func (d *Database) ApplyImport(txs []Transaction, balances []*Balance) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if len(txs) > 0 {
			if err := tx.Create(&txs).Error; err != nil {
				return err
			}
		}
		for _, b := range balances {
			if err := tx.Save(b).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Currency operations

func (d *Database) ListCurrencies() ([]CryptoCurrency, error) {
	var currencies []CryptoCurrency
	err := d.db.Order("symbol").Find(&currencies).Error
	return currencies, err
}

func (d *Database) InsertCurrencies(currencies []CryptoCurrency) error {
	if len(currencies) == 0 {
		return nil
	}
	return d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&currencies).Error
	})
}
