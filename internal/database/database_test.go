package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func seedCurrencies(t *testing.T, db *Database) (usd, btc CryptoCurrency) {
	t.Helper()
	currencies := []CryptoCurrency{
		{Symbol: "USD", AltSymbol: "USD", Name: "US Dollar", Exclude: true},
		{Symbol: "BTC", AltSymbol: "BTC", Name: "Bitcoin"},
	}
	require.NoError(t, db.InsertCurrencies(currencies))
	stored, err := db.ListCurrencies()
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, c := range stored {
		switch c.Symbol {
		case "USD":
			usd = c
		case "BTC":
			btc = c
		}
	}
	return usd, btc
}

func TestListBalancesDefaultsPriceToOne(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateBalance(&Balance{Symbol: "USD", Exclude: true}))

	balances, err := db.ListBalances()
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, dec("1").Equal(balances[0].Price))
}

func TestTransferRowsShareExternalID(t *testing.T) {
	db := newTestDB(t)
	usd, btc := seedCurrencies(t, db)

	now := time.Now()
	rows := []Transaction{
		{ExternalID: "tx-1", CryptoCurrencyID: btc.ID, Amount: dec("0.5"), Type: "TRANSFER", TransactionDate: now},
		{ExternalID: "tx-1", CryptoCurrencyID: usd.ID, Amount: dec("-10"), Type: "TRANSFER", TransactionDate: now},
	}
	// same external id on two different currencies is the normal TRANSFER shape
	require.NoError(t, db.InsertTransactions(rows))

	stored, err := db.ListTransactions()
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestDuplicateIngestionRejectedByIndex(t *testing.T) {
	db := newTestDB(t)
	_, btc := seedCurrencies(t, db)

	row := Transaction{ExternalID: "tx-1", CryptoCurrencyID: btc.ID, Amount: dec("0.5"), Type: "IN", TransactionDate: time.Now()}
	require.NoError(t, db.InsertTransactions([]Transaction{row}))

	// the composite unique index is the second line of defense
	err := db.InsertTransactions([]Transaction{row})
	require.Error(t, err)

	stored, err := db.ListTransactions()
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestInsertTransactionsAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	usd, btc := seedCurrencies(t, db)

	now := time.Now()
	first := Transaction{ExternalID: "tx-1", CryptoCurrencyID: btc.ID, Amount: dec("0.5"), Type: "IN", TransactionDate: now}
	require.NoError(t, db.InsertTransactions([]Transaction{first}))

	// batch containing one duplicate must leave nothing behind
	batch := []Transaction{
		{ExternalID: "tx-2", CryptoCurrencyID: usd.ID, Amount: dec("100"), Type: "IN", TransactionDate: now},
		first,
	}
	require.Error(t, db.InsertTransactions(batch))

	stored, err := db.ListTransactions()
	require.NoError(t, err)
	assert.Len(t, stored, 1, "the valid row must have been rolled back with the batch")
}

func TestListTransactionIDsDistinct(t *testing.T) {
	db := newTestDB(t)
	usd, btc := seedCurrencies(t, db)

	now := time.Now()
	require.NoError(t, db.InsertTransactions([]Transaction{
		{ExternalID: "tx-1", CryptoCurrencyID: btc.ID, Amount: dec("0.5"), Type: "TRANSFER", TransactionDate: now},
		{ExternalID: "tx-1", CryptoCurrencyID: usd.ID, Amount: dec("-10"), Type: "TRANSFER", TransactionDate: now},
		{ExternalID: "tx-2", CryptoCurrencyID: btc.ID, Amount: dec("0.1"), Type: "IN", TransactionDate: now},
	}))

	ids, err := db.ListTransactionIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tx-1", "tx-2"}, ids)
}

func TestApplyImportWritesRowsAndBalancesTogether(t *testing.T) {
	db := newTestDB(t)
	_, btc := seedCurrencies(t, db)
	require.NoError(t, db.CreateBalance(&Balance{Symbol: "USD", Exclude: true, Amount: amount("1000")}))

	balances, err := db.ListBalances()
	require.NoError(t, err)
	cash := balances[0]
	cash.AdjustAmount(dec("-10"))
	fresh := &Balance{Symbol: "BTC", AltSymbol: "BTC", Name: "Bitcoin", Exclude: true, Amount: amount("0.5")}

	rows := []Transaction{
		{ExternalID: "tx-1", CryptoCurrencyID: btc.ID, Amount: dec("0.5"), Type: "TRANSFER", TransactionDate: time.Now()},
	}
	require.NoError(t, db.ApplyImport(rows, []*Balance{cash, fresh}))

	balances, err = db.ListBalances()
	require.NoError(t, err)
	require.Len(t, balances, 2)

	bySymbol := map[string]*Balance{}
	for _, b := range balances {
		bySymbol[b.Symbol] = b
	}
	assert.True(t, dec("990").Equal(*bySymbol["USD"].Amount))
	assert.True(t, dec("0.5").Equal(*bySymbol["BTC"].Amount))
}

func TestSaveBalancesPersistsWatermark(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateBalance(&Balance{
		Symbol:        "BTC",
		BalanceTarget: dec("1000"),
	}))

	balances, err := db.ListBalances()
	require.NoError(t, err)
	b := balances[0]
	b.NotifiedAt = dec("880")
	b.BuyAlertMuted = true
	b.AdjustAmount(dec("1.2"))
	require.NoError(t, db.SaveBalances([]*Balance{b}))

	reloaded, err := db.ListBalances()
	require.NoError(t, err)
	assert.True(t, dec("880").Equal(reloaded[0].NotifiedAt))
	assert.True(t, dec("1.2").Equal(*reloaded[0].Amount))
	assert.True(t, reloaded[0].BuyAlertMuted)
}
