package watcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mdriscoll/cryptowatch/internal/cmc"
	"github.com/mdriscoll/cryptowatch/internal/database"
	"github.com/mdriscoll/cryptowatch/internal/export"
)

// Store is the persistence the importer needs
type Store interface {
	ListTransactionIDs() ([]string, error)
	ListCurrencies() ([]database.CryptoCurrency, error)
	InsertCurrencies(currencies []database.CryptoCurrency) error
	ListBalances() ([]*database.Balance, error)
	ApplyImport(txs []database.Transaction, balances []*database.Balance) error
}

// QuoteService resolves unknown symbols via the market data provider
type QuoteService interface {
	GetLatestQuotes(ctx context.Context, symbols []string) (map[string]cmc.Quote, error)
}

// Notifier delivers operator alerts, best-effort
type Notifier interface {
	Send(ctx context.Context, message, title string)
}

// Importer turns one changed export file into ledger rows: parse, drop rows
// already ingested, resolve unknown currencies, expand TRANSFER/IN/OUT into
// signed ledger entries, and persist everything in one batch.
type Importer struct {
	store    Store
	quotes   QuoteService
	notifier Notifier
}

func NewImporter(store Store, quotes QuoteService, notifier Notifier) *Importer {
	return &Importer{store: store, quotes: quotes, notifier: notifier}
}

// ProcessFile imports path. It returns the parsed file records (for the
// spreadsheet mirror) and how many ledger rows were written. Any error means
// nothing was written; the file stays un-ingested for the next attempt.
func (imp *Importer) ProcessFile(ctx context.Context, path string) ([]export.FileTransaction, int, error) {
	fileTxs, err := export.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	newTxs, err := imp.dropKnown(fileTxs)
	if err != nil {
		return nil, 0, err
	}
	imp.notifier.Send(ctx,
		fmt.Sprintf("%s modified: %d transactions, %d new", path, len(fileTxs), len(newTxs)),
		"Transactions imported")
	if len(newTxs) == 0 {
		return fileTxs, 0, nil
	}

	currencies, err := imp.resolveCurrencies(ctx, newTxs)
	if err != nil {
		imp.notifier.Send(ctx, fmt.Sprintf("failed to load assets: %v", err), "Import failed")
		return nil, 0, fmt.Errorf("failed to load assets: %w", err)
	}

	rows, err := expand(newTxs, currencies)
	if err != nil {
		imp.notifier.Send(ctx, err.Error(), "Import failed")
		return nil, 0, err
	}

	balances, err := imp.replayBalances(rows, currencies)
	if err != nil {
		return nil, 0, err
	}

	if err := imp.store.ApplyImport(rows, balances); err != nil {
		imp.notifier.Send(ctx, fmt.Sprintf("failed to save transactions: %v", err), "Import failed")
		return nil, 0, fmt.Errorf("failed to save transactions: %w", err)
	}
	log.Info().Int("count", len(rows)).Msg("transactions saved to database")

	return fileTxs, len(rows), nil
}

// dropKnown filters out records whose external id is already in the ledger
func (imp *Importer) dropKnown(fileTxs []export.FileTransaction) ([]export.FileTransaction, error) {
	ids, err := imp.store.ListTransactionIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to list known transactions: %w", err)
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[strings.ToUpper(id)] = struct{}{}
	}

	var fresh []export.FileTransaction
	for _, tx := range fileTxs {
		if _, ok := known[strings.ToUpper(tx.ID)]; !ok {
			fresh = append(fresh, tx)
		}
	}
	return fresh, nil
}

// resolveCurrencies returns the currency master records for every symbol the
// new transactions reference, creating any unseen ones from a single batched
// quote request. The returned map is keyed by upper-cased symbol.
func (imp *Importer) resolveCurrencies(ctx context.Context, newTxs []export.FileTransaction) (map[string]database.CryptoCurrency, error) {
	stored, err := imp.store.ListCurrencies()
	if err != nil {
		return nil, err
	}
	currencies := make(map[string]database.CryptoCurrency, len(stored))
	for _, c := range stored {
		currencies[strings.ToUpper(c.Symbol)] = c
	}

	var unseen []string
	seen := map[string]struct{}{}
	for _, tx := range newTxs {
		for _, symbol := range []string{tx.OriginCurrency, tx.DestinationCurrency} {
			if symbol == "" {
				continue
			}
			upper := strings.ToUpper(symbol)
			if _, ok := currencies[upper]; ok {
				continue
			}
			if _, ok := seen[upper]; ok {
				continue
			}
			seen[upper] = struct{}{}
			unseen = append(unseen, upper)
		}
	}
	if len(unseen) == 0 {
		return currencies, nil
	}

	log.Info().Strs("symbols", unseen).Msg("new symbols to retrieve")
	quotes, err := imp.quotes.GetLatestQuotes(ctx, unseen)
	if err != nil {
		return nil, err
	}

	var created []database.CryptoCurrency
	for _, quote := range quotes {
		created = append(created, database.CryptoCurrency{
			Symbol:          quote.Symbol,
			AltSymbol:       quote.Symbol,
			Name:            quote.Name,
			Slug:            quote.Slug,
			ExternalID:      quote.ExternalID,
			AddedToExchange: quote.DateAdded,
		})
	}
	if err := imp.store.InsertCurrencies(created); err != nil {
		return nil, err
	}
	for _, c := range created {
		currencies[strings.ToUpper(c.Symbol)] = c
	}
	return currencies, nil
}

// expand turns file records into ledger rows. A TRANSFER moves value between
// two currencies (negative origin row, positive destination row, same
// external id); an IN or OUT touches only one side.
func expand(newTxs []export.FileTransaction, currencies map[string]database.CryptoCurrency) ([]database.Transaction, error) {
	var rows []database.Transaction

	row := func(tx export.FileTransaction, symbol string, amount decimal.Decimal) (database.Transaction, error) {
		currency, ok := currencies[strings.ToUpper(symbol)]
		if !ok {
			return database.Transaction{}, fmt.Errorf("unresolvable currency %q for transaction %s", symbol, tx.ID)
		}
		return database.Transaction{
			ExternalID:       tx.ID,
			CryptoCurrencyID: currency.ID,
			Amount:           amount,
			Origin:           tx.Origin,
			Destination:      tx.Destination,
			Status:           tx.Status,
			Type:             strings.ToUpper(tx.Type),
			TransactionDate:  tx.Date,
		}, nil
	}

	for _, tx := range newTxs {
		switch strings.ToUpper(tx.Type) {
		case export.TypeTransfer:
			in, err := row(tx, tx.DestinationCurrency, tx.DestinationAmount)
			if err != nil {
				return nil, err
			}
			out, err := row(tx, tx.OriginCurrency, tx.OriginAmount.Neg())
			if err != nil {
				return nil, err
			}
			rows = append(rows, in, out)
		case export.TypeIn:
			in, err := row(tx, tx.DestinationCurrency, tx.DestinationAmount)
			if err != nil {
				return nil, err
			}
			rows = append(rows, in)
		case export.TypeOut:
			out, err := row(tx, tx.OriginCurrency, tx.OriginAmount.Neg())
			if err != nil {
				return nil, err
			}
			rows = append(rows, out)
		default:
			log.Warn().Str("id", tx.ID).Str("type", tx.Type).Msg("unknown transaction type, skipping")
		}
	}
	return rows, nil
}

// replayBalances applies the new ledger rows to the held amounts. A symbol
// with no balance row yet gets one, excluded until the operator assigns it a
// target.
func (imp *Importer) replayBalances(rows []database.Transaction, currencies map[string]database.CryptoCurrency) ([]*database.Balance, error) {
	balances, err := imp.store.ListBalances()
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	bySymbol := make(map[string]*database.Balance, len(balances))
	for _, b := range balances {
		bySymbol[strings.ToUpper(b.Symbol)] = b
	}
	currencyByID := make(map[uint]database.CryptoCurrency, len(currencies))
	for _, c := range currencies {
		currencyByID[c.ID] = c
	}

	touched := map[string]*database.Balance{}
	for _, row := range rows {
		currency := currencyByID[row.CryptoCurrencyID]
		upper := strings.ToUpper(currency.Symbol)
		balance, ok := bySymbol[upper]
		if !ok {
			balance = &database.Balance{
				Symbol:    currency.Symbol,
				AltSymbol: currency.AltSymbol,
				Name:      currency.Name,
				Exclude:   true,
			}
			bySymbol[upper] = balance
		}
		balance.AdjustAmount(row.Amount)
		touched[upper] = balance
	}

	result := make([]*database.Balance, 0, len(touched))
	for _, b := range touched {
		result = append(result, b)
	}
	return result, nil
}
