// Package sheets mirrors the imported ledger into a Google spreadsheet: one
// running cash sheet plus, per asset, a transaction range and separate
// buy/sell ledgers. Formulas are written USER_ENTERED so the sheet computes
// running balances and implied prices itself.
package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/mdriscoll/cryptowatch/internal/database"
	"github.com/mdriscoll/cryptowatch/internal/export"
)

// Store provides the balances that decide which asset sheets exist
type Store interface {
	ListBalances() ([]*database.Balance, error)
}

// Mirror writes imported transactions to the configured spreadsheet
type Mirror struct {
	svc           *sheets.Service
	spreadsheetID string
	cashSymbol    string
	store         Store
	mu            sync.Mutex // one sync at a time
}

func New(ctx context.Context, credentialsFile, spreadsheetID, cashSymbol string, store Store) (*Mirror, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets service: %w", err)
	}
	return &Mirror{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		cashSymbol:    strings.ToUpper(cashSymbol),
		store:         store,
	}, nil
}

// Sync mirrors the file's transactions. Callers treat failure as
// non-fatal; the ledger is already persisted by the time this runs.
func (m *Mirror) Sync(ctx context.Context, transactions []export.FileTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := make([]export.FileTransaction, len(transactions))
	copy(ordered, transactions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	// cash has different processing requirements than the others
	if err := m.syncCash(ctx, ordered); err != nil {
		return err
	}
	if err := m.syncAssets(ctx, ordered); err != nil {
		return err
	}
	log.Info().Msg("finished updating spreadsheet")
	return nil
}

func (m *Mirror) isCash(symbol string) bool {
	return strings.EqualFold(symbol, m.cashSymbol)
}

// syncCash writes the cash ledger: date, signed amount, running-balance
// formula, label.
func (m *Mirror) syncCash(ctx context.Context, transactions []export.FileTransaction) error {
	var values [][]interface{}
	row := 1
	for _, tx := range transactions {
		formula := fmt.Sprintf("=B%d+C%d", row, row-1)
		if row == 1 {
			formula = "=B1"
		}
		date := tx.Date.Format("1/2/2006")

		switch strings.ToUpper(tx.Type) {
		case export.TypeTransfer:
			if m.isCash(tx.OriginCurrency) {
				// selling cash, buying whatever
				values = append(values, []interface{}{date, tx.OriginAmount.Neg().StringFixed(2), formula, "Buy " + tx.DestinationCurrency})
			} else if m.isCash(tx.DestinationCurrency) {
				// raising cash, selling whatever
				values = append(values, []interface{}{date, tx.DestinationAmount.StringFixed(2), formula, "Sell " + tx.OriginCurrency})
			} else {
				continue
			}
			row++
		case export.TypeIn:
			// transfers carry the same currency on both sides
			if !m.isCash(tx.OriginCurrency) {
				continue
			}
			values = append(values, []interface{}{date, tx.DestinationAmount.StringFixed(2), formula, "In " + tx.OriginCurrency})
			row++
		case export.TypeOut:
			if !m.isCash(tx.OriginCurrency) {
				continue
			}
			values = append(values, []interface{}{date, tx.DestinationAmount.Neg().StringFixed(2), formula, "Out " + tx.OriginCurrency})
			row++
		}
	}
	if len(values) == 0 {
		return nil
	}

	log.Info().Int("rows", len(values)).Msg("writing cash transactions")
	return m.update(ctx, fmt.Sprintf("%s!A1:D", m.cashSymbol), values)
}

// syncAssets writes, per tracked asset, the full transaction range with a
// running share column plus the separate buy and sell ledgers.
func (m *Mirror) syncAssets(ctx context.Context, transactions []export.FileTransaction) error {
	balances, err := m.store.ListBalances()
	if err != nil {
		return fmt.Errorf("failed to load balances: %w", err)
	}

	for _, asset := range balances {
		if asset.Exclude {
			continue
		}
		var selected []export.FileTransaction
		for _, tx := range transactions {
			if strings.EqualFold(tx.OriginCurrency, asset.Symbol) || strings.EqualFold(tx.DestinationCurrency, asset.Symbol) {
				selected = append(selected, tx)
			}
		}
		log.Info().Str("symbol", asset.Symbol).Int("count", len(selected)).Msg("processing transactions for asset")
		if err := m.syncAsset(ctx, asset.Symbol, selected); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) syncAsset(ctx context.Context, symbol string, transactions []export.FileTransaction) error {
	var balanceValues, buyValues, sellValues [][]interface{}
	balanceCount, buyCount, sellCount := 1, 1, 1

	for _, tx := range transactions {
		date := tx.Date.Format("1/2/2006")
		// header row, so things start on line 2
		balancePrice := fmt.Sprintf("=C%d/D%d", balanceCount+1, balanceCount+1)
		balanceShares := fmt.Sprintf("=D%d+E%d", balanceCount+1, balanceCount)
		if balanceCount == 1 {
			balanceShares = "=D2"
		}
		buyPrice := fmt.Sprintf("=I%d/J%d", buyCount+1, buyCount+1)
		sellPrice := fmt.Sprintf("=N%d/O%d", sellCount+1, sellCount+1)

		switch strings.ToUpper(tx.Type) {
		case export.TypeTransfer:
			if m.isCash(tx.OriginCurrency) {
				// selling cash, buying this asset
				balanceValues = append(balanceValues, []interface{}{date, balancePrice, "=" + tx.OriginAmount.StringFixed(2), tx.DestinationAmount.String(), balanceShares})
				buyValues = append(buyValues, []interface{}{date, buyPrice, "=" + tx.OriginAmount.StringFixed(2), tx.DestinationAmount.String()})
				balanceCount++
				buyCount++
			} else if m.isCash(tx.DestinationCurrency) {
				// raising cash, selling this asset
				balanceValues = append(balanceValues, []interface{}{date, balancePrice, "=" + tx.DestinationAmount.Neg().StringFixed(2), tx.OriginAmount.Neg().String(), balanceShares})
				sellValues = append(sellValues, []interface{}{date, sellPrice, "=" + tx.DestinationAmount.Neg().StringFixed(2), tx.OriginAmount.Neg().String()})
				balanceCount++
				sellCount++
			} else if strings.EqualFold(tx.OriginCurrency, symbol) {
				// crypto-to-crypto out of this asset; no cash price to derive
				balanceValues = append(balanceValues, []interface{}{date, "", "", tx.OriginAmount.Neg().String(), balanceShares})
				balanceCount++
			} else {
				balanceValues = append(balanceValues, []interface{}{date, "", "", tx.DestinationAmount.String(), balanceShares})
				balanceCount++
			}
		case export.TypeIn:
			balanceValues = append(balanceValues, []interface{}{date, "", "", tx.DestinationAmount.String(), balanceShares})
			balanceCount++
		case export.TypeOut:
			balanceValues = append(balanceValues, []interface{}{date, "", "", tx.OriginAmount.Neg().String(), balanceShares})
			balanceCount++
		}
	}

	if len(balanceValues) > 0 {
		log.Info().Str("symbol", symbol).Int("rows", len(balanceValues)).Msg("writing transactions")
		if err := m.update(ctx, fmt.Sprintf("%s!A2:E", symbol), balanceValues); err != nil {
			return err
		}
	}
	if len(buyValues) > 0 {
		log.Info().Str("symbol", symbol).Int("rows", len(buyValues)).Msg("writing buy transactions")
		if err := m.update(ctx, fmt.Sprintf("%s!G2:J", symbol), buyValues); err != nil {
			return err
		}
	}
	if len(sellValues) > 0 {
		log.Info().Str("symbol", symbol).Int("rows", len(sellValues)).Msg("writing sell transactions")
		if err := m.update(ctx, fmt.Sprintf("%s!L2:O", symbol), sellValues); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) update(ctx context.Context, rangeA1 string, values [][]interface{}) error {
	valueRange := &sheets.ValueRange{Values: values}
	_, err := m.svc.Spreadsheets.Values.
		Update(m.spreadsheetID, rangeA1, valueRange).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update range %s: %w", rangeA1, err)
	}
	return nil
}
