// Package engine runs the rebalancing loop: on each pass it refreshes the
// balance snapshot, fetches quotes, checks every asset against its buy/sell
// band, simulates the resulting trade, and alerts the configured channels.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mdriscoll/cryptowatch/internal/cmc"
	"github.com/mdriscoll/cryptowatch/internal/config"
	"github.com/mdriscoll/cryptowatch/internal/database"
)

// Store is the balance persistence the engine needs
type Store interface {
	ListBalances() ([]*database.Balance, error)
	CreateBalance(balance *database.Balance) error
	SaveBalances(balances []*database.Balance) error
	InsertCurrencies(currencies []database.CryptoCurrency) error
}

// QuoteService fetches latest market quotes for a batch of symbols
type QuoteService interface {
	GetLatestQuotes(ctx context.Context, symbols []string) (map[string]cmc.Quote, error)
}

// Notifier delivers alerts, best-effort
type Notifier interface {
	Send(ctx context.Context, message, title string)
}

// Engine is the rebalancing poll loop
type Engine struct {
	store    Store
	quotes   QuoteService
	notifier Notifier
	coord    *Coordinator

	cashSymbol string
	cashName   string
	cashSlug   string
	cashFloor  decimal.Decimal
	sleep      time.Duration
	dndStart   int
	dndEnd     int

	// cached snapshot; nil means a reload is needed
	assets []*database.Balance

	importBackoff time.Duration
	now           func() time.Time
}

func New(store Store, quotes QuoteService, notifier Notifier, coord *Coordinator, cfg *config.Config) *Engine {
	return &Engine{
		store:         store,
		quotes:        quotes,
		notifier:      notifier,
		coord:         coord,
		cashSymbol:    cfg.CashSymbol,
		cashName:      cfg.CashName,
		cashSlug:      cfg.CashSlug,
		cashFloor:     cfg.CashFloor,
		sleep:         time.Duration(cfg.SleepInterval) * time.Minute,
		dndStart:      cfg.DndStart,
		dndEnd:        cfg.DndEnd,
		importBackoff: 5 * time.Second,
		now:           time.Now,
	}
}

// Run loops until ctx is cancelled. An out-of-band request from the importer
// wakes it early; when that pass actually evaluates, the following scheduled
// tick is skipped so one import does not cause two evaluations.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.sleep)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if e.coord.ConsumeSkip() {
				log.Debug().Msg("already evaluated for this window, skipping scheduled pass")
				continue
			}
			e.tick(ctx)
		case <-e.coord.Wake():
			log.Info().Msg("import finished, running out-of-band rebalance pass")
			if e.tick(ctx) {
				e.coord.SkipNextPass()
			}
		}
	}
}

// tick runs one evaluation attempt and reports whether it completed. Quiet
// hours and failed passes return false so a wake during either does not cost
// the next scheduled pass.
func (e *Engine) tick(ctx context.Context) bool {
	if e.inQuietHours(e.now()) {
		log.Info().Int("start", e.dndStart).Int("end", e.dndEnd).Msg("quiet hours, skipping evaluation")
		return false
	}
	if err := e.pass(ctx); err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("rebalance pass failed")
		}
		return false
	}
	return true
}

// pass is one full evaluation. Any error aborts the pass; the next tick
// retries from the last persisted state.
func (e *Engine) pass(ctx context.Context) error {
	// never read balances mid-import
	for e.coord.Importing() {
		log.Info().Msg("import in flight, sleeping five seconds")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.importBackoff):
		}
	}

	if e.assets == nil || e.coord.Changed() {
		assets, err := e.store.ListBalances()
		if err != nil {
			return fmt.Errorf("failed to load balances: %w", err)
		}
		e.assets = assets
		e.coord.ClearChanged()
	}

	if len(e.assets) == 0 {
		return e.bootstrap()
	}

	if err := e.refreshPrices(ctx); err != nil {
		return err
	}

	// descending value, for readable reports only
	sort.Slice(e.assets, func(i, j int) bool {
		return e.assets[i].Value().GreaterThan(e.assets[j].Value())
	})

	var cash *database.Balance
	for _, asset := range e.assets {
		if asset.Symbol == e.cashSymbol {
			cash = asset
			break
		}
	}
	if cash == nil {
		return fmt.Errorf("cash balance %q missing", e.cashSymbol)
	}

	touched := e.evaluate(ctx, cash)

	total := decimal.Zero
	for _, asset := range e.assets {
		total = total.Add(asset.Value())
	}
	log.Info().Str("total", total.StringFixed(2)).Msg("account balance")

	if len(touched) > 0 {
		if err := e.store.SaveBalances(touched); err != nil {
			// drop the snapshot so the next pass restarts from what the
			// store last accepted
			e.assets = nil
			return fmt.Errorf("failed to persist pass results: %w", err)
		}
	}
	return nil
}

// refreshPrices batches one quote request for every non-excluded asset and
// applies the returned prices. A symbol with no price keeps its stale one.
func (e *Engine) refreshPrices(ctx context.Context) error {
	var symbols []string
	for _, asset := range e.assets {
		if !asset.Exclude {
			symbols = append(symbols, asset.AltSymbol)
		}
	}
	if len(symbols) == 0 {
		return nil
	}

	quotes, err := e.quotes.GetLatestQuotes(ctx, symbols)
	if err != nil {
		return fmt.Errorf("quote fetch failed: %w", err)
	}
	for _, quote := range quotes {
		if quote.Price == nil {
			continue
		}
		for _, asset := range e.assets {
			if strings.EqualFold(asset.AltSymbol, quote.Symbol) {
				asset.Price = *quote.Price
				break
			}
		}
	}
	return nil
}

// evaluate walks the sorted snapshot and simulates a trade for every asset
// outside its band. Returns the balances mutated this pass.
func (e *Engine) evaluate(ctx context.Context, cash *database.Balance) []*database.Balance {
	var touched []*database.Balance
	cashTouched := false

	for _, current := range e.assets {
		value := current.Value()
		if current.Exclude {
			log.Info().
				Str("symbol", current.Symbol).
				Str("value", value.StringFixed(2)).
				Msg("balance")
			continue
		}

		buyBoundary := current.BuyBoundary()
		sellBoundary := current.SellBoundary()
		log.Info().
			Str("symbol", current.Symbol).
			Str("value", value.StringFixed(2)).
			Str("notified_at", current.NotifiedAt.StringFixed(2)).
			Str("range", buyBoundary.StringFixed(2)+" - "+sellBoundary.StringFixed(2)).
			Msg("balance")

		switch {
		case value.GreaterThan(buyBoundary) && value.LessThan(sellBoundary):
			// back inside the band; re-arm the insufficient-cash mute
			if current.BuyAlertMuted {
				current.BuyAlertMuted = false
				touched = append(touched, current)
			}

		case value.LessThanOrEqual(buyBoundary):
			// floored, as a rough inclusion of the trading fee
			amount := current.BalanceTarget.Sub(value).Floor()
			if cash.Value().Sub(amount).GreaterThan(e.cashFloor) {
				cash.AdjustAmount(amount.Neg())
				current.AdjustAmount(amount.Div(current.Price))
				current.NotifiedAt = value
				current.BuyAlertMuted = false
				e.notifier.Send(ctx,
					fmt.Sprintf("%s BUY %s (%s) cash: %s / buy under %s",
						amount.StringFixed(2), current.Symbol, current.Name,
						cash.Value().StringFixed(2), current.BuyLimit().StringFixed(4)),
					fmt.Sprintf("Buy %s", current.Symbol))
				log.Warn().
					Str("symbol", current.Symbol).
					Str("amount", amount.StringFixed(2)).
					Str("shares", current.Amount.StringFixed(6)).
					Str("cash", cash.Value().StringFixed(2)).
					Msg("BUY")
				touched = append(touched, current)
				cashTouched = true
			} else if !current.BuyAlertMuted {
				// alert once, then stay quiet until cash recovers or the
				// asset re-enters its band
				current.BuyAlertMuted = true
				e.notifier.Send(ctx,
					fmt.Sprintf("%s BUY %s (%s) cash: %s *** not enough cash ***",
						amount.StringFixed(2), current.Symbol, current.Name,
						cash.Value().StringFixed(2)),
					fmt.Sprintf("Buy %s - not enough cash", current.Symbol))
				log.Error().
					Str("symbol", current.Symbol).
					Str("amount", amount.StringFixed(2)).
					Str("cash", cash.Value().StringFixed(2)).
					Msg("BUY skipped, not enough cash")
				// the mute is persisted so a reload or restart stays quiet
				touched = append(touched, current)
			}

		case value.GreaterThanOrEqual(sellBoundary):
			amount := value.Sub(current.BalanceTarget).Floor()
			cash.AdjustAmount(amount)
			current.AdjustAmount(amount.Div(current.Price).Neg())
			current.NotifiedAt = value
			current.BuyAlertMuted = false
			e.notifier.Send(ctx,
				fmt.Sprintf("%s SELL %s (%s) / sell over %s",
					amount.StringFixed(2), current.Symbol, current.Name,
					current.SellLimit().StringFixed(4)),
				fmt.Sprintf("Sell %s", current.Symbol))
			log.Warn().
				Str("symbol", current.Symbol).
				Str("amount", amount.StringFixed(2)).
				Str("shares", current.Amount.StringFixed(6)).
				Str("cash", cash.Value().StringFixed(2)).
				Msg("SELL")
			touched = append(touched, current)
			cashTouched = true
		}
	}

	if cashTouched {
		touched = append(touched, cash)
	}
	return touched
}

// bootstrap handles a first run against an empty store: create the cash
// balance and its master record, then wait for an import.
func (e *Engine) bootstrap() error {
	log.Info().Str("symbol", e.cashSymbol).Msg("no balances found, creating cash asset")

	cash := &database.Balance{
		Symbol:    e.cashSymbol,
		AltSymbol: e.cashSymbol,
		Name:      e.cashName,
		Exclude:   true,
		Price:     decimal.NewFromInt(1),
	}
	if err := e.store.CreateBalance(cash); err != nil {
		return fmt.Errorf("failed to create cash balance: %w", err)
	}

	currency := database.CryptoCurrency{
		Symbol:    e.cashSymbol,
		AltSymbol: e.cashSymbol,
		Name:      e.cashName,
		Slug:      e.cashSlug,
		Exclude:   true,
	}
	if err := e.store.InsertCurrencies([]database.CryptoCurrency{currency}); err != nil {
		return fmt.Errorf("failed to create cash currency: %w", err)
	}

	// force a reload so the next pass sees the stored row
	e.assets = nil
	return nil
}

// inQuietHours reports whether t falls in the do-not-disturb window. The
// window may wrap midnight; start == end disables it.
func (e *Engine) inQuietHours(t time.Time) bool {
	if e.dndStart == e.dndEnd {
		return false
	}
	hour := t.Hour()
	if e.dndStart < e.dndEnd {
		return hour >= e.dndStart && hour < e.dndEnd
	}
	return hour >= e.dndStart || hour < e.dndEnd
}
