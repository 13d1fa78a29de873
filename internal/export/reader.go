package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// ReadFile parses an export file into transaction records. Columns are
// matched by header name, so column order in the file does not matter.
func ReadFile(path string) ([]FileTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export file %s: %w", path, err)
	}
	defer file.Close()

	return Read(file)
}

// Read parses export records from r
func Read(r io.Reader) ([]FileTransaction, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var transactions []FileTransaction
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record: %w", err)
		}
		line++

		tx, err := parseRecord(record, columns)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	required := []string{
		HeaderID, HeaderDate,
		HeaderDestination, HeaderDestinationAmount, HeaderDestinationCurrency,
		HeaderOrigin, HeaderOriginAmount, HeaderOriginCurrency,
		HeaderStatus, HeaderType,
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("export file missing column %q", name)
		}
	}
	return columns, nil
}

func parseRecord(record []string, columns map[string]int) (FileTransaction, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	date, err := parseDate(field(HeaderDate))
	if err != nil {
		return FileTransaction{}, err
	}
	destAmount, err := parseAmount(field(HeaderDestinationAmount))
	if err != nil {
		return FileTransaction{}, fmt.Errorf("destination amount: %w", err)
	}
	originAmount, err := parseAmount(field(HeaderOriginAmount))
	if err != nil {
		return FileTransaction{}, fmt.Errorf("origin amount: %w", err)
	}

	tx := FileTransaction{
		ID:                  field(HeaderID),
		Date:                date,
		Destination:         field(HeaderDestination),
		DestinationAmount:   destAmount,
		DestinationCurrency: field(HeaderDestinationCurrency),
		FeeCurrency:         field(HeaderFeeCurrency),
		Origin:              field(HeaderOrigin),
		OriginAmount:        originAmount,
		OriginCurrency:      field(HeaderOriginCurrency),
		Status:              field(HeaderStatus),
		Type:                field(HeaderType),
	}

	// Fee is optional
	if raw := field(HeaderFeeAmount); raw != "" {
		fee, err := decimal.NewFromString(raw)
		if err != nil {
			return FileTransaction{}, fmt.Errorf("fee amount: %w", err)
		}
		tx.FeeAmount = &fee
	}

	return tx, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse date %q", raw)
}
