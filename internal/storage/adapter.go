package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/quantkit/scoreengine/internal/lang"
)

// LoadSeries reads the [startDate, endDate] window for (tsCode, adjType)
// from stock_data and materializes it into an environment ready for
// internal/lang: base OHLCV columns under their short names (O/H/L/C/V/
// AMOUNT), any additional table columns under their upper-cased name, per
// data.rs's dynamic column discovery. Returns the ordered trade dates
// alongside the bound environment.
func (s *Store) LoadSeries(tsCode, adjType, startDate, endDate string) ([]string, map[string]lang.Value, error) {
	cols, err := s.tableColumns()
	if err != nil {
		return nil, nil, err
	}

	type binding struct {
		dbName  string
		envName string
	}
	var bindings []binding
	seen := map[string]bool{"ts_code": true, "trade_date": true, "adj_type": true}
	for _, c := range cols {
		low := strings.ToLower(c)
		if seen[low] {
			continue
		}
		seen[low] = true
		if env, ok := baseColumns[low]; ok {
			bindings = append(bindings, binding{dbName: c, envName: env})
		} else {
			bindings = append(bindings, binding{dbName: c, envName: strings.ToUpper(c)})
		}
	}
	for _, required := range []string{"open", "high", "low", "close", "vol", "amount"} {
		found := false
		for _, b := range bindings {
			if strings.ToLower(b.dbName) == required {
				found = true
				break
			}
		}
		if !found {
			return nil, nil, fmt.Errorf("stock_data missing base column %q", required)
		}
	}

	selectCols := make([]string, 0, len(bindings)+1)
	selectCols = append(selectCols, "trade_date")
	for _, b := range bindings {
		selectCols = append(selectCols, fmt.Sprintf("%q", b.dbName))
	}
	query := fmt.Sprintf(
		`SELECT %s FROM stock_data WHERE ts_code = ? AND adj_type = ? AND trade_date >= ? AND trade_date <= ? ORDER BY trade_date ASC`,
		strings.Join(selectCols, ", "),
	)

	rows, err := s.db.Query(query, tsCode, adjType, startDate, endDate)
	if err != nil {
		return nil, nil, fmt.Errorf("query stock_data: %w", err)
	}
	defer rows.Close()

	var tradeDates []string
	raw := make(map[string]lang.NumSeries, len(bindings))
	for _, b := range bindings {
		raw[b.envName] = nil
	}

	scanArgs := make([]any, len(bindings)+1)
	var tradeDate string
	scanArgs[0] = &tradeDate
	vals := make([]sql.NullFloat64, len(bindings))
	for i := range vals {
		scanArgs[i+1] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, nil, fmt.Errorf("scan stock_data row: %w", err)
		}
		tradeDates = append(tradeDates, tradeDate)
		for i, b := range bindings {
			var p *float64
			if vals[i].Valid {
				v := vals[i].Float64
				p = &v
			}
			raw[b.envName] = append(raw[b.envName], p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read stock_data rows: %w", err)
	}

	if err := validateSeriesLengths(tradeDates, raw); err != nil {
		return nil, nil, err
	}

	env := make(map[string]lang.Value, len(raw))
	for name, series := range raw {
		env[name] = series
	}
	return tradeDates, env, nil
}

// validateSeriesLengths checks every bound column is exactly as long as
// trade_dates, per DataRow::validate in data.rs.
func validateSeriesLengths(tradeDates []string, cols map[string]lang.NumSeries) error {
	if len(tradeDates) == 0 {
		return fmt.Errorf("trade_dates is empty")
	}
	n := len(tradeDates)
	for name, series := range cols {
		if len(series) != n {
			return fmt.Errorf("column %q length %d differs from trade_date length %d, data missing", name, len(series), n)
		}
	}
	return nil
}

func (s *Store) tableColumns() ([]string, error) {
	rows, err := s.db.Query(`PRAGMA table_info(stock_data)`)
	if err != nil {
		return nil, fmt.Errorf("inspect stock_data columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &primaryKey); err != nil {
			return nil, fmt.Errorf("read stock_data column info: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stock_data column info: %w", err)
	}
	return cols, nil
}
