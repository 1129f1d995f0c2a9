package storage

// Schema mirrors original_source/src/scoring/data.rs's three tables,
// translated from DuckDB to sqlite: stock_data holds OHLCV rows keyed by
// instrument/date/adjustment-type, score_summary and score_details hold the
// per-bar totals and per-rule breakdown a scoring.Run produces.
const (
	createStockData = `
CREATE TABLE IF NOT EXISTS stock_data (
	ts_code    TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	adj_type   TEXT NOT NULL,
	open       REAL,
	high       REAL,
	low        REAL,
	close      REAL,
	vol        REAL,
	amount     REAL,
	PRIMARY KEY (ts_code, trade_date, adj_type)
)`

	createScoreSummary = `
CREATE TABLE IF NOT EXISTS score_summary (
	ts_code     TEXT NOT NULL,
	trade_date  TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	total_score REAL NOT NULL,
	rank        INTEGER,
	PRIMARY KEY (ts_code, trade_date)
)`

	createScoreDetails = `
CREATE TABLE IF NOT EXISTS score_details (
	ts_code    TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	rule_name  TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	rule_score REAL NOT NULL,
	PRIMARY KEY (ts_code, trade_date, rule_name)
)`
)

// baseColumns maps a stock_data column name to the environment identifier
// internal/lang expects it bound under (O/H/L/C/V/AMOUNT), per data.rs's
// base_pairs table.
var baseColumns = map[string]string{
	"open":   "O",
	"high":   "H",
	"low":    "L",
	"close":  "C",
	"vol":    "V",
	"amount": "AMOUNT",
}
