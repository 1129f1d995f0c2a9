package storage

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/quantkit/scoreengine/internal/lang"
	"github.com/quantkit/scoreengine/internal/scoring"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return s
}

func seedStockData(t *testing.T, s *Store) {
	t.Helper()
	rows := []struct {
		date                                    string
		open, high, low, close, vol, amount float64
	}{
		{"20240101", 10, 11, 9, 10.5, 1000, 10500},
		{"20240102", 10.5, 12, 10, 11.5, 1200, 13800},
		{"20240103", 11.5, 11.8, 10.9, 11, 900, 9900},
	}
	for _, r := range rows {
		_, err := s.db.Exec(
			`INSERT INTO stock_data (ts_code, trade_date, adj_type, open, high, low, close, vol, amount) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			"000001.SZ", r.date, "qfq", r.open, r.high, r.low, r.close, r.vol, r.amount,
		)
		if err != nil {
			t.Fatalf("seed stock_data: %v", err)
		}
	}
}

func TestLoadSeriesBindsBaseColumns(t *testing.T) {
	s := openTestStore(t)
	seedStockData(t, s)

	dates, env, err := s.LoadSeries("000001.SZ", "qfq", "20240101", "20240103")
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(dates) != 3 || dates[0] != "20240101" || dates[2] != "20240103" {
		t.Fatalf("dates = %v", dates)
	}

	closeSeries, ok := env["C"].(lang.NumSeries)
	if !ok {
		t.Fatalf("env[C] = %T, want NumSeries", env["C"])
	}
	want := []float64{10.5, 11.5, 11}
	for i, w := range want {
		if closeSeries[i] == nil || math.Abs(*closeSeries[i]-w) > 1e-9 {
			t.Errorf("C[%d] = %v, want %v", i, closeSeries[i], w)
		}
	}

	for _, name := range []string{"O", "H", "L", "C", "V", "AMOUNT"} {
		if _, ok := env[name]; !ok {
			t.Errorf("missing base column binding %q", name)
		}
	}
}

func TestLoadSeriesDateRangeFilters(t *testing.T) {
	s := openTestStore(t)
	seedStockData(t, s)

	dates, _, err := s.LoadSeries("000001.SZ", "qfq", "20240102", "20240102")
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(dates) != 1 || dates[0] != "20240102" {
		t.Fatalf("dates = %v, want single 20240102", dates)
	}
}

func TestWriteSummaryThenDetailsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	run := &scoring.Run{
		ID:         uuid.New(),
		TsCode:     "000001.SZ",
		TradeDates: []string{"20240101", "20240102"},
		Total:      []float64{1, 2},
		Details: map[string][]float64{
			"r1": {1, 1},
			"r2": {0, 1},
		},
	}
	if err := s.WriteSummary(run); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	if err := s.WriteDetails(run); err != nil {
		t.Fatalf("WriteDetails: %v", err)
	}

	var total float64
	if err := s.db.QueryRow(`SELECT total_score FROM score_summary WHERE ts_code=? AND trade_date=?`, "000001.SZ", "20240102").Scan(&total); err != nil {
		t.Fatalf("query score_summary: %v", err)
	}
	if total != 2 {
		t.Errorf("total_score = %v, want 2", total)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM score_details WHERE ts_code=?`, "000001.SZ").Scan(&count); err != nil {
		t.Fatalf("query score_details: %v", err)
	}
	if count != 4 {
		t.Errorf("score_details row count = %d, want 4", count)
	}
}

func TestWriteSummaryIsIdempotentPerDate(t *testing.T) {
	s := openTestStore(t)
	run := &scoring.Run{
		ID:         uuid.New(),
		TsCode:     "000001.SZ",
		TradeDates: []string{"20240101"},
		Total:      []float64{5},
		Details:    map[string][]float64{},
	}
	if err := s.WriteSummary(run); err != nil {
		t.Fatalf("first WriteSummary: %v", err)
	}
	run.Total[0] = 9
	if err := s.WriteSummary(run); err != nil {
		t.Fatalf("second WriteSummary: %v", err)
	}

	var count int
	var total float64
	if err := s.db.QueryRow(`SELECT COUNT(*), MAX(total_score) FROM score_summary WHERE ts_code=? AND trade_date=?`, "000001.SZ", "20240101").Scan(&count, &total); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 || total != 9 {
		t.Fatalf("count=%d total=%v, want count=1 total=9", count, total)
	}
}
