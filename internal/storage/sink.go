package storage

import (
	"database/sql"
	"fmt"

	"github.com/quantkit/scoreengine/internal/scoring"
)

// WriteSummary upserts run's per-bar totals into score_summary: existing
// rows for (ts_code, trade_date) are deleted, then the new rows are
// inserted, all inside one transaction — delete-then-insert semantics per
// ScoreSummary::write_db in data.rs.
func (s *Store) WriteSummary(run *scoring.Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin score_summary transaction: %w", err)
	}
	defer tx.Rollback()

	del, err := tx.Prepare(`DELETE FROM score_summary WHERE ts_code = ? AND trade_date = ?`)
	if err != nil {
		return fmt.Errorf("prepare score_summary delete: %w", err)
	}
	defer del.Close()

	ins, err := tx.Prepare(`INSERT INTO score_summary (ts_code, trade_date, run_id, total_score, rank) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare score_summary insert: %w", err)
	}
	defer ins.Close()

	runID := run.ID.String()
	for i, date := range run.TradeDates {
		if _, err := del.Exec(run.TsCode, date); err != nil {
			return fmt.Errorf("delete old score_summary row: %w", err)
		}
		if _, err := ins.Exec(run.TsCode, date, runID, run.Total[i], sql.NullInt64{}); err != nil {
			return fmt.Errorf("insert score_summary row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit score_summary transaction: %w", err)
	}
	return nil
}

// WriteDetails upserts run's per-rule breakdown into score_details with the
// same delete-then-insert semantics, per ScoreDetails::write_db.
func (s *Store) WriteDetails(run *scoring.Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin score_details transaction: %w", err)
	}
	defer tx.Rollback()

	del, err := tx.Prepare(`DELETE FROM score_details WHERE ts_code = ? AND trade_date = ? AND rule_name = ?`)
	if err != nil {
		return fmt.Errorf("prepare score_details delete: %w", err)
	}
	defer del.Close()

	ins, err := tx.Prepare(`INSERT INTO score_details (ts_code, trade_date, rule_name, run_id, rule_score) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare score_details insert: %w", err)
	}
	defer ins.Close()

	runID := run.ID.String()
	for ruleName, series := range run.Details {
		if len(series) != len(run.TradeDates) {
			continue // guards against a caller-supplied Run with mismatched lengths, per ScoreDetails::build
		}
		for i, date := range run.TradeDates {
			if _, err := del.Exec(run.TsCode, date, ruleName); err != nil {
				return fmt.Errorf("delete old score_details row: %w", err)
			}
			if _, err := ins.Exec(run.TsCode, date, ruleName, runID, series[i]); err != nil {
				return fmt.Errorf("insert score_details row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit score_details transaction: %w", err)
	}
	return nil
}
