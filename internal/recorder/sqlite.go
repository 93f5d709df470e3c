package recorder

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"volbot/internal/engine"
)

// SQLiteRecorder persists backtest runs to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logrus.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *logrus.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so the report server can read while a run is being written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at       INTEGER NOT NULL,
			start_date       TEXT NOT NULL,
			end_date         TEXT NOT NULL,
			symbols          TEXT NOT NULL,
			initial_capital  REAL NOT NULL,
			total_trades     INTEGER,
			winning_trades   INTEGER,
			losing_trades    INTEGER,
			total_pnl        REAL,
			win_rate         REAL,
			profit_factor    REAL,
			max_drawdown     REAL,
			max_drawdown_pct REAL,
			sharpe_ratio     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          INTEGER NOT NULL REFERENCES runs(id),
			trade_id        TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			spread_type     TEXT NOT NULL,
			book_type       TEXT NOT NULL,
			short_strike    REAL,
			long_strike     REAL,
			contracts       INTEGER,
			entry_time      TEXT,
			entry_credit    REAL,
			max_loss        REAL,
			confidence      INTEGER,
			expiration_days INTEGER,
			exit_time       TEXT,
			exit_reason     TEXT,
			days_in_trade   INTEGER,
			realized_pnl    REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id)`,

		`CREATE TABLE IF NOT EXISTS partial_closes (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id           INTEGER NOT NULL REFERENCES runs(id),
			trade_id         TEXT NOT NULL,
			date             TEXT,
			contracts        INTEGER,
			pnl_per_contract REAL,
			tier             INTEGER,
			reason           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_partials_run ON partial_closes(run_id)`,

		`CREATE TABLE IF NOT EXISTS equity_curve (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			day    INTEGER NOT NULL,
			equity REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_run ON equity_curve(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// SaveRun writes one run and all its children in a single transaction.
func (r *SQLiteRecorder) SaveRun(meta RunMeta, results *engine.BacktestResults) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO runs
		(created_at, start_date, end_date, symbols, initial_capital,
		 total_trades, winning_trades, losing_trades, total_pnl,
		 win_rate, profit_factor, max_drawdown, max_drawdown_pct, sharpe_ratio)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(),
		meta.StartDate.Format("2006-01-02"), meta.EndDate.Format("2006-01-02"),
		strings.Join(meta.Symbols, ","), meta.InitialCapital,
		results.TotalTrades, results.WinningTrades, results.LosingTrades,
		results.TotalPnL, results.WinRate, finiteOrNull(results.ProfitFactor),
		results.MaxDrawdown, results.MaxDrawdownPct, results.SharpeRatio,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for _, t := range results.Trades {
		if _, err := tx.Exec(`INSERT INTO trades
			(run_id, trade_id, symbol, spread_type, book_type,
			 short_strike, long_strike, contracts, entry_time, entry_credit,
			 max_loss, confidence, expiration_days,
			 exit_time, exit_reason, days_in_trade, realized_pnl)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			runID, t.ID, t.Symbol, string(t.SpreadType), string(t.BookType),
			t.ShortStrike, t.LongStrike, t.Contracts,
			t.EntryTime.Format(time.RFC3339), t.EntryCredit,
			t.MaxLoss, t.Confidence, t.ExpirationDays,
			t.ExitTime.Format(time.RFC3339), t.ExitReason,
			t.DaysInTrade, t.RealizedPnL,
		); err != nil {
			return 0, fmt.Errorf("insert trade %s: %w", t.ID, err)
		}
	}

	for tradeID, partials := range results.PartialCloses {
		for _, pc := range partials {
			if _, err := tx.Exec(`INSERT INTO partial_closes
				(run_id, trade_id, date, contracts, pnl_per_contract, tier, reason)
				VALUES (?,?,?,?,?,?,?)`,
				runID, tradeID, pc.Date.Format("2006-01-02"),
				pc.Contracts, pc.PnLPerContract, pc.Tier, pc.Reason,
			); err != nil {
				return 0, fmt.Errorf("insert partial close for %s: %w", tradeID, err)
			}
		}
	}

	for day, equity := range results.EquityCurve {
		if _, err := tx.Exec(
			`INSERT INTO equity_curve (run_id, day, equity) VALUES (?,?,?)`,
			runID, day, equity,
		); err != nil {
			return 0, fmt.Errorf("insert equity point %d: %w", day, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"trades": results.TotalTrades,
	}).Info("Backtest run saved")
	return runID, nil
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Debug("Closing SQLite recorder")
	return r.db.Close()
}

// finiteOrNull maps a lossless run's infinite profit factor to NULL,
// which SQLite can store and readers can test for.
func finiteOrNull(v float64) sql.NullFloat64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
