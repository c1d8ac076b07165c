package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/guregu/null/v5"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"FibSentinel/internal/model"
)

// SQLiteRecorder persists screen passes to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while a pass writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Msgf("sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS screen_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL UNIQUE,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER,
			board       TEXT,
			screened    INTEGER,
			analyzed    INTEGER,
			swings      INTEGER,
			breakouts   INTEGER,
			failed      INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS boards (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			code       TEXT NOT NULL UNIQUE,
			name       TEXT,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS stocks (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			code                TEXT NOT NULL UNIQUE,
			name                TEXT,
			current_price       REAL,
			float_market_cap_yi REAL,
			board_code          TEXT,
			updated_at          INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS fibonacci_analysis (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id              TEXT NOT NULL,
			stock_code          TEXT NOT NULL,
			low_date            TEXT,
			high_date           TEXT,
			prev_low_hfq        REAL,
			prev_high_hfq       REAL,
			fib_hfq             REAL,
			prev_low_qfq        REAL,
			prev_high_qfq       REAL,
			fib_qfq             REAL,
			breakthrough_status INTEGER NOT NULL DEFAULT 0,
			error               TEXT,
			analyzed_at         INTEGER NOT NULL,
			UNIQUE (run_id, stock_code)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fib_code_ts ON fibonacci_analysis(stock_code, analyzed_at)`,

		`CREATE TABLE IF NOT EXISTS price_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			stock_code TEXT NOT NULL,
			adjustment TEXT NOT NULL,
			date       TEXT NOT NULL,
			open       REAL,
			close      REAL,
			high       REAL,
			low        REAL,
			volume     REAL,
			UNIQUE (stock_code, adjustment, date)
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordBoards(boards []model.Board) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UnixMilli()
	return r.inTx(func(tx *sql.Tx) error {
		for _, b := range boards {
			if _, err := tx.Exec(`INSERT INTO boards (code, name, updated_at) VALUES (?,?,?)
				ON CONFLICT(code) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
				b.Code, b.Name, now,
			); err != nil {
				return fmt.Errorf("upsert board %s: %w", b.Code, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRecorder) RecordPass(pass *model.Pass) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	swings, breakouts, failed := pass.Counts()
	return r.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO screen_runs
			(run_id, started_at, finished_at, board, screened, analyzed, swings, breakouts, failed)
			VALUES (?,?,?,?,?,?,?,?,?)
			ON CONFLICT(run_id) DO UPDATE SET
				finished_at = excluded.finished_at, screened = excluded.screened,
				analyzed = excluded.analyzed, swings = excluded.swings,
				breakouts = excluded.breakouts, failed = excluded.failed`,
			pass.RunID, pass.StartedAt.UnixMilli(), pass.FinishedAt.UnixMilli(), pass.Board,
			pass.Screened, len(pass.Reports), swings, breakouts, failed,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, rep := range pass.Reports {
			if _, err := tx.Exec(`INSERT INTO stocks
				(code, name, current_price, float_market_cap_yi, board_code, updated_at)
				VALUES (?,?,?,?,?,?)
				ON CONFLICT(code) DO UPDATE SET
					name = excluded.name, current_price = excluded.current_price,
					float_market_cap_yi = excluded.float_market_cap_yi,
					board_code = COALESCE(NULLIF(excluded.board_code, ''), stocks.board_code),
					updated_at = excluded.updated_at`,
				rep.Code, rep.Name, rep.CurrentPrice, rep.FloatMarketCapYi, pass.Board, rep.AnalyzedAt.UnixMilli(),
			); err != nil {
				return fmt.Errorf("upsert stock %s: %w", rep.Code, err)
			}

			var lowDate, highDate null.String
			if rep.Swing != nil {
				lowDate = null.StringFrom(rep.Swing.LowDate.Format(model.DateLayout))
				highDate = null.StringFrom(rep.Swing.HighDate.Format(model.DateLayout))
			}
			if _, err := tx.Exec(`INSERT INTO fibonacci_analysis
				(run_id, stock_code, low_date, high_date,
				 prev_low_hfq, prev_high_hfq, fib_hfq,
				 prev_low_qfq, prev_high_qfq, fib_qfq,
				 breakthrough_status, error, analyzed_at)
				VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
				ON CONFLICT(run_id, stock_code) DO NOTHING`,
				pass.RunID, rep.Code, lowDate, highDate,
				rep.LowBackward, rep.HighBackward, rep.LevelBackward,
				rep.LowForward, rep.HighForward, rep.LevelForward,
				rep.Breakout, null.NewString(rep.Err, rep.Err != ""), rep.AnalyzedAt.UnixMilli(),
			); err != nil {
				return fmt.Errorf("insert analysis %s: %w", rep.Code, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRecorder) RecordHistory(series []model.Series) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO price_history
			(stock_code, adjustment, date, open, close, high, low, volume)
			VALUES (?,?,?,?,?,?,?,?)
			ON CONFLICT(stock_code, adjustment, date) DO UPDATE SET
				open = excluded.open, close = excluded.close, high = excluded.high,
				low = excluded.low, volume = excluded.volume`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range series {
			for _, b := range s.Bars {
				if _, err := stmt.Exec(s.Code, string(s.Adjustment), b.Day(),
					b.Open, b.Close, b.High, b.Low, b.Volume); err != nil {
					return fmt.Errorf("upsert %s %s %s: %w", s.Code, s.Adjustment, b.Day(), err)
				}
			}
		}
		return nil
	})
}

// LatestReport returns the most recent analysis recorded for code.
func (r *SQLiteRecorder) LatestReport(code string) (*model.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		rep               model.Report
		name              null.String
		price, capYi      null.Float
		lowDate, highDate null.String
		errText           null.String
		analyzedAt        int64
	)
	err := r.db.QueryRow(`SELECT a.stock_code, s.name, s.current_price, s.float_market_cap_yi,
			a.low_date, a.high_date,
			a.prev_low_hfq, a.prev_high_hfq, a.fib_hfq,
			a.prev_low_qfq, a.prev_high_qfq, a.fib_qfq,
			a.breakthrough_status, a.error, a.analyzed_at
		FROM fibonacci_analysis a
		LEFT JOIN stocks s ON s.code = a.stock_code
		WHERE a.stock_code = ?
		ORDER BY a.analyzed_at DESC, a.id DESC
		LIMIT 1`, code).Scan(
		&rep.Code, &name, &price, &capYi,
		&lowDate, &highDate,
		&rep.LowBackward, &rep.HighBackward, &rep.LevelBackward,
		&rep.LowForward, &rep.HighForward, &rep.LevelForward,
		&rep.Breakout, &errText, &analyzedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest report %s: %w", code, err)
	}

	rep.Name = name.String
	rep.CurrentPrice = price.Float64
	rep.FloatMarketCapYi = capYi.Float64
	rep.Err = errText.String
	rep.AnalyzedAt = time.UnixMilli(analyzedAt)

	if lowDate.Valid && highDate.Valid && rep.LevelBackward.Valid {
		lo, err1 := model.ParseDay(lowDate.String)
		hi, err2 := model.ParseDay(highDate.String)
		if err := errors.Join(err1, err2); err != nil {
			return nil, fmt.Errorf("parse swing dates for %s: %w", code, err)
		}
		rep.Swing = &model.SwingResult{
			LowDate:          lo,
			HighDate:         hi,
			LowPrice:         rep.LowBackward.Float64,
			HighPrice:        rep.HighBackward.Float64,
			RetracementPrice: rep.LevelBackward.Float64,
		}
	}
	return &rep, nil
}

func (r *SQLiteRecorder) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
