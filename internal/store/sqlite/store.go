package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"chartlinkv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the compute service's durable bar store. Single-writer with WAL
// mode; batch inserts run in one transaction.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database, enables WAL mode, and creates the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", dbPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol       TEXT    NOT NULL,
			resolution   TEXT    NOT NULL,
			period_count INTEGER NOT NULL,
			close_ts     INTEGER NOT NULL,
			open         REAL    NOT NULL,
			high         REAL    NOT NULL,
			low          REAL    NOT NULL,
			close        REAL    NOT NULL,
			volume       REAL,
			PRIMARY KEY (symbol, resolution, period_count, close_ts)
		);
		CREATE INDEX IF NOT EXISTS idx_bars_close_ts ON bars (close_ts);
	`)
	return err
}

// InsertBars upserts a batch of bars in a single transaction.
func (s *Store) InsertBars(bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, resolution, period_count, close_ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.Exec(b.Symbol, string(b.Resolution), b.PeriodCount,
			b.CloseTime.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ReadRange reads bars for one series with close time in [start, end],
// ordered by close time ascending.
func (s *Store) ReadRange(symbol string, resolution model.Resolution, periodCount int, start, end time.Time) ([]model.Bar, error) {
	rows, err := s.db.Query(`
		SELECT symbol, resolution, period_count, close_ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND resolution = ? AND period_count = ? AND close_ts >= ? AND close_ts <= ?
		ORDER BY close_ts ASC
	`, symbol, string(resolution), periodCount, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var res string
		var closeTS int64
		var volume sql.NullFloat64
		if err := rows.Scan(&b.Symbol, &res, &b.PeriodCount, &closeTS,
			&b.Open, &b.High, &b.Low, &b.Close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.Resolution = model.Resolution(res)
		b.CloseTime = time.Unix(closeTS, 0).UTC()
		b.Volume = volume.Float64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// CountRange returns the number of stored bars for one series in [start, end].
func (s *Store) CountRange(symbol string, resolution model.Resolution, periodCount int, start, end time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM bars
		WHERE symbol = ? AND resolution = ? AND period_count = ? AND close_ts >= ? AND close_ts <= ?
	`, symbol, string(resolution), periodCount, start.Unix(), end.Unix()).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
