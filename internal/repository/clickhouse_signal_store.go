package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TradePulse/internal/domain/models"
	domrepo "TradePulse/internal/domain/repository"
	pkgch "TradePulse/pkg/clickhouse"
	applogger "TradePulse/pkg/logger"
)

// CHSignalStore implements SignalStore backed by ClickHouse. It is an
// append-only sink for offline analysis; reads never go through it on the
// hot path.
type CHSignalStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHSignalStore(ch *pkgch.Client, database string) domrepo.SignalStore {
	if database == "" {
		database = "tradepulse"
	}
	return &CHSignalStore{db: ch.DB(), database: database}
}

// SetLogger injects a structured logger.
func (s *CHSignalStore) SetLogger(l *applogger.Logger) { s.l = l }

// Init creates the signal and evaluation tables when missing.
func (s *CHSignalStore) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.signal_history (
            ts DateTime64(3),
            symbol LowCardinality(String),
            score Float64,
            ev Float64,
            tier LowCardinality(String)
        ) ENGINE = MergeTree() ORDER BY (symbol, ts) TTL toDateTime(ts) + INTERVAL 30 DAY`, s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.ev_evaluations (
            ts DateTime64(3),
            symbol LowCardinality(String),
            p_win Float64,
            gain Float64,
            loss Float64,
            fee Float64,
            ev Float64,
            tier LowCardinality(String),
            leverage UInt16,
            kelly Float64
        ) ENGINE = MergeTree() ORDER BY (symbol, ts) TTL toDateTime(ts) + INTERVAL 30 DAY`, s.database),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("signal store init: %w", err)
		}
	}
	return nil
}

// StoreSignals inserts one cycle's fused-signal records in a single
// multi-row statement.
func (s *CHSignalStore) StoreSignals(ctx context.Context, recs []models.SignalRecord) error {
	if len(recs) == 0 {
		return nil
	}
	start := time.Now()

	values := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*5)
	for _, r := range recs {
		if r.Symbol == "" {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, r.Timestamp, r.Symbol, r.Score, r.EV, string(r.Tier))
	}
	if len(values) == 0 {
		return nil
	}

	q := fmt.Sprintf("INSERT INTO %s.signal_history (ts, symbol, score, ev, tier) VALUES %s",
		s.database, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse signal insert error",
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("store signals: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse signal insert ok",
			applogger.Int("rows", len(values)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// StoreEvaluation inserts one EV evaluation row.
func (s *CHSignalStore) StoreEvaluation(ctx context.Context, res models.EVResult) error {
	q := fmt.Sprintf(`INSERT INTO %s.ev_evaluations
        (ts, symbol, p_win, gain, loss, fee, ev, tier, leverage, kelly)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	_, err := s.db.ExecContext(ctx, q,
		res.Timestamp,
		res.Symbol,
		res.PWin,
		res.Gain,
		res.Loss,
		res.Fee,
		res.EV,
		string(res.Tier),
		uint16(res.Leverage),
		res.Kelly,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse evaluation insert error",
				applogger.String("symbol", res.Symbol),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("store evaluation: %w", err)
	}
	return nil
}

func (s *CHSignalStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHSignalStore) Close() error {
	return nil // connection owned by pkg/clickhouse
}
