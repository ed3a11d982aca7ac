package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/jmoiron/sqlx"
)

const (
	selectCandles = `
		SELECT symbol, timeframe, ts, open, high, low, close, volume, quote_volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
		ORDER BY ts`

	selectAny = `
		SELECT 1 FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
		LIMIT 1`

	// gaps-and-islands: period_index minus the row number is constant within
	// a run of consecutive periods.
	selectSegments = `
		SELECT MIN(ts) AS first_ts, MAX(ts) AS last_ts, COUNT(*) AS n
		FROM (
			SELECT ts, period_index - ROW_NUMBER() OVER (ORDER BY ts) AS grp
			FROM candles
			WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
		) islands
		GROUP BY grp
		ORDER BY first_ts`

	// Each row paired with the next present row; a jump of more than one
	// period is a hole.
	selectHoles = `
		SELECT ts, next_ts
		FROM (
			SELECT ts, period_index,
				LEAD(ts) OVER (ORDER BY ts) AS next_ts,
				LEAD(period_index) OVER (ORDER BY ts) AS next_index
			FROM candles
			WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
		) pairs
		WHERE next_index IS NOT NULL AND next_index - period_index > 1
		ORDER BY ts`

	selectBounds = `
		SELECT MIN(ts) AS first_ts, MAX(ts) AS last_ts
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?`

	selectLatest   = `SELECT MAX(ts) FROM candles WHERE symbol = ? AND timeframe = ?`
	selectEarliest = `SELECT MIN(ts) FROM candles WHERE symbol = ? AND timeframe = ?`

	upsertCandle = `
		INSERT INTO candles (symbol, timeframe, ts, period_index, open, high, low, close, volume, quote_volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timeframe, ts) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			quote_volume = excluded.quote_volume`
)

type candleRow struct {
	Symbol      string          `db:"symbol"`
	Timeframe   string          `db:"timeframe"`
	Timestamp   int64           `db:"ts"`
	Open        float64         `db:"open"`
	High        float64         `db:"high"`
	Low         float64         `db:"low"`
	Close       float64         `db:"close"`
	Volume      float64         `db:"volume"`
	QuoteVolume sql.NullFloat64 `db:"quote_volume"`
}

func (r candleRow) toDomain() domain.Candle {
	c := domain.Candle{
		Symbol:    r.Symbol,
		Timeframe: r.Timeframe,
		Timestamp: fromMillis(r.Timestamp),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
	if r.QuoteVolume.Valid {
		qv := r.QuoteVolume.Float64
		c.QuoteVolume = &qv
	}
	return c
}

type segmentRow struct {
	FirstTs int64 `db:"first_ts"`
	LastTs  int64 `db:"last_ts"`
	N       int   `db:"n"`
}

type holeRow struct {
	Timestamp int64 `db:"ts"`
	NextTs    int64 `db:"next_ts"`
}

type boundsRow struct {
	FirstTs sql.NullInt64 `db:"first_ts"`
	LastTs  sql.NullInt64 `db:"last_ts"`
}

// SQLStore keeps candles in a relational table. It works with any driver sqlx
// can rebind for; sqlite and postgres are the ones exercised.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an already open handle. The schema must exist, see EnsureSchema.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) HasAnyDataInRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one, s.db.Rebind(selectAny), symbol, tf.String(), toMillis(start), toMillis(end))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("has any data", err)
	}
	return true, nil
}

func (s *SQLStore) IsRangeComplete(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (bool, error) {
	missing, err := s.FindMissingSubRanges(ctx, symbol, tf, start, end)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

func (s *SQLStore) FindMissingSubRanges(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Range, error) {
	args := []any{symbol, tf.String(), toMillis(start), toMillis(end)}

	var bounds boundsRow
	if err := s.db.GetContext(ctx, &bounds, s.db.Rebind(selectBounds), args...); err != nil {
		return nil, storageErr("find missing bounds", err)
	}
	if !bounds.FirstTs.Valid {
		return domain.Complement(tf, start, end, nil), nil
	}

	var holes []holeRow
	if err := s.db.SelectContext(ctx, &holes, s.db.Rebind(selectHoles), args...); err != nil {
		return nil, storageErr("find missing holes", err)
	}

	first := fromMillis(bounds.FirstTs.Int64)
	last := fromMillis(bounds.LastTs.Int64)

	var gaps []domain.Range
	if lead := tf.Ceil(start); first.After(lead) {
		gaps = append(gaps, domain.Range{Start: lead, End: first})
	}
	for _, h := range holes {
		gaps = append(gaps, domain.Range{
			Start: tf.Add(fromMillis(h.Timestamp), 1),
			End:   fromMillis(h.NextTs),
		})
	}
	if next := tf.Add(last, 1); tf.ExpectedCount(next, end) > 0 {
		gaps = append(gaps, domain.Range{Start: next, End: end})
	}

	slog.DebugContext(ctx, "find missing sub ranges", "symbol", symbol, "timeframe", tf, "gap_count", len(gaps))
	return gaps, nil
}

func (s *SQLStore) Segments(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Segment, error) {
	var rows []segmentRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(selectSegments), symbol, tf.String(), toMillis(start), toMillis(end))
	if err != nil {
		return nil, storageErr("segments", err)
	}

	segs := make([]domain.Segment, 0, len(rows))
	for _, r := range rows {
		segs = append(segs, domain.Segment{
			First: fromMillis(r.FirstTs),
			Last:  fromMillis(r.LastTs),
			Count: r.N,
		})
	}
	return segs, nil
}

func (s *SQLStore) GetRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	slog.DebugContext(ctx, "get candles", "symbol", symbol, "timeframe", tf, "from", start, "to", end)

	var rows []candleRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(selectCandles), symbol, tf.String(), toMillis(start), toMillis(end))
	if err != nil {
		return nil, storageErr("get range", err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, r.toDomain())
	}
	return candles, nil
}

func (s *SQLStore) GetLatestTimestamp(ctx context.Context, symbol string, tf domain.Timeframe) (time.Time, bool, error) {
	return s.edgeTimestamp(ctx, "latest timestamp", selectLatest, symbol, tf)
}

func (s *SQLStore) GetEarliestTimestamp(ctx context.Context, symbol string, tf domain.Timeframe) (time.Time, bool, error) {
	return s.edgeTimestamp(ctx, "earliest timestamp", selectEarliest, symbol, tf)
}

func (s *SQLStore) edgeTimestamp(ctx context.Context, op, query, symbol string, tf domain.Timeframe) (time.Time, bool, error) {
	var ts sql.NullInt64
	if err := s.db.GetContext(ctx, &ts, s.db.Rebind(query), symbol, tf.String()); err != nil {
		return time.Time{}, false, storageErr(op, err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(ts.Int64), true, nil
}

// UpsertBatch writes candles in one transaction. A row that already exists
// for the same key is replaced, so late revisions from the exchange win.
func (s *SQLStore) UpsertBatch(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	indexes, err := periodIndexes(candles)
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "save candles", "count", len(candles))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin upsert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(upsertCandle))
	if err != nil {
		return storageErr("prepare upsert", err)
	}
	defer stmt.Close()

	for i, c := range candles {
		var qv sql.NullFloat64
		if c.QuoteVolume != nil {
			qv = sql.NullFloat64{Float64: *c.QuoteVolume, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			c.Symbol, c.Timeframe, toMillis(c.Timestamp), indexes[i],
			c.Open, c.High, c.Low, c.Close, c.Volume, qv,
		)
		if err != nil {
			return storageErr(fmt.Sprintf("upsert %s %s %s", c.Symbol, c.Timeframe, c.Timestamp.UTC().Format(time.RFC3339)), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit upsert", err)
	}
	return nil
}
