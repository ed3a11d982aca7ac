package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/spf13/afero"
)

type seriesKey struct {
	symbol    string
	timeframe domain.Timeframe
}

// candleFileKey addresses one chunk file: the file with ordinal index holds
// periods [index*chunkCandleCount, (index+1)*chunkCandleCount).
type candleFileKey struct {
	seriesKey seriesKey
	index     int64
}

// FileStore keeps candles in fixed-size slot files, one slot per period, so a
// candle's position on disk is derived from its period index alone.
type FileStore struct {
	fs          afero.Fs
	dataDir     string
	walDir      string
	wal         afero.File
	disableWal  bool
	candleFiles map[candleFileKey]afero.File
	// sorted file ordinals per series
	seriesFiles      map[seriesKey][]int64
	mu               sync.Mutex
	chunkCandleCount int
}

type FileOption func(*FileStore)

// WithoutWAL skips the upsert log. Crash recovery is lost.
func WithoutWAL() FileOption {
	return func(s *FileStore) {
		s.disableWal = true
	}
}

// wal
// - 0000000001.wal
// data
// - symbol_timeframe
//   - from_to.bin

func NewFileStore(fs afero.Fs, rootDir string, chunkCandleCount int, opts ...FileOption) (*FileStore, error) {
	if chunkCandleCount <= 0 {
		return nil, fmt.Errorf("chunk candle count must be positive, got %d", chunkCandleCount)
	}

	s := &FileStore{
		fs:               fs,
		dataDir:          path.Join(rootDir, "data"),
		walDir:           path.Join(rootDir, "wal"),
		candleFiles:      make(map[candleFileKey]afero.File),
		seriesFiles:      make(map[seriesKey][]int64),
		chunkCandleCount: chunkCandleCount,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := fs.MkdirAll(s.walDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create wal directory: %w", err)
	}
	if err := fs.MkdirAll(s.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := s.loadCandleFiles(); err != nil {
		return nil, err
	}

	if !s.disableWal {
		wal, err := fs.OpenFile(path.Join(s.walDir, fmt.Sprintf("%010d.wal", 1)), os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open wal file: %w", err)
		}
		s.wal = wal

		replayed, err := s.replayWAL()
		if err != nil {
			return nil, fmt.Errorf("failed to recover from wal: %w", err)
		}
		if replayed > 0 {
			slog.Info("recovered candles from wal", "count", replayed)
		}
	}

	return s, nil
}

func (s *FileStore) loadCandleFiles() error {
	seriesDirs, err := afero.ReadDir(s.fs, s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, seriesDir := range seriesDirs {
		slog.Debug("series directory", "name", seriesDir.Name())

		sep := strings.LastIndex(seriesDir.Name(), "_")
		if sep <= 0 {
			slog.Warn("skipping unknown directory", "name", seriesDir.Name())
			continue
		}
		tf, err := domain.ParseTimeframe(seriesDir.Name()[sep+1:])
		if err != nil {
			slog.Warn("skipping directory with unknown timeframe", "name", seriesDir.Name(), "error", err)
			continue
		}
		series := seriesKey{symbol: seriesDir.Name()[:sep], timeframe: tf}

		dir := path.Join(s.dataDir, seriesDir.Name())
		files, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			return fmt.Errorf("failed to read candles directory: %w", err)
		}

		for _, file := range files {
			name := strings.TrimSuffix(file.Name(), path.Ext(file.Name()))
			rangeParts := strings.Split(name, "_")
			if len(rangeParts) != 2 {
				return fmt.Errorf("invalid candle file name: %s", file.Name())
			}

			from, err := strconv.ParseInt(rangeParts[0], 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse from timestamp: %w", err)
			}

			candleFile, err := s.fs.OpenFile(path.Join(dir, file.Name()), os.O_RDWR, 0644)
			if err != nil {
				return fmt.Errorf("failed to open candle file: %w", err)
			}

			key := candleFileKey{
				seriesKey: series,
				index:     s.fileIndex(tf.Index(time.UnixMicro(from).UTC())),
			}
			slog.Debug("candle file", "symbol", series.symbol, "timeframe", tf, "index", key.index)

			s.candleFiles[key] = candleFile
			s.seriesFiles[series] = append(s.seriesFiles[series], key.index)
		}
	}

	for _, indexes := range s.seriesFiles {
		sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for key, f := range s.candleFiles {
		errs = append(errs, f.Close())
		delete(s.candleFiles, key)
	}
	if s.wal != nil {
		errs = append(errs, s.wal.Close())
		s.wal = nil
	}
	return errors.Join(errs...)
}

func (s *FileStore) HasAnyDataInRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (bool, error) {
	candles, err := s.GetRange(ctx, symbol, tf, start, end)
	if err != nil {
		return false, err
	}
	return len(candles) > 0, nil
}

func (s *FileStore) IsRangeComplete(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (bool, error) {
	missing, err := s.FindMissingSubRanges(ctx, symbol, tf, start, end)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

func (s *FileStore) FindMissingSubRanges(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Range, error) {
	segs, err := s.Segments(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, err
	}
	return domain.Complement(tf, start, end, segs), nil
}

func (s *FileStore) Segments(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Segment, error) {
	candles, err := s.GetRange(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, err
	}
	timestamps := make([]time.Time, len(candles))
	for i, c := range candles {
		timestamps[i] = c.Timestamp
	}
	return domain.SegmentsOf(tf, timestamps), nil
}

func (s *FileStore) GetRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	slog.DebugContext(ctx, "get candles", "symbol", symbol, "timeframe", tf, "from", start, "to", end)

	count := tf.ExpectedCount(start, end)
	if count == 0 {
		return nil, nil
	}
	firstPeriod := tf.Index(tf.Ceil(start))
	firstFile := s.fileIndex(firstPeriod)
	lastFile := s.fileIndex(firstPeriod + int64(count) - 1)

	series := seriesKey{symbol: symbol, timeframe: tf}

	s.mu.Lock()
	defer s.mu.Unlock()

	var candles []domain.Candle
	for _, idx := range s.seriesFiles[series] {
		if idx < firstFile || idx > lastFile {
			continue
		}
		fileCandles, err := s.readCandleFile(candleFileKey{seriesKey: series, index: idx})
		if err != nil {
			return nil, storageErr("get range", err)
		}
		for _, c := range fileCandles {
			if c.Timestamp.Before(start) || !c.Timestamp.Before(end) {
				continue
			}
			candles = append(candles, c)
		}
	}

	slog.DebugContext(ctx, "get candles", "candle_count", len(candles))
	return candles, nil
}

func (s *FileStore) GetLatestTimestamp(ctx context.Context, symbol string, tf domain.Timeframe) (time.Time, bool, error) {
	return s.edgeTimestamp(symbol, tf, true)
}

func (s *FileStore) GetEarliestTimestamp(ctx context.Context, symbol string, tf domain.Timeframe) (time.Time, bool, error) {
	return s.edgeTimestamp(symbol, tf, false)
}

func (s *FileStore) edgeTimestamp(symbol string, tf domain.Timeframe, latest bool) (time.Time, bool, error) {
	series := seriesKey{symbol: symbol, timeframe: tf}

	s.mu.Lock()
	defer s.mu.Unlock()

	indexes := s.seriesFiles[series]
	for i := range indexes {
		idx := indexes[i]
		if latest {
			idx = indexes[len(indexes)-1-i]
		}
		candles, err := s.readCandleFile(candleFileKey{seriesKey: series, index: idx})
		if err != nil {
			return time.Time{}, false, storageErr("edge timestamp", err)
		}
		if len(candles) == 0 {
			continue
		}
		if latest {
			return candles[len(candles)-1].Timestamp, true, nil
		}
		return candles[0].Timestamp, true, nil
	}
	return time.Time{}, false, nil
}

// readCandleFile decodes every written slot of a file, ascending. Callers hold s.mu.
func (s *FileStore) readCandleFile(key candleFileKey) ([]domain.Candle, error) {
	file := s.candleFiles[key]
	if file == nil {
		return nil, fmt.Errorf("candle file %s/%d not open", key.seriesKey.symbol, key.index)
	}

	// FIXME: read only the slots the caller asked for
	candlesBinary := make([]byte, s.chunkCandleCount*candleByteSize)
	n, err := file.ReadAt(candlesBinary, 0)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(candlesBinary)) {
		return nil, fmt.Errorf("failed to read candle file: %w", err)
	}

	candles := make([]domain.Candle, 0, s.chunkCandleCount)
	for i := 0; i < s.chunkCandleCount; i++ {
		var candle domain.Candle
		err := decodeCandle(candlesBinary[i*candleByteSize:(i+1)*candleByteSize], &candle)
		if err == ErrCandleNotWritten {
			continue
		}
		if err != nil {
			return nil, err
		}

		candle.Symbol = key.seriesKey.symbol
		candle.Timeframe = key.seriesKey.timeframe.String()
		candles = append(candles, candle)
	}

	return candles, nil
}

// UpsertBatch writes each candle into its slot, overwriting whatever the slot
// held before.
func (s *FileStore) UpsertBatch(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	slog.DebugContext(ctx, "save candles", "count", len(candles))

	indexes, err := periodIndexes(candles)
	if err != nil {
		return err
	}

	type slot struct {
		candle domain.Candle
		period int64
	}
	byFile := make(map[candleFileKey][]slot)
	for i, c := range candles {
		tf := domain.MustParseTimeframe(c.Timeframe)
		c.Timestamp = c.Timestamp.UTC()
		key := candleFileKey{
			seriesKey: seriesKey{symbol: c.Symbol, timeframe: tf},
			index:     s.fileIndex(indexes[i]),
		}
		byFile[key] = append(byFile[key], slot{candle: c, period: indexes[i]})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, slots := range byFile {
		if _, ok := s.candleFiles[key]; !ok {
			if err := s.allocateCandleFile(ctx, key); err != nil {
				return storageErr("allocate candle file", err)
			}
		}

		sort.Slice(slots, func(i, j int) bool { return slots[i].period < slots[j].period })
		for _, sl := range slots {
			offset := sl.period - key.index*int64(s.chunkCandleCount)
			if err := s.saveCandleByFile(key, &sl.candle, offset); err != nil {
				return storageErr("save candle", err)
			}
		}
	}

	touched := make([]candleFileKey, 0, len(byFile))
	for key := range byFile {
		touched = append(touched, key)
	}
	// every entry of the batch is confirmed now
	if err := s.checkpointWAL(touched); err != nil {
		return storageErr("checkpoint wal", err)
	}
	return nil
}

func (s *FileStore) saveCandleByFile(key candleFileKey, candle *domain.Candle, offset int64) error {
	encoded := encodeCandle(candle)

	if err := s.writeCandleUpsert(key, candle, offset, false); err != nil {
		return err
	}

	written, err := s.candleFiles[key].WriteAt(encoded, offset*candleByteSize)
	if written != candleByteSize && err == nil {
		err = io.ErrShortWrite
	}
	if err != nil {
		return err
	}

	return s.writeCandleUpsert(key, candle, offset, true)
}

// allocateCandleFile creates a zero-filled file for key. Callers hold s.mu.
func (s *FileStore) allocateCandleFile(ctx context.Context, key candleFileKey) error {
	slog.DebugContext(ctx, "allocate candle file", "symbol", key.seriesKey.symbol, "timeframe", key.seriesKey.timeframe, "index", key.index)

	tf := key.seriesKey.timeframe
	n := int64(s.chunkCandleCount)
	from := tf.FromIndex(key.index * n)
	to := tf.FromIndex((key.index + 1) * n)

	seriesDir := path.Join(s.dataDir, fmt.Sprintf("%s_%s", key.seriesKey.symbol, tf))
	if err := s.fs.MkdirAll(seriesDir, 0755); err != nil {
		return fmt.Errorf("failed to create series directory: %w", err)
	}

	filename := path.Join(seriesDir, fmt.Sprintf("%d_%d.bin", from.UnixMicro(), to.UnixMicro()))
	candleFile, err := s.fs.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create candle file: %w", err)
	}

	zeros := make([]byte, s.chunkCandleCount*candleByteSize)
	written, err := candleFile.Write(zeros)
	if written != len(zeros) && err == nil {
		err = io.ErrShortWrite
	}
	if err != nil {
		candleFile.Close()
		return fmt.Errorf("failed to write zeros to the candle file: %w", err)
	}

	s.candleFiles[key] = candleFile
	indexes := append(s.seriesFiles[key.seriesKey], key.index)
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	s.seriesFiles[key.seriesKey] = indexes

	return nil
}

func (s *FileStore) fileIndex(period int64) int64 {
	n := int64(s.chunkCandleCount)
	q := period / n
	if period%n != 0 && period < 0 {
		q--
	}
	return q
}
