package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
)

// upsertCandleLog brackets a slot write: one entry before the write and one
// with written set after it. A pre-entry without its post-entry marks a torn
// write that recover re-applies.
type upsertCandleLog struct {
	timestamp time.Time
	fileKey   candleFileKey
	candle    *domain.Candle
	offset    int64
	written   bool
}

func encodeUpsertCandleLog(log upsertCandleLog) ([]byte, error) {
	symbol := log.fileKey.seriesKey.symbol
	timeframe := log.fileKey.seriesKey.timeframe.String()
	if len(symbol) > 0xffff {
		return nil, fmt.Errorf("symbol too long for wal log: %d bytes", len(symbol))
	}

	var buf bytes.Buffer
	buf.Grow(8 + 2 + len(symbol) + 2 + len(timeframe) + 8 + candleByteSize + 8 + 1)

	_ = binary.Write(&buf, binary.LittleEndian, uint64(log.timestamp.UnixNano()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(symbol)))
	buf.WriteString(symbol)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(timeframe)))
	buf.WriteString(timeframe)
	_ = binary.Write(&buf, binary.LittleEndian, log.fileKey.index)

	if n, _ := buf.Write(encodeCandle(log.candle)); n != candleByteSize {
		return nil, fmt.Errorf("failed to encode candle into wal log: %w", io.ErrShortWrite)
	}

	_ = binary.Write(&buf, binary.LittleEndian, log.offset)

	written := byte(0)
	if log.written {
		written = 1
	}
	buf.WriteByte(written)

	return buf.Bytes(), nil
}

func decodeUpsertCandleLog(data []byte) (upsertCandleLog, error) {
	var log upsertCandleLog
	r := bytes.NewReader(data)

	var timestamp uint64
	if err := binary.Read(r, binary.LittleEndian, &timestamp); err != nil {
		return log, err
	}
	log.timestamp = time.Unix(0, int64(timestamp)).UTC()

	symbol, err := readString(r)
	if err != nil {
		return log, err
	}
	timeframe, err := readString(r)
	if err != nil {
		return log, err
	}
	tf, err := domain.ParseTimeframe(timeframe)
	if err != nil {
		return log, err
	}
	log.fileKey.seriesKey = seriesKey{symbol: symbol, timeframe: tf}
	if err := binary.Read(r, binary.LittleEndian, &log.fileKey.index); err != nil {
		return log, err
	}

	encoded := make([]byte, candleByteSize)
	if _, err := io.ReadFull(r, encoded); err != nil {
		return log, err
	}
	log.candle = &domain.Candle{Symbol: symbol, Timeframe: timeframe}
	if err := decodeCandle(encoded, log.candle); err != nil {
		return log, err
	}

	if err := binary.Read(r, binary.LittleEndian, &log.offset); err != nil {
		return log, err
	}
	written, err := r.ReadByte()
	if err != nil {
		return log, err
	}
	log.written = written == 1

	return log, nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// writeCandleUpsert appends a length-prefixed entry. Callers hold s.mu.
func (s *FileStore) writeCandleUpsert(fileKey candleFileKey, candle *domain.Candle, offset int64, written bool) error {
	if s.disableWal || s.wal == nil {
		return nil
	}

	log := upsertCandleLog{
		timestamp: time.Now(),
		fileKey:   fileKey,
		candle:    candle,
		offset:    offset,
		written:   written,
	}
	encodedLog, err := encodeUpsertCandleLog(log)
	if err != nil {
		return err
	}
	logLength := len(encodedLog)

	_, err = s.wal.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	err = binary.Write(s.wal, binary.LittleEndian, uint64(logLength))
	if err != nil {
		return err
	}

	n, err := s.wal.Write(encodedLog)
	if n != logLength && err == nil {
		return io.ErrShortWrite
	}
	if err != nil {
		return err
	}

	return nil
}

// checkpointWAL flushes the candle files of a finished batch and empties the
// log. Callers hold s.mu.
func (s *FileStore) checkpointWAL(touched []candleFileKey) error {
	if s.disableWal || s.wal == nil {
		return nil
	}

	for _, key := range touched {
		if err := s.candleFiles[key].Sync(); err != nil {
			return err
		}
	}

	if err := s.wal.Truncate(0); err != nil {
		return err
	}
	_, err := s.wal.Seek(0, io.SeekStart)
	return err
}

type walSlot struct {
	fileKey candleFileKey
	offset  int64
}

// replayWAL replays writes that were logged but never confirmed, then truncates
// the log. A truncated trailing entry is ignored.
func (s *FileStore) replayWAL() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.wal.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	pending := make(map[walSlot]upsertCandleLog)
	var order []walSlot
	for {
		var length uint64
		if err := binary.Read(s.wal, binary.LittleEndian, &length); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, err
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(s.wal, data); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, err
		}

		log, err := decodeUpsertCandleLog(data)
		if err != nil {
			return 0, fmt.Errorf("failed to decode wal log: %w", err)
		}

		slot := walSlot{fileKey: log.fileKey, offset: log.offset}
		if log.written {
			delete(pending, slot)
			continue
		}
		if _, ok := pending[slot]; !ok {
			order = append(order, slot)
		}
		pending[slot] = log
	}

	replayed := 0
	for _, slot := range order {
		log, ok := pending[slot]
		if !ok {
			continue
		}
		if _, ok := s.candleFiles[slot.fileKey]; !ok {
			if err := s.allocateCandleFile(context.Background(), slot.fileKey); err != nil {
				return replayed, err
			}
		}
		if _, err := s.candleFiles[slot.fileKey].WriteAt(encodeCandle(log.candle), slot.offset*candleByteSize); err != nil {
			return replayed, err
		}
		replayed++
	}

	if err := s.wal.Truncate(0); err != nil {
		return replayed, err
	}
	_, err := s.wal.Seek(0, io.SeekStart)
	return replayed, err
}
