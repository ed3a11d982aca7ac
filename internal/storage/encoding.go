package storage

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
)

const candleByteSize = 57

const (
	flagWritten     = 1 << 0
	flagQuoteVolume = 1 << 1
)

var ErrCandleNotWritten = errors.New("candle not written")

func encodeCandle(candle *domain.Candle) []byte {
	buf := make([]byte, candleByteSize)

	binary.LittleEndian.PutUint64(buf, uint64(candle.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(candle.Open))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(candle.High))
	binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(candle.Low))
	binary.LittleEndian.PutUint64(buf[32:], math.Float64bits(candle.Close))
	binary.LittleEndian.PutUint64(buf[40:], math.Float64bits(candle.Volume))

	flags := byte(flagWritten)
	if candle.QuoteVolume != nil {
		binary.LittleEndian.PutUint64(buf[48:], math.Float64bits(*candle.QuoteVolume))
		flags |= flagQuoteVolume
	}
	buf[56] = flags

	return buf
}

func decodeCandle(buf []byte, candle *domain.Candle) error {
	if len(buf) != candleByteSize {
		return errors.New("invalid buffer size")
	}
	flags := buf[56]
	if flags&flagWritten == 0 {
		return ErrCandleNotWritten
	}

	timestamp := binary.LittleEndian.Uint64(buf[:8])
	candle.Timestamp = time.Unix(0, int64(timestamp)).UTC()
	candle.Open = math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16]))
	candle.High = math.Float64frombits(binary.LittleEndian.Uint64(buf[16:24]))
	candle.Low = math.Float64frombits(binary.LittleEndian.Uint64(buf[24:32]))
	candle.Close = math.Float64frombits(binary.LittleEndian.Uint64(buf[32:40]))
	candle.Volume = math.Float64frombits(binary.LittleEndian.Uint64(buf[40:48]))
	candle.QuoteVolume = nil
	if flags&flagQuoteVolume != 0 {
		qv := math.Float64frombits(binary.LittleEndian.Uint64(buf[48:56]))
		candle.QuoteVolume = &qv
	}

	return nil
}
