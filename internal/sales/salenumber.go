package sales

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

const saleNumberLayout = "20060102150405"

// SequenceSource hands out the numeric suffix of sale numbers.
type SequenceSource interface {
	NextSaleSequence(ctx context.Context, at time.Time) (int64, error)
}

// LocalSequence is an in-process counter used when no shared counter is configured.
type LocalSequence struct {
	n atomic.Int64
}

func (s *LocalSequence) NextSaleSequence(context.Context, time.Time) (int64, error) {
	return s.n.Add(1), nil
}

// FormatSaleNumber renders SALE-<yyyymmddHHMMSS>-<seq> in UTC.
func FormatSaleNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("SALE-%s-%d", at.UTC().Format(saleNumberLayout), seq)
}
