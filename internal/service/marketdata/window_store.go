package marketdata

import (
	"sync"
	"time"

	"DriftWatch/internal/domain/models"
)

// barInterval is the bucketing granularity for incoming ticks.
const barInterval = time.Minute

type bar struct {
	start  time.Time
	close  float64
	volume float64
}

type symbolWindow struct {
	bars []bar
}

// WindowStore aggregates streamed ticks into per-symbol rolling windows of
// minute bars. It is the in-memory source the snapshot provider reads from.
type WindowStore struct {
	mu       sync.RWMutex
	capacity int
	windows  map[string]*symbolWindow
}

func NewWindowStore(capacity int) *WindowStore {
	if capacity <= 0 {
		capacity = 240
	}
	return &WindowStore{
		capacity: capacity,
		windows:  make(map[string]*symbolWindow),
	}
}

// Append folds one tick into the symbol's current bar, opening a new bar
// when the tick crosses a bucket boundary.
func (s *WindowStore) Append(q *models.Quote) {
	bucket := time.UnixMilli(q.Timestamp).UTC().Truncate(barInterval)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[q.Symbol]
	if !ok {
		w = &symbolWindow{bars: make([]bar, 0, s.capacity)}
		s.windows[q.Symbol] = w
	}

	if n := len(w.bars); n > 0 && w.bars[n-1].start.Equal(bucket) {
		w.bars[n-1].close = q.Price
		w.bars[n-1].volume += q.Volume
		return
	}
	w.bars = append(w.bars, bar{start: bucket, close: q.Price, volume: q.Volume})
	if len(w.bars) > s.capacity {
		w.bars = w.bars[len(w.bars)-s.capacity:]
	}
}

// Window returns a copy of the symbol's rolling window, oldest first.
func (s *WindowStore) Window(symbol string) models.AssetWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := models.AssetWindow{Symbol: symbol}
	w, ok := s.windows[symbol]
	if !ok {
		return out
	}
	out.Closes = make([]float64, len(w.bars))
	out.Volumes = make([]float64, len(w.bars))
	out.Times = make([]time.Time, len(w.bars))
	for i, b := range w.bars {
		out.Closes[i] = b.close
		out.Volumes[i] = b.volume
		out.Times[i] = b.start
	}
	return out
}

// Depth returns the number of bars currently held for symbol.
func (s *WindowStore) Depth(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.windows[symbol]; ok {
		return len(w.bars)
	}
	return 0
}
