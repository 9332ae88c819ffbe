package marketdata

import (
	"testing"
	"time"

	"DriftWatch/internal/domain/models"
)

func tick(symbol string, price, volume float64, at time.Time) *models.Quote {
	return &models.Quote{Symbol: symbol, Price: price, Volume: volume, Timestamp: at.UnixMilli()}
}

func TestWindowStoreBucketsByMinute(t *testing.T) {
	s := NewWindowStore(240)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	s.Append(tick("ETHUSDT", 100, 1, base.Add(5*time.Second)))
	s.Append(tick("ETHUSDT", 101, 2, base.Add(30*time.Second)))
	s.Append(tick("ETHUSDT", 99, 3, base.Add(70*time.Second)))

	if got := s.Depth("ETHUSDT"); got != 2 {
		t.Fatalf("Depth = %d, want 2", got)
	}
	w := s.Window("ETHUSDT")
	if w.Closes[0] != 101 {
		t.Errorf("first bar close = %v, want 101 (last tick in bucket)", w.Closes[0])
	}
	if w.Volumes[0] != 3 {
		t.Errorf("first bar volume = %v, want 3 (summed)", w.Volumes[0])
	}
	if w.Closes[1] != 99 || w.Volumes[1] != 3 {
		t.Errorf("second bar = (%v, %v), want (99, 3)", w.Closes[1], w.Volumes[1])
	}
	if !w.Times[0].Equal(base) || !w.Times[1].Equal(base.Add(time.Minute)) {
		t.Errorf("bar starts = %v, %v", w.Times[0], w.Times[1])
	}
}

func TestWindowStoreCapacity(t *testing.T) {
	s := NewWindowStore(3)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.Append(tick("ETHUSDT", float64(100+i), 1, base.Add(time.Duration(i)*time.Minute)))
	}

	if got := s.Depth("ETHUSDT"); got != 3 {
		t.Fatalf("Depth = %d, want 3", got)
	}
	w := s.Window("ETHUSDT")
	if w.Closes[0] != 102 || w.Closes[2] != 104 {
		t.Errorf("window = %v, want oldest 102 newest 104", w.Closes)
	}
}

func TestWindowStoreReturnsCopy(t *testing.T) {
	s := NewWindowStore(240)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.Append(tick("ETHUSDT", 100, 1, base))

	w := s.Window("ETHUSDT")
	w.Closes[0] = -1

	if got := s.Window("ETHUSDT").Closes[0]; got != 100 {
		t.Errorf("stored close mutated to %v", got)
	}
}

func TestWindowStoreUnknownSymbol(t *testing.T) {
	s := NewWindowStore(240)
	w := s.Window("UNKNOWN")
	if w.Symbol != "UNKNOWN" || len(w.Closes) != 0 {
		t.Errorf("unexpected window for unknown symbol: %+v", w)
	}
	if s.Depth("UNKNOWN") != 0 {
		t.Errorf("Depth for unknown symbol should be 0")
	}
}
