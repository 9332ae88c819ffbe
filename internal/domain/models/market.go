package models

import "time"

// Quote is a single streamed market tick.
type Quote struct {
	Symbol    string  `json:"s"`
	Price     float64 `json:"p"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"` // unix ms
}

// AssetWindow is a rolling view of one symbol's recent closes and volumes,
// oldest first.
type AssetWindow struct {
	Symbol  string
	Closes  []float64
	Volumes []float64
	Times   []time.Time
}

// Len returns the number of observations in the window.
func (w AssetWindow) Len() int { return len(w.Closes) }

// LastClose returns the most recent close, or 0 when empty.
func (w AssetWindow) LastClose() float64 {
	if len(w.Closes) == 0 {
		return 0
	}
	return w.Closes[len(w.Closes)-1]
}

// MarketSnapshot is a point-in-time view over all tracked symbols plus the
// reference asset. Snapshots are read-only once built.
type MarketSnapshot struct {
	TakenAt   time.Time
	Reference AssetWindow
	Assets    map[string]AssetWindow
}

// Symbols returns the tracked symbols in the snapshot, excluding the reference.
func (s *MarketSnapshot) Symbols() []string {
	out := make([]string, 0, len(s.Assets))
	for sym := range s.Assets {
		if sym == s.Reference.Symbol {
			continue
		}
		out = append(out, sym)
	}
	return out
}

// Window returns the rolling window for symbol, false when untracked.
func (s *MarketSnapshot) Window(symbol string) (AssetWindow, bool) {
	w, ok := s.Assets[symbol]
	return w, ok
}
