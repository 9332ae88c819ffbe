package features

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestLogReturns(t *testing.T) {
	closes := []float64{100, 110, 99}
	got := LogReturns(closes)
	if len(got) != 2 {
		t.Fatalf("expected 2 returns, got %d", len(got))
	}
	if !almostEqual(got[0], math.Log(1.1), 1e-12) {
		t.Fatalf("unexpected first return %v", got[0])
	}
	if LogReturns([]float64{100}) != nil {
		t.Fatalf("expected nil for short series")
	}
}

func TestLogReturnsNonPositive(t *testing.T) {
	got := LogReturns([]float64{100, 0, 50})
	if got[0] != 0 || got[1] != 0 {
		t.Fatalf("expected zero returns around non-positive close, got %v", got)
	}
}

func TestBeta(t *testing.T) {
	ref := []float64{0.01, -0.02, 0.015, 0.005, -0.01}
	asset := make([]float64, len(ref))
	for i, r := range ref {
		asset[i] = 2 * r
	}
	if got := Beta(asset, ref); !almostEqual(got, 2.0, 1e-9) {
		t.Fatalf("expected beta 2, got %v", got)
	}
	if got := Beta(asset, []float64{0, 0, 0, 0, 0}); got != 0 {
		t.Fatalf("expected 0 for flat reference, got %v", got)
	}
}

func TestCorrelation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2, 4, 6, 8, 10}
	if got := Correlation(xs, ys); !almostEqual(got, 1.0, 1e-9) {
		t.Fatalf("expected corr 1, got %v", got)
	}
	inv := []float64{10, 8, 6, 4, 2}
	if got := Correlation(xs, inv); !almostEqual(got, -1.0, 1e-9) {
		t.Fatalf("expected corr -1, got %v", got)
	}
	if got := Correlation(xs, []float64{3, 3, 3, 3, 3}); got != 0 {
		t.Fatalf("expected 0 for degenerate series, got %v", got)
	}
}

func TestZScore(t *testing.T) {
	xs := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 5}
	got := ZScore(xs, 10)
	if got != 0 {
		t.Fatalf("expected 0 for zero-variance window, got %v", got)
	}

	xs = []float64{1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 10}
	got = ZScore(xs, 10)
	if got <= 3 {
		t.Fatalf("expected large z-score, got %v", got)
	}
}

func TestCumulativeReturn(t *testing.T) {
	closes := []float64{50, 80, 100, 120}
	if got := CumulativeReturn(closes, 3); !almostEqual(got, 0.5, 1e-12) {
		t.Fatalf("expected 0.5, got %v", got)
	}
	if got := CumulativeReturn(closes, 10); got != 0 {
		t.Fatalf("expected 0 for short series, got %v", got)
	}
}

func TestTail(t *testing.T) {
	xs := []float64{1, 2, 3}
	if got := Tail(xs, 2); len(got) != 2 || got[0] != 2 {
		t.Fatalf("unexpected tail %v", got)
	}
	if got := Tail(xs, 5); len(got) != 3 {
		t.Fatalf("expected full slice, got %v", got)
	}
	if got := Tail(xs, 0); got != nil {
		t.Fatalf("expected nil for n=0")
	}
}
