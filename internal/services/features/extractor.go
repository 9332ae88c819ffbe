package features

import "math"

// LogReturns computes log returns r_t = ln(C_t / C_{t-1}) over a close series.
// It returns a slice of length len(closes)-1, or nil if insufficient data.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		cur := closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation of xs.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	sum2 := 0.0
	for _, x := range xs {
		d := x - m
		sum2 += d * d
	}
	v := sum2 / float64(len(xs)-1)
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}

// Covariance returns the sample covariance of two equal-length series.
func Covariance(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}
	mx := Mean(xs)
	my := Mean(ys)
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += (xs[i] - mx) * (ys[i] - my)
	}
	return sum / float64(n-1)
}

// Correlation returns the Pearson correlation of two equal-length series,
// or 0 when either side is degenerate.
func Correlation(xs, ys []float64) float64 {
	sx := StdDev(xs)
	sy := StdDev(ys)
	if sx == 0 || sy == 0 {
		return 0
	}
	return Covariance(xs, ys) / (sx * sy)
}

// Beta returns the rolling-covariance beta of asset returns against reference
// returns: cov(asset, ref) / var(ref). Zero reference variance yields 0.
func Beta(asset, ref []float64) float64 {
	sr := StdDev(ref)
	if sr == 0 {
		return 0
	}
	return Covariance(asset, ref) / (sr * sr)
}

// Tail returns the last n elements of xs (all of xs when shorter).
func Tail(xs []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// ZScore returns how many standard deviations the last value of xs sits from
// the mean of the preceding window. Degenerate windows yield 0.
func ZScore(xs []float64, window int) float64 {
	if window < 2 || len(xs) < window+1 {
		return 0
	}
	hist := xs[len(xs)-window-1 : len(xs)-1]
	sd := StdDev(hist)
	if sd == 0 {
		return 0
	}
	return (xs[len(xs)-1] - Mean(hist)) / sd
}

// RealizedVolatility computes annualized realized volatility over the latest
// rolling window using the provided number of bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	w := Tail(logReturns, window)
	sd := StdDev(w)
	return sd * math.Sqrt(barsPerYear)
}

// CumulativeReturn returns the total simple return over the last n closes.
func CumulativeReturn(closes []float64, n int) float64 {
	if n < 2 || len(closes) < n {
		return 0
	}
	first := closes[len(closes)-n]
	last := closes[len(closes)-1]
	if first <= 0 {
		return 0
	}
	return last/first - 1
}
