package models

import "fmt"

// AnalyzerError wraps a failure of one analyzer for one (symbol, pattern)
// pair. The scan pass logs it and continues.
type AnalyzerError struct {
	Symbol  string
	Pattern PatternType
	Err     error
}

func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("analyzer %s failed for %s: %v", e.Pattern, e.Symbol, e.Err)
}

func (e *AnalyzerError) Unwrap() error { return e.Err }

// DetectorUnavailable marks a detector invocation that errored or timed out.
// The variant's result is treated as empty and the error recorded in its
// performance sample.
type DetectorUnavailable struct {
	Variant ScannerVariant
	Err     error
}

func (e *DetectorUnavailable) Error() string {
	return fmt.Sprintf("detector %s unavailable: %v", e.Variant, e.Err)
}

func (e *DetectorUnavailable) Unwrap() error { return e.Err }

// AlertDeliveryError wraps a best-effort delivery failure. Logged, never
// retried in-band.
type AlertDeliveryError struct {
	Sink string
	Err  error
}

func (e *AlertDeliveryError) Error() string {
	return fmt.Sprintf("alert delivery via %s failed: %v", e.Sink, e.Err)
}

func (e *AlertDeliveryError) Unwrap() error { return e.Err }
