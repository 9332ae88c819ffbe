package service

import (
	"context"

	"DriftWatch/internal/domain/models"
)

// PatternAnalyzer inspects one symbol's window against the reference asset
// and optionally yields an opportunity candidate for its pattern type.
//
// Implementations must be stateless, side-effect free and safe to invoke
// concurrently across symbols. Insufficient data yields (nil, nil), never an
// error or a panic.
type PatternAnalyzer interface {
	Pattern() models.PatternType
	Analyze(ctx context.Context, symbol string, snap *models.MarketSnapshot) (*models.Opportunity, error)
}
