// Package score implements the deterministic accuracy scoring rule for
// resolved predictions.
//
// A score is expressed in basis points: 10000 = a perfect prediction.
// For predicted p and actual a (both positive):
//
//	score = 10000                         if p == a
//	score = max(0, 10000 - pctDiff)       otherwise
//	pctDiff = floor(|p - a| * 10000 / a)
//
// The percentage base is always the ACTUAL price, never the predicted one.
// Overshooting and undershooting by the same absolute amount therefore
// yield different scores. The floor division (truncating, not rounding)
// and the asymmetric denominator must be preserved exactly for
// compatibility with previously recorded scores.
//
// All arithmetic uses shopspring/decimal — never float64 for money.
package score

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/predyx/prediction-engine/internal/model"
)

// ErrNonPositivePrice is returned by Valid for zero or negative prices.
var ErrNonPositivePrice = errors.New("score: price must be positive")

var bpScale = decimal.NewFromInt(model.ScaleBasisPoints)

// Score computes the accuracy of a prediction in basis points [0, 10000].
// Both inputs must be positive; callers reject non-positive prices before
// calling (see Valid). Pure and deterministic.
func Score(predicted, actual decimal.Decimal) int64 {
	if predicted.Equal(actual) {
		return model.ScaleBasisPoints
	}

	diff := predicted.Sub(actual).Abs()

	// Truncating integer division: QuoRem with precision 0 yields the
	// exact floor for positive operands, with no binary float involved.
	pctDiff, _ := diff.Mul(bpScale).QuoRem(actual, 0)

	if pctDiff.GreaterThanOrEqual(bpScale) {
		return 0
	}
	return model.ScaleBasisPoints - pctDiff.IntPart()
}

// Accurate reports whether a score clears the configured tolerance:
// score >= 10000 - threshold.
func Accurate(scoreBP, thresholdBP int64) bool {
	return scoreBP >= model.ScaleBasisPoints-thresholdBP
}

// Valid checks that a price is usable as a scoring input.
func Valid(price decimal.Decimal) error {
	if price.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositivePrice
	}
	return nil
}
