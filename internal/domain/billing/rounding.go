package billing

import "github.com/shopspring/decimal"

var secondsPerMinute = decimal.NewFromInt(60)

// MinutesFromSeconds converts a call duration to billable whole minutes.
// Partial minutes always round up, so 1s bills as 1 minute and 90s as 2.
// Non-positive durations yield 0.
func MinutesFromSeconds(seconds decimal.Decimal) int64 {
	if !seconds.IsPositive() {
		return 0
	}
	return seconds.Div(secondsPerMinute).Ceil().IntPart()
}

// AmountCents prices minutes at ratePerMinute (in major currency units),
// rounding half away from zero to whole cents.
func AmountCents(minutes int64, ratePerMinute decimal.Decimal) int64 {
	return decimal.NewFromInt(minutes).
		Mul(ratePerMinute).
		Mul(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
