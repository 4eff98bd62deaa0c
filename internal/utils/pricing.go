package utils

import (
	"time"

	"toolrent-backend/internal/domain"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// CeilDays rounds a duration up to whole days. Non-positive durations yield 0.
func CeilDays(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	days := int64(d / day)
	if d%day > 0 {
		days++
	}
	return days
}

// BillableDays is the number of days charged for a window: any started day
// counts, and a window is never charged less than one day.
func BillableDays(w domain.Window) int64 {
	days := CeilDays(w.Duration())
	if days < 1 {
		return 1
	}
	return days
}

// DailyRate sums the frozen per-day prices of a booking's items.
func DailyRate(prices []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(decimal.Zero, prices...)
}

// TotalPrice is the daily rate of all items multiplied by the billable days of w.
func TotalPrice(prices []decimal.Decimal, w domain.Window) decimal.Decimal {
	return DailyRate(prices).Mul(decimal.NewFromInt(BillableDays(w)))
}

func ReservationItemPrices(items []domain.ReservationItem) []decimal.Decimal {
	prices := make([]decimal.Decimal, len(items))
	for i, it := range items {
		prices[i] = it.PricePerDay
	}
	return prices
}

func LoanItemPrices(items []domain.LoanItem) []decimal.Decimal {
	prices := make([]decimal.Decimal, len(items))
	for i, it := range items {
		prices[i] = it.PricePerDay
	}
	return prices
}

// LateFee returns the fee for returning at returnedAt a loan due at due, and
// false when the return is on time. Returning exactly at due is on time.
func LateFee(due, returnedAt time.Time, ratePerDay decimal.Decimal) (decimal.Decimal, bool) {
	if !returnedAt.After(due) {
		return decimal.Zero, false
	}
	days := CeilDays(returnedAt.Sub(due))
	return ratePerDay.Mul(decimal.NewFromInt(days)), true
}
