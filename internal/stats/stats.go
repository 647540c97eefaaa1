// Package stats computes per-user spending summaries and the monthly trend
// series shown on the dashboard.
package stats

import (
	"context"
	"fmt"
	"time"

	"finance-tracker/internal/models"
)

// TrendMonths is the number of buckets in the monthly trend series.
const TrendMonths = 6

// Store is the storage the aggregator reads from.
type Store interface {
	SumExpenses(ctx context.Context, userID int64, from, to time.Time) (float64, error)
	CategoryTotals(ctx context.Context, userID int64) ([]models.CategoryTotal, error)
	CountExpenses(ctx context.Context, userID int64) (int, error)
}

// Aggregator computes statistics for one user at a time.
type Aggregator struct {
	store Store
	now   func() time.Time
}

// NewAggregator returns an Aggregator reading from store. A nil now uses
// time.Now.
func NewAggregator(store Store, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{store: store, now: now}
}

// Bucket is a half-open calendar month [Start, End).
type Bucket struct {
	Label string
	Start time.Time
	End   time.Time
}

// TrendBuckets returns the current month and the TrendMonths-1 months
// before it, oldest first.
func TrendBuckets(now time.Time) []Bucket {
	buckets := make([]Bucket, 0, TrendMonths)
	for k := TrendMonths - 1; k >= 0; k-- {
		start := time.Date(now.Year(), now.Month()-time.Month(k), 1, 0, 0, 0, 0, time.UTC)
		buckets = append(buckets, Bucket{
			Label: start.Format("Jan"),
			Start: start,
			End:   start.AddDate(0, 1, 0),
		})
	}
	return buckets
}

// Summary returns the headline figures for userID.
func (a *Aggregator) Summary(ctx context.Context, userID int64) (models.Stats, error) {
	var s models.Stats
	today := truncateDay(a.now())
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	weekAgo := today.AddDate(0, 0, -7)

	var err error
	if s.Total, err = a.store.SumExpenses(ctx, userID, time.Time{}, time.Time{}); err != nil {
		return s, fmt.Errorf("total: %w", err)
	}
	if s.Monthly, err = a.store.SumExpenses(ctx, userID, monthStart, time.Time{}); err != nil {
		return s, fmt.Errorf("monthly: %w", err)
	}
	if s.Weekly, err = a.store.SumExpenses(ctx, userID, weekAgo, time.Time{}); err != nil {
		return s, fmt.Errorf("weekly: %w", err)
	}
	if s.ByCategory, err = a.store.CategoryTotals(ctx, userID); err != nil {
		return s, fmt.Errorf("by category: %w", err)
	}
	if s.TransactionCount, err = a.store.CountExpenses(ctx, userID); err != nil {
		return s, fmt.Errorf("count: %w", err)
	}
	if s.TransactionCount > 0 {
		s.Average = s.Total / float64(s.TransactionCount)
	}
	return s, nil
}

// MonthlyTrend returns the spending of userID in each TrendBuckets month.
func (a *Aggregator) MonthlyTrend(ctx context.Context, userID int64) ([]models.MonthTotal, error) {
	buckets := TrendBuckets(truncateDay(a.now()))
	out := make([]models.MonthTotal, 0, len(buckets))
	for _, b := range buckets {
		total, err := a.store.SumExpenses(ctx, userID, b.Start, b.End)
		if err != nil {
			return nil, fmt.Errorf("trend %s: %w", b.Start.Format("2006-01"), err)
		}
		out = append(out, models.MonthTotal{Month: b.Label, Total: total})
	}
	return out, nil
}

// truncateDay drops the time of day, keeping the local calendar date.
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
