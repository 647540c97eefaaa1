// Package charts renders spending statistics as PNG images.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"finance-tracker/internal/models"

	"github.com/wcharczuk/go-chart/v2"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no data to chart")

var palette = []chart.Style{
	{FillColor: chart.ColorBlue, StrokeColor: chart.ColorBlue},
	{FillColor: chart.ColorGreen, StrokeColor: chart.ColorGreen},
	{FillColor: chart.ColorRed, StrokeColor: chart.ColorRed},
	{FillColor: chart.ColorOrange, StrokeColor: chart.ColorOrange},
	{FillColor: chart.ColorCyan, StrokeColor: chart.ColorCyan},
	{FillColor: chart.ColorYellow, StrokeColor: chart.ColorYellow},
}

func currency(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("$%.0f", f)
	}
	return ""
}

// MonthlyTrend draws one bar per month of the trend series.
func MonthlyTrend(months []models.MonthTotal) ([]byte, error) {
	if len(months) == 0 {
		return nil, ErrNoData
	}

	bars := make([]chart.Value, 0, len(months))
	var peak float64
	for _, m := range months {
		peak = math.Max(peak, m.Total)
		bars = append(bars, chart.Value{Label: m.Month, Value: m.Total})
	}
	// go-chart cannot derive a range from a flat series, so it is fixed.
	top := 1.0
	if peak > 0 {
		top = peak * 1.1
	}

	graph := chart.BarChart{
		Title:    "Monthly spending",
		Width:    800,
		Height:   400,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
			FillColor: chart.ColorWhite,
		},
		YAxis: chart.YAxis{
			ValueFormatter: currency,
			Range:          &chart.ContinuousRange{Min: 0, Max: top},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render monthly trend: %w", err)
	}
	return buffer.Bytes(), nil
}

// CategoryBreakdown draws a pie of spending per category.
func CategoryBreakdown(totals []models.CategoryTotal) ([]byte, error) {
	var sum float64
	for _, ct := range totals {
		sum += ct.Total
	}
	if sum <= 0 {
		return nil, ErrNoData
	}

	values := make([]chart.Value, 0, len(totals))
	for i, ct := range totals {
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%.1f%%)", ct.Category, ct.Total/sum*100),
			Value: ct.Total,
			Style: palette[i%len(palette)],
		})
	}

	pie := chart.PieChart{
		Title:  "Spending by category",
		Width:  600,
		Height: 600,
		Values: values,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := pie.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render category breakdown: %w", err)
	}
	return buffer.Bytes(), nil
}
