package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"finance-tracker/internal/charts"
	applog "finance-tracker/internal/log"
	"finance-tracker/internal/models"
)

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Stats       models.Stats        `json:"stats"`
	MonthlyData []models.MonthTotal `json:"monthly_data"`
}

// APIStats returns the user's statistics and trend series as JSON.
func (h *Handlers) APIStats(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	logger := applog.FromContext(r.Context()).With(applog.FieldUserID, user.ID)

	summary, err := h.stats.Summary(r.Context(), user.ID)
	if err != nil {
		logger.Error("Summary error", applog.FieldError, err)
		writeJSON(w, r, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	trend, err := h.stats.MonthlyTrend(r.Context(), user.ID)
	if err != nil {
		logger.Error("MonthlyTrend error", applog.FieldError, err)
		writeJSON(w, r, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, r, http.StatusOK, StatsResponse{Stats: summary, MonthlyData: trend})
}

// TrendChart renders the six month trend as a bar chart.
func (h *Handlers) TrendChart(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	logger := applog.FromContext(r.Context()).With(applog.FieldUserID, user.ID)

	trend, err := h.stats.MonthlyTrend(r.Context(), user.ID)
	if err != nil {
		logger.Error("MonthlyTrend error", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	img, err := charts.MonthlyTrend(trend)
	if err != nil {
		logger.Error("Trend chart error", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writePNG(w, img)
}

// CategoryChart renders the spending per category as a pie chart. Users
// without expenses get 204 No Content.
func (h *Handlers) CategoryChart(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	logger := applog.FromContext(r.Context()).With(applog.FieldUserID, user.ID)

	totals, err := h.db.CategoryTotals(r.Context(), user.ID)
	if err != nil {
		logger.Error("CategoryTotals error", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	img, err := charts.CategoryBreakdown(totals)
	if errors.Is(err, charts.ErrNoData) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		logger.Error("Category chart error", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writePNG(w, img)
}

func writePNG(w http.ResponseWriter, img []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	_, _ = w.Write(img)
}
