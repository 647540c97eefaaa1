package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	applog "finance-tracker/internal/log"
	"finance-tracker/internal/models"
	"finance-tracker/internal/storage"
)

// Expense form errors, shown to the user as flash messages.
var (
	errMissingFields   = errors.New("All fields are required!")
	errInvalidAmount   = errors.New("Please enter a valid amount!")
	errInvalidDate     = errors.New("Please enter a valid date!")
	errInvalidCategory = errors.New("Please choose a valid category!")
)

const msgExpenseNotFound = "Expense not found!"

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Flash       *Flash
	Username    string
	Today       string
	Expenses    []models.Expense
	Stats       models.Stats
	MonthlyData []models.MonthTotal
	Categories  []string
}

// Dashboard renders the user's expenses together with their statistics.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	logger := applog.FromContext(r.Context()).With(applog.FieldUserID, user.ID)

	expenses, err := h.db.ListExpenses(r.Context(), user.ID)
	if err != nil {
		logger.Error("ListExpenses error", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	summary, err := h.stats.Summary(r.Context(), user.ID)
	if err != nil {
		logger.Error("Summary error", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	trend, err := h.stats.MonthlyTrend(r.Context(), user.ID)
	if err != nil {
		logger.Error("MonthlyTrend error", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, r, "index.html", DashboardViewModel{
		Flash:       popFlash(w, r),
		Username:    user.Username,
		Today:       h.now().Format(models.DateLayout),
		Expenses:    expenses,
		Stats:       summary,
		MonthlyData: trend,
		Categories:  models.Categories,
	})
}

// AddExpense handles the creation of a new expense.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	e, err := parseExpenseForm(r)
	if err != nil {
		flashRedirect(w, r, FlashError, err.Error())
		return
	}
	e.UserID = user.ID

	id, err := h.db.CreateExpense(r.Context(), e)
	if err != nil {
		applog.FromContext(r.Context()).Error("CreateExpense error", applog.FieldUserID, user.ID, applog.FieldError, err)
		flashRedirect(w, r, FlashError, msgGenericError)
		return
	}
	applog.FromContext(r.Context()).Info("Expense created", applog.FieldUserID, user.ID, applog.FieldExpenseID, id)
	flashRedirect(w, r, FlashSuccess, "Expense added successfully!")
}

// EditExpense handles the update of an existing expense.
func (h *Handlers) EditExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	e, err := parseExpenseForm(r)
	if err != nil {
		flashRedirect(w, r, FlashError, err.Error())
		return
	}
	id, ok := expenseID(r)
	if !ok {
		flashRedirect(w, r, FlashError, msgExpenseNotFound)
		return
	}
	e.ID = id
	e.UserID = user.ID

	if err := h.db.UpdateExpense(r.Context(), e); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			flashRedirect(w, r, FlashError, msgExpenseNotFound)
			return
		}
		applog.FromContext(r.Context()).Error("UpdateExpense error", applog.FieldUserID, user.ID, applog.FieldExpenseID, id, applog.FieldError, err)
		flashRedirect(w, r, FlashError, msgGenericError)
		return
	}
	flashRedirect(w, r, FlashSuccess, "Expense updated successfully!")
}

// DeleteExpense handles the removal of an expense.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, ok := expenseID(r)
	if !ok {
		flashRedirect(w, r, FlashError, msgExpenseNotFound)
		return
	}

	if err := h.db.DeleteExpense(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			flashRedirect(w, r, FlashError, msgExpenseNotFound)
			return
		}
		applog.FromContext(r.Context()).Error("DeleteExpense error", applog.FieldUserID, user.ID, applog.FieldExpenseID, id, applog.FieldError, err)
		flashRedirect(w, r, FlashError, msgGenericError)
		return
	}
	flashRedirect(w, r, FlashSuccess, "Expense deleted successfully!")
}

func expenseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// flashRedirect sends the user back to the dashboard with a message.
func flashRedirect(w http.ResponseWriter, r *http.Request, kind, message string) {
	setFlash(w, kind, message)
	http.Redirect(w, r, "/", http.StatusFound)
}

// parseExpenseForm validates the description, amount, category and date
// fields shared by the add and edit forms.
func parseExpenseForm(r *http.Request) (*models.Expense, error) {
	if err := r.ParseForm(); err != nil {
		return nil, errMissingFields
	}
	desc := strings.TrimSpace(r.FormValue("description"))
	amountStr := strings.TrimSpace(r.FormValue("amount"))
	category := strings.TrimSpace(r.FormValue("category"))
	dateStr := strings.TrimSpace(r.FormValue("date"))

	if desc == "" || amountStr == "" || category == "" || dateStr == "" {
		return nil, errMissingFields
	}

	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, err
	}

	date, err := time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return nil, errInvalidDate
	}

	if !models.IsCategory(category) {
		return nil, errInvalidCategory
	}

	return &models.Expense{
		Description: desc,
		Amount:      amount,
		Category:    category,
		Date:        date,
	}, nil
}

// parseAmount accepts a positive decimal up to models.MaxAmount and
// rounds it to cents.
func parseAmount(s string) (float64, error) {
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(amount) {
		return 0, errInvalidAmount
	}
	// Rounding can overflow, so the range is checked on the result.
	amount = math.Round(amount*100) / 100
	if math.IsInf(amount, 0) || amount <= 0 || amount > models.MaxAmount {
		return 0, errInvalidAmount
	}
	return amount, nil
}

// formatCurrency renders an amount as $1,234.56.
func formatCurrency(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := fmt.Sprintf("%.2f", amount)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + "$" + b.String() + "." + frac
}
