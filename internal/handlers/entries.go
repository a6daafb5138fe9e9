package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	applog "budget-tracker/internal/log"
	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"
)

// IndexResponse is the JSON body of GET /: the user's entries, newest first,
// plus the aggregates the original dashboard showed.
type IndexResponse struct {
	Username           string                  `json:"username"`
	IncomeSum          float64                 `json:"income_sum"`
	ExpenseSum         float64                 `json:"expense_sum"`
	Balance            float64                 `json:"balance"`
	Entries            []models.Entry          `json:"entries"`
	IncomesByCategory  []storage.CategoryTotal `json:"incomes_by_category"`
	ExpensesByCategory []storage.CategoryTotal `json:"expenses_by_category"`
}

// Index lists the current user's entries together with balance and
// per-category breakdowns.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	logger := applog.FromContext(r.Context())

	entries, err := h.db.ListEntries(user.ID)
	if err != nil {
		logger.Error("list entries", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	totals, err := h.db.GetTotals(user.ID)
	if err != nil {
		logger.Error("get totals", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	incomes, err := h.db.GetCategoryTotals(user.ID, models.TypeIncome)
	if err != nil {
		logger.Error("income category totals", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	expenses, err := h.db.GetCategoryTotals(user.ID, models.TypeExpense)
	if err != nil {
		logger.Error("expense category totals", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if entries == nil {
		entries = []models.Entry{}
	}
	if incomes == nil {
		incomes = []storage.CategoryTotal{}
	}
	if expenses == nil {
		expenses = []storage.CategoryTotal{}
	}

	writeJSON(w, http.StatusOK, IndexResponse{
		Username:           user.Username,
		IncomeSum:          totals.IncomeSum,
		ExpenseSum:         totals.ExpenseSum,
		Balance:            totals.Balance,
		Entries:            entries,
		IncomesByCategory:  incomes,
		ExpensesByCategory: expenses,
	})
}

// AddEntry creates a new entry from the submitted form. The entry type must
// be income or expense; the amount must be a finite non-negative number.
// Category stays free-form.
func (h *Handlers) AddEntry(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	if err := r.ParseForm(); err != nil {
		redirectWithNotice(w, r, "/", "invalid-form")
		return
	}

	entryType := r.FormValue("type")
	if entryType != models.TypeIncome && entryType != models.TypeExpense {
		redirectWithNotice(w, r, "/", "invalid-type")
		return
	}

	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if err != nil || amount < 0 || math.IsInf(amount, 0) || math.IsNaN(amount) {
		redirectWithNotice(w, r, "/", "invalid-amount")
		return
	}

	category := r.FormValue("category")
	comment := r.FormValue("comment")

	entry, err := h.db.CreateEntry(user.ID, entryType, category, amount, comment, time.Time{})
	if err != nil {
		applog.FromContext(r.Context()).Error("create entry", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	applog.FromContext(r.Context()).Info("entry created",
		applog.FieldUser, user.Username,
		applog.FieldEntryID, entry.ID,
	)
	http.Redirect(w, r, "/", http.StatusFound)
}

// DeleteEntry removes an entry owned by the current user. Deleting someone
// else's entry is refused and leaves the entry in place.
func (h *Handlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	entryID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		redirectWithNotice(w, r, "/", "not-found")
		return
	}

	switch err := h.db.DeleteEntry(user.ID, entryID); {
	case errors.Is(err, storage.ErrNotFound):
		redirectWithNotice(w, r, "/", "not-found")
	case errors.Is(err, storage.ErrForbidden):
		redirectWithNotice(w, r, "/", "not-yours")
	case err != nil:
		applog.FromContext(r.Context()).Error("delete entry", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		applog.FromContext(r.Context()).Info("entry deleted",
			applog.FieldUser, user.Username,
			applog.FieldEntryID, entryID,
		)
		http.Redirect(w, r, "/", http.StatusFound)
	}
}
