package handlers

import (
	"net/http"

	applog "budget-tracker/internal/log"
)

// exportDateFormat matches the original export contract: YYYY-MM-DD HH:MM.
const exportDateFormat = "2006-01-02 15:04"

// ExportRecord is one row of the /api/export payload.
type ExportRecord struct {
	ID       int64   `json:"id"`
	Type     string  `json:"type"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Comment  string  `json:"comment"`
	Date     string  `json:"date"`
}

// Export returns the current user's entries as a flat JSON array, newest
// first.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	entries, err := h.db.ListEntries(user.ID)
	if err != nil {
		applog.FromContext(r.Context()).Error("export entries", applog.FieldError, err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	records := make([]ExportRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, ExportRecord{
			ID:       e.ID,
			Type:     e.Type,
			Category: e.Category,
			Amount:   e.Amount,
			Comment:  e.Comment,
			Date:     e.Date.Format(exportDateFormat),
		})
	}

	writeJSON(w, http.StatusOK, records)
}
