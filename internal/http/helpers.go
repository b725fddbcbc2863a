package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"plata/internal/core"
	"plata/internal/storage"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeStorageError maps storage errors onto HTTP status codes.
func writeStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func parseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, errors.New("invalid date, expected YYYY-MM-DD")
	}
	return core.Date{Time: t}, nil
}

// parseYearMonth reads year and month query params, defaulting to the
// current month when both are absent.
func parseYearMonth(r *http.Request) (year, month int, err error) {
	now := time.Now()
	year, month = now.Year(), int(now.Month())

	if v := r.URL.Query().Get("year"); v != "" {
		year, err = strconv.Atoi(v)
		if err != nil || year < 1970 || year > 2200 {
			return 0, 0, errors.New("invalid year")
		}
	}
	if v := r.URL.Query().Get("month"); v != "" {
		month, err = strconv.Atoi(v)
		if err != nil || month < 1 || month > 12 {
			return 0, 0, errors.New("invalid month")
		}
	}
	return year, month, nil
}

// parsePathYearMonth reads {year} and {month} path segments.
func parsePathYearMonth(r *http.Request) (year, month int, err error) {
	year, err = strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 1970 || year > 2200 {
		return 0, 0, errors.New("invalid year")
	}
	month, err = strconv.Atoi(r.PathValue("month"))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, errors.New("invalid month")
	}
	return year, month, nil
}

func parseYear(r *http.Request) (int, error) {
	v := r.URL.Query().Get("year")
	if v == "" {
		return time.Now().Year(), nil
	}
	year, err := strconv.Atoi(v)
	if err != nil || year < 1970 || year > 2200 {
		return 0, errors.New("invalid year")
	}
	return year, nil
}

// parseType reads the type query param, defaulting to EXPENSE.
func parseType(r *http.Request) (core.TransactionType, error) {
	v := r.URL.Query().Get("type")
	if v == "" {
		return core.Expense, nil
	}
	t := core.TransactionType(v)
	if !t.Valid() {
		return "", core.ErrInvalidType
	}
	return t, nil
}
