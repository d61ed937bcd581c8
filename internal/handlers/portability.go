package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/dailylog"
	"github.com/carpenike/fitcoach/internal/importers"
	"github.com/carpenike/fitcoach/internal/middleware"
	"github.com/carpenike/fitcoach/internal/models"
)

// maxImportBytes bounds uploaded import files.
const maxImportBytes = 5 << 20

// Portability serves data export and import for the signed-in user.
type Portability struct {
	DB *sql.DB
}

// Export streams the user's data as a download. format=json (default)
// returns the full export; format=csv returns daily logs between the
// optional from and to dates.
func (h *Portability) Export(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	stamp := time.Now().UTC().Format("20060102")

	switch r.URL.Query().Get("format") {
	case "", "json":
		export, err := models.BuildExportJSON(h.DB, user.ID)
		if err != nil {
			log.Errorf("handlers: build export for user %d: %v", user.ID, err)
			writeError(w, http.StatusInternalServerError, "internal", "Could not export your data.")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="fitcoach-%s.json"`, stamp))
		if err := models.WriteExportJSON(w, export); err != nil {
			log.Errorf("handlers: write export for user %d: %v", user.ID, err)
		}

	case "csv":
		from, to, ok := exportRange(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="fitcoach-logs-%s.csv"`, stamp))
		if err := models.WriteExportLogCSV(w, h.DB, user.ID, from, to); err != nil {
			log.Errorf("handlers: write log csv for user %d: %v", user.ID, err)
		}

	default:
		writeError(w, http.StatusBadRequest, "invalid_format", "Format must be json or csv.")
	}
}

// exportRange reads the optional from/to query parameters. Missing bounds
// cover all dates.
func exportRange(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	from, to := "0001-01-01", "9999-12-31"
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *string
	}{{"from", &from}, {"to", &to}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		d, err := dailylog.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "Dates must be YYYY-MM-DD.")
			return "", "", false
		}
		*p.dst = d
	}
	if from > to {
		writeError(w, http.StatusBadRequest, "invalid_range", "from must not be after to.")
		return "", "", false
	}
	return from, to, true
}

// Import accepts a FitCoach JSON export or a daily log CSV as the raw
// request body. Nothing is written unless the whole file is valid.
func (h *Portability) Import(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "Import files are limited to 5 MiB.")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "Could not read the upload.")
		return
	}

	pf, err := importers.Parse(data)
	if err != nil {
		if errors.Is(err, importers.ErrUnknownFormat) {
			writeError(w, http.StatusBadRequest, "unknown_format", "Upload a FitCoach JSON export or a daily log CSV.")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_file", err.Error())
		return
	}

	res, err := models.ExecuteImport(h.DB, user.ID, pf)
	if err != nil {
		if errors.Is(err, models.ErrInvalidImport) {
			writeError(w, http.StatusUnprocessableEntity, "invalid_import", err.Error())
			return
		}
		log.Errorf("handlers: import for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "Could not import your data.")
		return
	}

	log.WithFields(log.Fields{
		"user_id": user.ID,
		"format":  pf.Format,
		"plans":   res.PlansImported,
		"logs":    res.LogsImported,
	}).Info("handlers: import complete")
	writeJSON(w, http.StatusOK, res)
}
