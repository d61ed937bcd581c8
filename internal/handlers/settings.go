package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/llm"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/scheduler"
)

// ConnectionTester checks a notification channel.
type ConnectionTester interface {
	TestConnection() error
}

// Maintainer runs and reports background maintenance.
type Maintainer interface {
	Status() scheduler.Status
	RunOnce() scheduler.Status
}

// Settings handles runtime settings management (admin-only).
type Settings struct {
	DB          *sql.DB
	Notify      ConnectionTester // optional
	Maintenance Maintainer       // optional
}

type maintenanceResponse struct {
	LastRun       *time.Time `json:"last_run"`
	NextRun       *time.Time `json:"next_run"`
	PlansRepaired int64      `json:"plans_repaired"`
	LogsPruned    int64      `json:"logs_pruned"`
	IntervalHours int        `json:"interval_hours"`
	RetentionDays int        `json:"retention_days"`
}

func newMaintenanceResponse(st scheduler.Status) maintenanceResponse {
	out := maintenanceResponse{
		PlansRepaired: st.PlansRepaired,
		LogsPruned:    st.LogsPruned,
		IntervalHours: st.IntervalHours,
		RetentionDays: st.RetentionDays,
	}
	if !st.LastRun.IsZero() {
		out.LastRun = &st.LastRun
		out.NextRun = &st.NextRun
	}
	return out
}

type settingResponse struct {
	Key         string   `json:"key"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	FieldType   string   `json:"field_type"`
	Options     []string `json:"options,omitempty"`
	Value       string   `json:"value"`
	Source      string   `json:"source"`
	ReadOnly    bool     `json:"read_only"`
}

type settingGroupResponse struct {
	Name     string            `json:"name"`
	Settings []settingResponse `json:"settings"`
}

func listSettings(db *sql.DB) []settingGroupResponse {
	groups := []settingGroupResponse{}
	for _, g := range models.ListSettingsByCategoryOrdered(db) {
		out := settingGroupResponse{Name: g.Name}
		for _, sv := range g.Settings {
			def := models.GetSettingDefinition(sv.Key)
			if def == nil {
				continue
			}
			out.Settings = append(out.Settings, settingResponse{
				Key:         sv.Key,
				Label:       def.Label,
				Description: def.Description,
				FieldType:   def.FieldType,
				Options:     def.Options,
				Value:       sv.Masked,
				Source:      sv.Source,
				ReadOnly:    sv.ReadOnly,
			})
		}
		groups = append(groups, out)
	}
	return groups
}

// List returns all settings grouped by category. Sensitive values are masked.
func (h *Settings) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listSettings(h.DB))
}

// Update applies a {"key": "value"} map. An empty value reverts the key to
// its default. Env-controlled keys and masked placeholders are skipped.
func (h *Settings) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var problems []string
	for key, value := range req {
		def := models.GetSettingDefinition(key)
		if def == nil {
			problems = append(problems, "unknown setting "+key)
			continue
		}
		if models.GetSettingValue(h.DB, key).ReadOnly {
			problems = append(problems, def.Label+" is set by environment variable")
			continue
		}
		if def.Sensitive && isMaskedPlaceholder(value) {
			continue
		}

		value = strings.TrimSpace(value)
		var err error
		if value == "" {
			err = models.DeleteSetting(h.DB, key)
		} else {
			err = models.SetSetting(h.DB, key, value)
		}
		if err != nil {
			log.Errorf("handlers: update setting %q: %v", key, err)
			problems = append(problems, "failed to save "+def.Label)
		}
	}

	if len(problems) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid_settings", strings.Join(problems, "; "))
		return
	}
	writeJSON(w, http.StatusOK, listSettings(h.DB))
}

// isMaskedPlaceholder returns true if the value is the masked placeholder
// (sent back when a sensitive field wasn't changed).
func isMaskedPlaceholder(v string) bool {
	return strings.ContainsRune(v, '•')
}

// TestConnection pings the configured completion provider.
func (h *Settings) TestConnection(w http.ResponseWriter, r *http.Request) {
	provider, err := llm.NewProviderFromSettings(h.DB)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "not_configured", "Set a provider, model and API key first.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		log.Warnf("handlers: test LLM connection: %v", err)
		msg := err.Error()
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.UserMessage()
		}
		writeError(w, http.StatusBadGateway, "connection_failed", msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Connected to " + provider.Name() + "."})
}

// TestNotify sends a test message to every broadcast URL.
func (h *Settings) TestNotify(w http.ResponseWriter, r *http.Request) {
	if h.Notify == nil {
		writeError(w, http.StatusUnprocessableEntity, "not_configured", "Notifications are disabled.")
		return
	}
	if err := h.Notify.TestConnection(); err != nil {
		writeError(w, http.StatusBadGateway, "notify_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Test notification sent."})
}

// MaintenanceStatus reports the last background maintenance run.
func (h *Settings) MaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	if h.Maintenance == nil {
		writeError(w, http.StatusNotFound, "not_configured", "Background maintenance is not running.")
		return
	}
	writeJSON(w, http.StatusOK, newMaintenanceResponse(h.Maintenance.Status()))
}

// RunMaintenance runs every maintenance task now.
func (h *Settings) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	if h.Maintenance == nil {
		writeError(w, http.StatusNotFound, "not_configured", "Background maintenance is not running.")
		return
	}
	writeJSON(w, http.StatusOK, newMaintenanceResponse(h.Maintenance.RunOnce()))
}
