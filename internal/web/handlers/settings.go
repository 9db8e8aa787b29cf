package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/opsboard/internal/config"
	"github.com/saltyorg/opsboard/internal/maintenance"
)

// SettingsGet returns the editable runtime settings
func (h *Handlers) SettingsGet(w http.ResponseWriter, r *http.Request) {
	all, err := h.db.GetAllSettings()
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	settings := make(map[string]string, len(config.EditableKeys))
	for key := range config.EditableKeys {
		settings[key] = all[key]
	}

	resp := map[string]any{"settings": settings}
	if h.maintenanceMgr != nil {
		resp["maintenance"] = map[string]any{
			"schedule": h.maintenanceMgr.Schedule(),
			"lastRun":  h.maintenanceMgr.LastRun(),
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// SettingsUpdate validates and stores settings. Unknown keys are rejected
// and nothing is written when any value is invalid. Settings apply to every
// company, so only admins of the setup company may change them.
func (h *Handlers) SettingsUpdate(w http.ResponseWriter, r *http.Request) {
	owner, err := h.db.OwnerCompanyID()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if caller(r).CompanyID != owner {
		h.jsonError(w, "Instance settings can only be changed by the setup company", http.StatusForbidden)
		return
	}

	var req map[string]string
	if !h.decode(w, r, &req) {
		return
	}
	if len(req) == 0 {
		h.jsonError(w, "No settings provided", http.StatusBadRequest)
		return
	}

	keys := make([]string, 0, len(req))
	for key, value := range req {
		value = strings.TrimSpace(value)
		req[key] = value
		if _, ok := config.EditableKeys[key]; !ok {
			h.jsonError(w, "Unknown setting: "+key, http.StatusBadRequest)
			return
		}
		if !config.ValidateValue(key, value) {
			h.jsonError(w, "Invalid value for "+key, http.StatusBadRequest)
			return
		}
		if key == config.KeyMaintenanceSchedule {
			if err := maintenance.ValidateSchedule(value); err != nil {
				h.jsonError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	restartRequired := false
	for _, key := range keys {
		if err := h.db.SetSetting(key, req[key]); err != nil {
			h.handleError(w, r, err)
			return
		}
		if strings.HasPrefix(key, "log.") {
			restartRequired = true
		}
	}

	if schedule, ok := req[config.KeyMaintenanceSchedule]; ok && h.maintenanceMgr != nil {
		if err := h.maintenanceMgr.Reschedule(schedule); err != nil {
			log.Error().Err(err).Str("schedule", schedule).Msg("Failed to apply maintenance schedule")
		}
	}

	log.Info().Strs("keys", keys).Msg("Settings updated")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":         "Settings saved",
		"restartRequired": restartRequired,
	})
}
