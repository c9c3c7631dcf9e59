package settings

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"adhan/internal/events"
)

// Handler serves the settings API. Every successful mutation refreshes
// Holder so the scheduler sees it on its next tick.
type Handler struct {
	DB     *sqlx.DB
	Holder *Holder
	// Bus, when set, receives a SettingsChanged event per mutation.
	Bus *events.Bus

	logger zerolog.Logger
}

func NewHandler(database *sqlx.DB, holder *Holder) *Handler {
	return &Handler{
		DB:     database,
		Holder: holder,
		logger: log.With().Str("component", "settings").Logger(),
	}
}

// Register mounts the settings routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/settings", h.GetAllSettings)
	mux.HandleFunc("GET /api/settings/{category}", h.GetSettingsByCategory)
	mux.HandleFunc("PUT /api/settings/{category}/{key}", h.UpdateSetting)
	mux.HandleFunc("POST /api/settings/reset", h.ResetAll)
	mux.HandleFunc("GET /api/config", h.GetConfig)
	mux.HandleFunc("PUT /api/config", h.PutConfig)
}

// GetAllSettings handles GET /api/settings[?grouped=true]
func (h *Handler) GetAllSettings(w http.ResponseWriter, r *http.Request) {
	var (
		out interface{}
		err error
	)
	if r.URL.Query().Get("grouped") == "true" {
		out, err = GetSettingsGrouped(h.DB)
	} else {
		out, err = GetAllSettings(h.DB)
	}
	if err != nil {
		h.internalError(w, err, "list settings")
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// GetSettingsByCategory handles GET /api/settings/{category}
func (h *Handler) GetSettingsByCategory(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	rows, err := GetSettingsByCategory(h.DB, category)
	if err != nil {
		h.internalError(w, err, "list category")
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, "unknown category "+category)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// UpdateSetting handles PUT /api/settings/{category}/{key} {"value": "..."}
func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	category, key := r.PathValue("category"), r.PathValue("key")

	var update SettingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := UpdateSetting(h.DB, category, key, update.Value); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, ErrNotFound) {
			code = http.StatusNotFound
		}
		respondError(w, code, err.Error())
		return
	}
	h.changed(category + "." + key)

	setting, err := GetSetting(h.DB, category, key)
	if err != nil {
		h.internalError(w, err, "read back setting")
		return
	}
	respondJSON(w, http.StatusOK, setting)
}

// ResetAll handles POST /api/settings/reset
func (h *Handler) ResetAll(w http.ResponseWriter, r *http.Request) {
	if err := ResetAllToDefaults(h.DB); err != nil {
		h.internalError(w, err, "reset settings")
		return
	}
	h.changed("*")

	grouped, err := GetSettingsGrouped(h.DB)
	if err != nil {
		h.internalError(w, err, "list settings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "all settings reset to defaults",
		"settings": grouped,
	})
}

// GetConfig handles GET /api/config and returns the live snapshot.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Holder.Get())
}

// PutConfig handles PUT /api/config. Prayers missing from per_prayer keep
// their current values.
func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	var in Config
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.Holder.Update(func(c *Config) {
		c.AudioEnabled = in.AudioEnabled
		c.NotificationsEnabled = in.NotificationsEnabled
		c.QuietMode = in.QuietMode
		c.TriggerWindowSeconds = in.TriggerWindowSeconds
		c.ReminderMinutesBefore = in.ReminderMinutesBefore
		for n, p := range in.PerPrayer {
			c.PerPrayer[n] = p
		}
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.publish("config")
	respondJSON(w, http.StatusOK, cfg)
}

// changed reloads the snapshot after a direct table write.
func (h *Handler) changed(what string) {
	if h.Holder != nil {
		if err := h.Holder.Reload(); err != nil {
			return
		}
	}
	h.publish(what)
}

func (h *Handler) publish(what string) {
	h.logger.Info().Str("setting", what).Msg("settings changed")
	if h.Bus == nil {
		return
	}
	h.Bus.Publish(events.Event{
		Type:     events.SettingsChanged,
		Severity: events.SeverityInfo,
		Message:  "settings updated",
		Metadata: map[string]string{"setting": what},
	})
}

func (h *Handler) internalError(w http.ResponseWriter, err error, op string) {
	h.logger.Error().Err(err).Str("op", op).Msg("settings request failed")
	respondError(w, http.StatusInternalServerError, "internal error")
}

func respondJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}
