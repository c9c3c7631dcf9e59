package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"adhan/internal/db"
	"adhan/internal/notify"
)

var notifyLog = log.With().Str("component", "handlers").Logger()

// serviceRequest is the body of create and update calls. Either a raw
// config_json or structured config_fields must be supplied.
type serviceRequest struct {
	Name             string            `json:"name"`
	ServiceType      string            `json:"service_type"`
	ConfigJSON       string            `json:"config_json"`
	ConfigFields     map[string]string `json:"config_fields"`
	Enabled          bool              `json:"enabled"`
	NotifyOnAdhan    bool              `json:"notify_on_adhan"`
	NotifyOnReminder bool              `json:"notify_on_reminder"`
}

func (req serviceRequest) service(id int64, configJSON string) *notify.NotificationService {
	return &notify.NotificationService{
		ID:               id,
		Name:             req.Name,
		ServiceType:      req.ServiceType,
		ConfigJSON:       configJSON,
		Enabled:          req.Enabled,
		NotifyOnAdhan:    req.NotifyOnAdhan,
		NotifyOnReminder: req.NotifyOnReminder,
	}
}

// ListProviders returns the provider field schemas for the frontend wizard.
// GET /api/notifications/providers
func (a *API) ListProviders(w http.ResponseWriter, r *http.Request) {
	defs := make([]notify.ProviderDef, 0)
	for _, t := range notify.ProviderTypes() {
		def, _ := notify.GetProviderDef(t)
		defs = append(defs, def)
	}
	JSONResponse(w, defs)
}

// ListServices returns all configured services with secrets masked.
// GET /api/notifications/services
func (a *API) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := notify.ListServices(a.DB)
	if err != nil {
		notifyLog.Error().Err(err).Msg("list notification services")
		JSONError(w, "Failed to list services", http.StatusInternalServerError)
		return
	}
	for i := range services {
		services[i].ConfigJSON = maskConfigSecrets(services[i].ServiceType, services[i].ConfigJSON)
	}
	JSONResponse(w, services)
}

// GetService returns a single service. Password fields are masked.
// GET /api/notifications/services/{id}
func (a *API) GetService(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		JSONError(w, "Invalid service ID", http.StatusBadRequest)
		return
	}

	svc, err := notify.GetService(a.DB, id)
	if err != nil {
		notifyLog.Error().Err(err).Int64("service_id", id).Msg("get notification service")
		JSONError(w, "Failed to get service", http.StatusInternalServerError)
		return
	}
	if svc == nil {
		JSONError(w, "Service not found", http.StatusNotFound)
		return
	}
	svc.ConfigJSON = maskConfigSecrets(svc.ServiceType, svc.ConfigJSON)
	JSONResponse(w, svc)
}

// CreateService adds a new service.
// POST /api/notifications/services
func (a *API) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.ServiceType == "" {
		JSONError(w, "name and service_type are required", http.StatusBadRequest)
		return
	}

	configJSON := req.ConfigJSON
	if req.ConfigFields != nil {
		built, err := buildConfigJSON(req.ServiceType, req.ConfigFields)
		if err != nil {
			JSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		configJSON = built
	}
	if configJSON == "" {
		JSONError(w, "config_json or config_fields is required", http.StatusBadRequest)
		return
	}

	svc := req.service(0, configJSON)
	id, err := notify.CreateService(a.DB, svc)
	if err != nil {
		notifyLog.Error().Err(err).Msg("create notification service")
		JSONError(w, "Failed to create service", http.StatusInternalServerError)
		return
	}
	svc.ID = id
	svc.ConfigJSON = maskConfigSecrets(svc.ServiceType, svc.ConfigJSON)
	notifyLog.Info().Str("service", svc.Name).Str("type", svc.ServiceType).Msg("notification service created")
	JSONStatus(w, http.StatusCreated, svc)
}

// UpdateService modifies a service. Masked secrets in config_fields keep
// their stored values.
// PUT /api/notifications/services/{id}
func (a *API) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		JSONError(w, "Invalid service ID", http.StatusBadRequest)
		return
	}

	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	existing, err := notify.GetService(a.DB, id)
	if err != nil {
		notifyLog.Error().Err(err).Int64("service_id", id).Msg("get notification service")
		JSONError(w, "Failed to update service", http.StatusInternalServerError)
		return
	}
	if existing == nil {
		JSONError(w, "Service not found", http.StatusNotFound)
		return
	}
	if req.Name == "" {
		req.Name = existing.Name
	}
	if req.ServiceType == "" {
		req.ServiceType = existing.ServiceType
	}

	configJSON := req.ConfigJSON
	if req.ConfigFields != nil {
		mergeExistingSecrets(req.ServiceType, req.ConfigFields, existing.ConfigJSON)
		built, err := buildConfigJSON(req.ServiceType, req.ConfigFields)
		if err != nil {
			JSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		configJSON = built
	}
	if configJSON == "" {
		configJSON = existing.ConfigJSON
	}

	if err := notify.UpdateService(a.DB, req.service(id, configJSON)); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			JSONError(w, "Service not found", http.StatusNotFound)
			return
		}
		notifyLog.Error().Err(err).Int64("service_id", id).Msg("update notification service")
		JSONError(w, "Failed to update service", http.StatusInternalServerError)
		return
	}
	JSONResponse(w, map[string]string{"status": "updated"})
}

// DeleteService removes a service.
// DELETE /api/notifications/services/{id}
func (a *API) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		JSONError(w, "Invalid service ID", http.StatusBadRequest)
		return
	}

	if err := notify.DeleteService(a.DB, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			JSONError(w, "Service not found", http.StatusNotFound)
			return
		}
		notifyLog.Error().Err(err).Int64("service_id", id).Msg("delete notification service")
		JSONError(w, "Failed to delete service", http.StatusInternalServerError)
		return
	}
	JSONResponse(w, map[string]string{"status": "deleted"})
}

// TestService sends a test message through one service only.
// POST /api/notifications/services/{id}/test
func (a *API) TestService(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		JSONError(w, "Invalid service ID", http.StatusBadRequest)
		return
	}

	svc, err := notify.GetService(a.DB, id)
	if err != nil || svc == nil {
		JSONError(w, "Service not found", http.StatusNotFound)
		return
	}

	var cfg struct {
		ShoutrrrURL string `json:"shoutrrr_url"`
	}
	if err := json.Unmarshal([]byte(svc.ConfigJSON), &cfg); err != nil || cfg.ShoutrrrURL == "" {
		JSONError(w, "Service config missing shoutrrr_url", http.StatusBadRequest)
		return
	}

	msg := notify.TestMessage(a.Clock.Now())
	if err := a.Sender.Send(cfg.ShoutrrrURL, msg.Text()); err != nil {
		notifyLog.Warn().Err(err).Str("service", svc.Name).Msg("test fire failed")
		JSONResponse(w, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}
	JSONResponse(w, map[string]interface{}{"success": true, "message": "Test notification sent"})
}

// History returns recent notification records.
// GET /api/history?limit=50
func (a *API) History(w http.ResponseWriter, r *http.Request) {
	history, err := notify.RecentHistory(a.DB, queryInt(r, "limit", 50, 500))
	if err != nil {
		notifyLog.Error().Err(err).Msg("notification history")
		JSONError(w, "Failed to get history", http.StatusInternalServerError)
		return
	}
	JSONResponse(w, history)
}

// ── helpers ──────────────────────────────────────────────────────────────

// buildConfigJSON validates fields, builds the Shoutrrr URL, and returns
// the combined JSON string for config_json storage.
func buildConfigJSON(serviceType string, fields map[string]string) (string, error) {
	shoutrrrURL, err := notify.BuildShoutrrrURL(serviceType, fields)
	if err != nil {
		return "", err
	}
	cfgData, err := json.Marshal(map[string]interface{}{
		"shoutrrr_url": shoutrrrURL,
		"fields":       fields,
	})
	if err != nil {
		return "", err
	}
	return string(cfgData), nil
}

// mergeExistingSecrets replaces masked password placeholder values in fields
// with the actual secrets from the stored config.
func mergeExistingSecrets(serviceType string, fields map[string]string, existingConfigJSON string) {
	var oldCfg struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal([]byte(existingConfigJSON), &oldCfg); err != nil || oldCfg.Fields == nil {
		return
	}

	def, ok := notify.GetProviderDef(serviceType)
	if !ok {
		return
	}
	for _, f := range def.Fields {
		if f.Type == notify.FieldPassword && fields[f.Key] == notify.SecretMask {
			if original, exists := oldCfg.Fields[f.Key]; exists {
				fields[f.Key] = original
			}
		}
	}
}

// maskConfigSecrets masks password fields in a config_json string for API
// responses. A raw config without fields still hides the URL, since it
// usually embeds a token.
func maskConfigSecrets(serviceType, configJSON string) string {
	var cfg struct {
		ShoutrrrURL string            `json:"shoutrrr_url"`
		Fields      map[string]string `json:"fields"`
	}
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return configJSON
	}

	out := map[string]interface{}{"shoutrrr_url": notify.SecretMask}
	if cfg.Fields != nil {
		out["fields"] = notify.MaskSecrets(serviceType, cfg.Fields)
	}
	masked, err := json.Marshal(out)
	if err != nil {
		return configJSON
	}
	return string(masked)
}
