// Package handlers exposes the daemon's state over HTTP.
package handlers

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"adhan/internal/events"
	"adhan/internal/firestate"
	"adhan/internal/notify"
	"adhan/internal/prayer"
	"adhan/internal/scheduler"
	"adhan/internal/settings"
)

// API bundles the collaborators the handlers read from. DB, Hub and Bus
// are optional.
type API struct {
	DB         *sqlx.DB
	Provider   prayer.Provider
	Store      *firestate.Store
	Settings   *settings.Holder
	Dispatcher *notify.Dispatcher
	Hub        *notify.Hub
	Bus        *events.Bus
	Clock      scheduler.Clock
	// Sender is used for test-firing a single service.
	Sender  notify.Sender
	Version string

	started time.Time
}

// Register mounts every route on mux. protect wraps the rate-limited
// endpoints and may be nil.
func (a *API) Register(mux *http.ServeMux, protect func(http.HandlerFunc) http.HandlerFunc) {
	if protect == nil {
		protect = func(h http.HandlerFunc) http.HandlerFunc { return h }
	}
	if a.Clock == nil {
		a.Clock = scheduler.SystemClock{}
	}
	if a.Sender == nil {
		a.Sender = notify.ShoutrrrSender{}
	}
	a.started = time.Now()

	mux.HandleFunc("GET /health", a.Health)
	mux.HandleFunc("GET /api/today", a.Today)
	mux.HandleFunc("GET /api/state", a.State)
	mux.HandleFunc("POST /api/state/prune", a.PruneState)
	mux.HandleFunc("POST /api/notify/test", protect(a.TestNotify))

	if a.Hub != nil {
		mux.HandleFunc("GET /api/ws", a.Hub.HandleConnection)
	}

	if a.DB != nil {
		mux.HandleFunc("GET /api/history", a.History)
		mux.HandleFunc("GET /api/notifications/providers", a.ListProviders)
		mux.HandleFunc("GET /api/notifications/services", a.ListServices)
		mux.HandleFunc("GET /api/notifications/services/{id}", a.GetService)
		mux.HandleFunc("POST /api/notifications/services", a.CreateService)
		mux.HandleFunc("PUT /api/notifications/services/{id}", a.UpdateService)
		mux.HandleFunc("DELETE /api/notifications/services/{id}", a.DeleteService)
		mux.HandleFunc("POST /api/notifications/services/{id}/test", protect(a.TestService))
	}
}

// Health handles GET /health
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": a.Version,
		"uptime":  time.Since(a.started).Round(time.Second).String(),
		"fired":   a.Store.Len(),
	}
	if a.Hub != nil {
		resp["ws_clients"] = a.Hub.ActiveConnections()
	}
	if a.Dispatcher != nil {
		resp["channels"] = a.Dispatcher.Channels()
	}
	JSONResponse(w, resp)
}
