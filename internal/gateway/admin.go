package gateway

import (
	"net/http"
	"slices"

	"github.com/flemzord/codeproxy/internal/config"
	"github.com/flemzord/codeproxy/internal/core"
	"github.com/flemzord/codeproxy/internal/security"
)

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Loaded    bool   `json:"loaded"`
}

// handleGetAllModules lists all compiled modules and marks the loaded ones.
func (g *Gateway) handleGetAllModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var loaded []string
		if g.reloader != nil {
			if cfg, err := config.Load(g.reloader.ConfigPath()); err == nil {
				loaded = config.Resolve(cfg)
			}
		}

		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
				Loaded:    slices.Contains(loaded, string(m.ID)),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetConfig returns the current config file with secrets redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.reloader == nil || g.reloader.ConfigPath() == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		cfg, err := config.Load(g.reloader.ConfigPath())
		if err != nil {
			http.Error(w, "failed to load config", http.StatusInternalServerError)
			return
		}

		generic, err := config.ToMap(cfg)
		if err != nil {
			http.Error(w, "failed to serialize config", http.StatusInternalServerError)
			return
		}

		g.configRedactor().RedactMap(generic)
		writeJSON(w, http.StatusOK, generic)
	}
}

// handleReloadConfig triggers a hot-reload of the configuration.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.reloader == nil {
			http.Error(w, "reload not available", http.StatusServiceUnavailable)
			return
		}

		if err := g.reloader.ReloadNow(r.Context()); err != nil {
			g.logger.Error("config reload failed", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}

// configRedactor returns a redactor that also knows the credentials
// registered by provider modules.
func (g *Gateway) configRedactor() *security.Redactor {
	r := security.NewRedactor()
	if g.appCtx == nil {
		return r
	}
	if svc, ok := g.appCtx.Service(security.ServiceName); ok {
		if store, ok := svc.(*security.CredentialStore); ok {
			r.SyncCredentials(store)
		}
	}
	return r
}
