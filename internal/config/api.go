package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
)

const masked = "***"

// ConfigAPI exposes a masked, read-mostly view of the running configuration.
type ConfigAPI struct {
	cfg    *Config
	mu     sync.RWMutex
	router *mux.Router
	reload func() (*Config, error)
}

// NewConfigAPI serves cfg. reload re-reads configuration for
// POST /configure/reload; nil disables that route.
func NewConfigAPI(cfg *Config, reload func() (*Config, error)) *ConfigAPI {
	api := &ConfigAPI{
		cfg:    cfg,
		router: mux.NewRouter(),
		reload: reload,
	}
	api.routes()
	return api
}

func (api *ConfigAPI) Router() *mux.Router {
	return api.router
}

// Register mounts the config routes on r.
func (api *ConfigAPI) Register(r *mux.Router) {
	r.HandleFunc("/configure", api.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/configure/", api.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/configure/validate", api.validateConfig).Methods(http.MethodPost)
	if api.reload != nil {
		r.HandleFunc("/configure/reload", api.reloadConfig).Methods(http.MethodPost)
	}
	r.HandleFunc("/configure/{section}", api.getSection).Methods(http.MethodGet)
}

func (api *ConfigAPI) routes() {
	api.Register(api.router)
}

func (api *ConfigAPI) getConfig(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	defer api.mu.RUnlock()
	writeJSON(w, http.StatusOK, api.safeConfigCopy())
}

func (api *ConfigAPI) getSection(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	defer api.mu.RUnlock()

	safe := api.safeConfigCopy()
	section := mux.Vars(r)["section"]
	var out any

	switch section {
	case "server":
		out = safe.Server
	case "auth":
		out = safe.Auth
	case "llm":
		out = safe.LLM
	case "storage":
		out = safe.Storage
	case "minio":
		out = safe.MinIO
	case "negotiation":
		out = safe.Negotiation
	case "log":
		out = safe.Log
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown section: %s", section)})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *ConfigAPI) validateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid config payload: %v", err)})
		return
	}
	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid configuration: %v", err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "message": "configuration is valid"})
}

func (api *ConfigAPI) reloadConfig(w http.ResponseWriter, r *http.Request) {
	reloaded, err := api.reload()
	if err == nil {
		err = reloaded.Validate()
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to reload config: %v", err)})
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	*api.cfg = *reloaded
	writeJSON(w, http.StatusOK, api.safeConfigCopy())
}

func (api *ConfigAPI) safeConfigCopy() *Config {
	return api.cfg.Masked()
}

// Masked returns a copy of c with every credential replaced by "***".
func (c *Config) Masked() *Config {
	m := *c
	m.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	for _, secret := range []*string{
		&m.Auth.Token,
		&m.LLM.APIKey,
		&m.Storage.EncryptionKey,
		&m.Storage.EncryptionSalt,
		&m.MinIO.AccessKey,
		&m.MinIO.SecretKey,
	} {
		if *secret != "" {
			*secret = masked
		}
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN != "" {
		m.Storage.DSN = masked
	}
	return &m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
