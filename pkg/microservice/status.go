package microservice

import (
	"encoding/json"
	"net/http"

	"github.com/illmade-knight/go-livestatus/pkg/lookup"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/rs/zerolog"
)

// StatusResponse is the body of GET /status/{id}.
type StatusResponse struct {
	ID        string        `json:"id"`
	Available bool          `json:"available"`
	Status    *types.Status `json:"status,omitempty"`
}

// RegisterStatusRoutes adds GET /status (watched keys) and GET /status/{id}
// (last known value, fetched on demand when nothing is cached) to mux.
func RegisterStatusRoutes(mux *http.ServeMux, fetch lookup.Fetcher, keys func() []string, logger zerolog.Logger) {
	logger = logger.With().Str("component", "StatusRoutes").Logger()

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"keys": keys()}, logger)
	})

	mux.HandleFunc("GET /status/{id}", func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("id")
		if _, ok := types.ParseEntityID(key); !ok {
			http.Error(w, "invalid entity id", http.StatusBadRequest)
			return
		}
		st, ok, err := fetch(r.Context(), key)
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("Status lookup failed.")
			http.Error(w, "status source unavailable", http.StatusBadGateway)
			return
		}
		resp := StatusResponse{ID: key, Available: ok}
		if ok {
			resp.Status = &st
		}
		writeJSON(w, http.StatusOK, resp, logger)
	})
}

func writeJSON(w http.ResponseWriter, code int, body any, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn().Err(err).Msg("Failed to write response.")
	}
}
