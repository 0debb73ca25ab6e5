package main

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/slidesync/slidesync/internal/app"
	"github.com/slidesync/slidesync/internal/config"
	"github.com/slidesync/slidesync/internal/gateway"
)

func setupServer(cfg *config.Config, cm *gateway.ConnectionManager, application *app.App) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", cm.HandleWebSocket)
	mux.HandleFunc("/ws/stats", handleStats(cm))
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/sets", handleListSets(application))
	mux.HandleFunc("/admin/reload", handleReload(application))
	mux.Handle("/", http.FileServer(http.Dir(cfg.PublicDir)))

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    cfg.Addr,
		Handler: h2c.NewHandler(c.Handler(mux), &http2.Server{}),
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

func handleStats(cm *gateway.ConnectionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, cm.GetStats())
	}
}

// handleListSets enumerates the sets the deck loader can materialize,
// without creating registry entries for them.
func handleListSets(application *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metas, err := application.ListAvailable()
		if err != nil {
			log.Error().Err(err).Msg("failed to list available sets")
			http.Error(w, "failed to list sets", http.StatusInternalServerError)
			return
		}
		writeJSON(w, metas)
	}
}

// handleReload re-runs the deck loader for one live set and broadcasts
// the replacement deck to its room.
func handleReload(application *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		setID := r.URL.Query().Get("set")
		if setID == "" {
			http.Error(w, "set is required", http.StatusBadRequest)
			return
		}

		if err := application.ReloadDeck(setID); err != nil {
			log.Error().Err(err).Str("set_id", setID).Msg("deck reload failed")
			http.Error(w, "reload failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
