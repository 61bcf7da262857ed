package monitor

import (
	"net/http"

	"github.com/gorilla/mux"

	"yuributton/internal/logger"
)

// SetupRoutes registers the viewer websocket, the status endpoint and the
// log endpoints.
func SetupRoutes(hub *HubService, mirror *Mirror, states StateSource, logger *logger.Logger) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/view", ViewWebsocketHandler(hub, logger)).Methods(http.MethodGet)
	router.HandleFunc("/api/status", StatusHandler(mirror, states)).Methods(http.MethodGet)

	router.HandleFunc("/logs/{level}", ShowLogsHandler(logger)).Methods(http.MethodGet)
	router.HandleFunc("/logs/{level}/clear", ClearLogsHandler(logger)).Methods(http.MethodPost)

	return router
}
