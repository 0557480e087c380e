package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmcpheron/jcn-bot/internal/handler/chatapi"
	"github.com/jmcpheron/jcn-bot/internal/handler/gateway"
	middlewarePkg "github.com/jmcpheron/jcn-bot/internal/middleware"
	"github.com/jmcpheron/jcn-bot/pkg/utils"
)

// NewRouter wires HTTP routes to core services. runner may be nil when no
// model backend is configured; the chat surface then answers 503.
func NewRouter(runner chatapi.TurnRunner, gate chatapi.Gate, logs chatapi.LogReader) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		if runner == nil {
			api.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "model backend not configured")
			})
			return
		}

		chatHandler := chatapi.New(runner, gate, logs)
		chatHandler.RegisterRoutes(api)

		gatewayHandler := gateway.New(runner, gate)
		gatewayHandler.RegisterRoutes(api)
	})

	return r
}
