package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/ghuser/procureflow/services/procurement/application/handlers"
	appsvcs "github.com/ghuser/procureflow/services/procurement/application/services"
)

// ProcurementRoutes registers procurement endpoints on the provided chi router.
func ProcurementRoutes(r chi.Router, svcs *appsvcs.Services) {
	r.Group(func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", handlers.NewPostTaskHandler(svcs).Execute)
			r.Post("/execute", handlers.NewPostExecuteTaskHandler(svcs).Execute)
		})
		r.Get("/queue/status", handlers.NewGetQueueStatusHandler(svcs).Execute)
		r.Get("/agents/health", handlers.NewGetAgentHealthHandler(svcs).Execute)
		r.Route("/organizations/{orgID}", func(r chi.Router) {
			r.Post("/procurement-cycle", handlers.NewPostProcurementCycleHandler(svcs).Execute)
			r.Post("/auto-reorder", handlers.NewPostAutoReorderHandler(svcs).Execute)
		})
		r.Post("/negotiations/{id}/replies", handlers.NewPostNegotiationReplyHandler(svcs).Execute)
	})
}
