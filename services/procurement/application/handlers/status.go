package handlers

import (
	"net/http"

	"github.com/ghuser/procureflow/pkg/httpx"
	appsvcs "github.com/ghuser/procureflow/services/procurement/application/services"
)

// QueueStatusResponse reports the task queue counts.
type QueueStatusResponse struct {
	Waiting   int64  `json:"waiting"   example:"3"`
	Delayed   int64  `json:"delayed"   example:"1"`
	Active    int64  `json:"active"    example:"2"`
	Completed int64  `json:"completed" example:"120"`
	Failed    int64  `json:"failed"    example:"4"`
	Degraded  bool   `json:"degraded,omitempty"`
	Error     string `json:"error,omitempty"`
} // @name QueueStatusResponse

// AgentHealthResponse reports each agent's health check.
type AgentHealthResponse struct {
	Status string            `json:"status" example:"ok"`
	Agents map[string]string `json:"agents"`
} // @name AgentHealthResponse

// GetQueueStatusHandler handles GET /queue/status requests.
type GetQueueStatusHandler struct {
	svc *appsvcs.Services
}

// NewGetQueueStatusHandler returns a GetQueueStatusHandler backed by the given services.
func NewGetQueueStatusHandler(svc *appsvcs.Services) *GetQueueStatusHandler {
	return &GetQueueStatusHandler{svc: svc}
}

// Execute returns the queue counts. An unreachable or slow queue yields zero
// counts with degraded=true rather than an error.
//
//	@Summary		Queue status
//	@Tags			queue
//	@Produce		json
//	@Success		200	{object}	QueueStatusResponse
//	@Router			/queue/status [get]
func (h *GetQueueStatusHandler) Execute(w http.ResponseWriter, r *http.Request) {
	s := h.svc.Orchestrator.Status(r.Context())
	httpx.JSON(w, http.StatusOK, QueueStatusResponse{
		Waiting:   s.Waiting,
		Delayed:   s.Delayed,
		Active:    s.Active,
		Completed: s.Completed,
		Failed:    s.Failed,
		Degraded:  s.Degraded,
		Error:     s.Error,
	})
}

// GetAgentHealthHandler handles GET /agents/health requests.
type GetAgentHealthHandler struct {
	svc *appsvcs.Services
}

// NewGetAgentHealthHandler returns a GetAgentHealthHandler backed by the given services.
func NewGetAgentHealthHandler(svc *appsvcs.Services) *GetAgentHealthHandler {
	return &GetAgentHealthHandler{svc: svc}
}

// Execute runs every agent's health check.
//
//	@Summary		Agent health
//	@Tags			agents
//	@Produce		json
//	@Success		200	{object}	AgentHealthResponse
//	@Failure		503	{object}	AgentHealthResponse
//	@Router			/agents/health [get]
func (h *GetAgentHealthHandler) Execute(w http.ResponseWriter, r *http.Request) {
	resp := AgentHealthResponse{Status: "ok", Agents: map[string]string{}}
	for typ, err := range h.svc.Orchestrator.HealthCheck(r.Context()) {
		if err != nil {
			resp.Status = "degraded"
			resp.Agents[string(typ)] = err.Error()
			continue
		}
		resp.Agents[string(typ)] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httpx.JSON(w, status, resp)
}
