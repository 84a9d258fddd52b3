package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ghuser/procureflow/pkg/errhttp"
	"github.com/ghuser/procureflow/pkg/httpx"
	appsvcs "github.com/ghuser/procureflow/services/procurement/application/services"
)

// CycleResponse lists the tasks queued by a procurement cycle.
type CycleResponse struct {
	OrganizationID uuid.UUID              `json:"organization_id"`
	Tasks          []TaskAcceptedResponse `json:"tasks"`
} // @name CycleResponse

// AutoReorderResponse lists the negotiations queued by an auto-reorder run.
type AutoReorderResponse struct {
	OrganizationID uuid.UUID              `json:"organization_id"`
	Tasks          []TaskAcceptedResponse `json:"tasks"`
	Unsourced      []uuid.UUID            `json:"unsourced"`
} // @name AutoReorderResponse

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.JSON(w, http.StatusBadRequest, ErrorResponse{Error: name + " must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// PostProcurementCycleHandler handles POST /organizations/{orgID}/procurement-cycle requests.
type PostProcurementCycleHandler struct {
	svc *appsvcs.Services
}

// NewPostProcurementCycleHandler returns a PostProcurementCycleHandler backed by the given services.
func NewPostProcurementCycleHandler(svc *appsvcs.Services) *PostProcurementCycleHandler {
	return &PostProcurementCycleHandler{svc: svc}
}

// Execute queues a full scan and the forecast steps of one organization.
//
//	@Summary		Run procurement cycle
//	@Description	Queues scan_all, analyze_inventory, predict_stockouts and generate_suggestions, ordered by priority.
//	@Tags			cycles
//	@Produce		json
//	@Param			orgID	path		string	true	"Organization ID"
//	@Success		202		{object}	CycleResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/organizations/{orgID}/procurement-cycle [post]
func (h *PostProcurementCycleHandler) Execute(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathUUID(w, r, "orgID")
	if !ok {
		return
	}

	submitted, err := h.svc.Orchestrator.ProcurementCycle(r.Context(), orgID)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	resp := CycleResponse{OrganizationID: orgID, Tasks: make([]TaskAcceptedResponse, len(submitted))}
	for i, s := range submitted {
		resp.Tasks[i] = accepted(s)
	}
	httpx.JSON(w, http.StatusAccepted, resp)
}

// PostAutoReorderHandler handles POST /organizations/{orgID}/auto-reorder requests.
type PostAutoReorderHandler struct {
	svc *appsvcs.Services
}

// NewPostAutoReorderHandler returns a PostAutoReorderHandler backed by the given services.
func NewPostAutoReorderHandler(svc *appsvcs.Services) *PostAutoReorderHandler {
	return &PostAutoReorderHandler{svc: svc}
}

// Execute queues one negotiation per cheapest in-stock supplier for the
// organization's items at or below their reorder point.
//
//	@Summary		Auto-reorder
//	@Tags			cycles
//	@Produce		json
//	@Param			orgID	path		string	true	"Organization ID"
//	@Success		202		{object}	AutoReorderResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/organizations/{orgID}/auto-reorder [post]
func (h *PostAutoReorderHandler) Execute(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathUUID(w, r, "orgID")
	if !ok {
		return
	}

	report, err := h.svc.Orchestrator.AutoReorder(r.Context(), orgID)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	resp := AutoReorderResponse{
		OrganizationID: orgID,
		Tasks:          make([]TaskAcceptedResponse, len(report.Tasks)),
		Unsourced:      report.Unsourced,
	}
	if resp.Unsourced == nil {
		resp.Unsourced = []uuid.UUID{}
	}
	for i, s := range report.Tasks {
		resp.Tasks[i] = accepted(s)
	}
	httpx.JSON(w, http.StatusAccepted, resp)
}
