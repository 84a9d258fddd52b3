package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/ghuser/procureflow/pkg/errhttp"
	"github.com/ghuser/procureflow/pkg/httpx"
	pkgvalidator "github.com/ghuser/procureflow/pkg/validator"
	"github.com/ghuser/procureflow/services/procurement/application/orchestrator"
	appsvcs "github.com/ghuser/procureflow/services/procurement/application/services"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
)

// DefaultPriority is used when a request leaves priority unset.
const DefaultPriority = 5

// TaskRequest is the request body for POST /tasks and POST /tasks/execute.
type TaskRequest struct {
	Type     string          `json:"type" validate:"required" example:"scan_supplier"`
	Payload  json.RawMessage `json:"payload" swaggertype:"object"`
	Priority *int            `json:"priority,omitempty" validate:"omitempty,min=0,max=100" example:"5"`
} // @name TaskRequest

// TaskAcceptedResponse identifies a queued task.
type TaskAcceptedResponse struct {
	TaskID   uuid.UUID `json:"task_id"  example:"123e4567-e89b-12d3-a456-426614174000"`
	JobID    string    `json:"job_id"   example:"9b2f0c7e-5d7a-4a57-9d0e-2f0f7f8a1c11"`
	Agent    string    `json:"agent"    example:"price_scanner"`
	Type     string    `json:"type"     example:"scan_supplier"`
	Priority int       `json:"priority" example:"5"`
} // @name TaskAcceptedResponse

// TaskResultResponse is the outcome of a synchronously executed task.
type TaskResultResponse struct {
	TaskID    uuid.UUID      `json:"task_id"`
	Agent     string         `json:"agent"     example:"demand_forecaster"`
	Type      string         `json:"type"      example:"analyze_inventory"`
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty" swaggertype:"object"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
} // @name TaskResultResponse

// ErrorResponse is returned on all error responses.
type ErrorResponse struct {
	Error string `json:"error" example:"unknown task type"`
} // @name ErrorResponse

func (req *TaskRequest) build() (task.Task, error) {
	p, err := task.DecodePayload(task.Type(req.Type), req.Payload)
	if err != nil {
		return task.Task{}, err
	}
	priority := DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}
	t := task.New(p, priority)
	return t, orchestrator.Validate(t)
}

func accepted(s orchestrator.Submitted) TaskAcceptedResponse {
	return TaskAcceptedResponse{
		TaskID:   s.TaskID,
		JobID:    s.JobID,
		Agent:    string(s.Agent),
		Type:     string(s.Type),
		Priority: s.Priority,
	}
}

// PostTaskHandler handles POST /tasks requests.
type PostTaskHandler struct {
	svc *appsvcs.Services
}

// NewPostTaskHandler returns a PostTaskHandler backed by the given services.
func NewPostTaskHandler(svc *appsvcs.Services) *PostTaskHandler {
	return &PostTaskHandler{svc: svc}
}

// Execute queues a task for its agent.
//
//	@Summary		Submit task
//	@Description	Validates a task and puts it on the priority queue. Lower priority values run first.
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			request	body		TaskRequest	true	"Task submission"
//	@Success		202		{object}	TaskAcceptedResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/tasks [post]
func (h *PostTaskHandler) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := pkgvalidator.ValidateRequest[TaskRequest](w, r)
	if !ok {
		return
	}

	t, err := req.build()
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	submitted, err := h.svc.Orchestrator.Submit(r.Context(), t)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	httpx.JSON(w, http.StatusAccepted, accepted(submitted))
}

// PostExecuteTaskHandler handles POST /tasks/execute requests.
type PostExecuteTaskHandler struct {
	svc *appsvcs.Services
}

// NewPostExecuteTaskHandler returns a PostExecuteTaskHandler backed by the given services.
func NewPostExecuteTaskHandler(svc *appsvcs.Services) *PostExecuteTaskHandler {
	return &PostExecuteTaskHandler{svc: svc}
}

// Execute runs a task in the request goroutine and returns its result.
//
//	@Summary		Execute task
//	@Description	Runs a task synchronously, bypassing the queue. A failed task is still a 200 with success=false.
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			request	body		TaskRequest	true	"Task to execute"
//	@Success		200		{object}	TaskResultResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/tasks/execute [post]
func (h *PostExecuteTaskHandler) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := pkgvalidator.ValidateRequest[TaskRequest](w, r)
	if !ok {
		return
	}

	t, err := req.build()
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	res := h.svc.Orchestrator.Execute(r.Context(), t)
	httpx.JSON(w, http.StatusOK, TaskResultResponse{
		TaskID:    t.ID,
		Agent:     string(t.Agent()),
		Type:      string(t.Type()),
		Success:   res.Success,
		Data:      res.Data,
		Error:     res.Error,
		Metadata:  res.Metadata,
		Retryable: res.Retryable,
	})
}
