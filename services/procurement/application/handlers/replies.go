package handlers

import (
	"fmt"
	"net/http"

	"github.com/ghuser/procureflow/pkg/errhttp"
	"github.com/ghuser/procureflow/pkg/httpx"
	pkgvalidator "github.com/ghuser/procureflow/pkg/validator"
	appsvcs "github.com/ghuser/procureflow/services/procurement/application/services"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
)

// ReplyPriority queues supplier replies ahead of scans and reports.
const ReplyPriority = 1

// NegotiationReplyRequest is the request body for POST /negotiations/{id}/replies.
type NegotiationReplyRequest struct {
	ReplyText string `json:"reply_text" validate:"required,max=20000" example:"We can offer 9.70 per unit if you confirm this week."`
	// MessageID is the provider's inbound message id. Posting the same id
	// twice records the reply once.
	MessageID string `json:"message_id,omitempty" validate:"max=256" example:"<CAF3x9@mail.bolt.example>"`
} // @name NegotiationReplyRequest

// PostNegotiationReplyHandler handles POST /negotiations/{id}/replies requests.
// The mail provider's inbound webhook, or an operator, posts supplier replies here.
type PostNegotiationReplyHandler struct {
	svc *appsvcs.Services
}

// NewPostNegotiationReplyHandler returns a PostNegotiationReplyHandler backed by the given services.
func NewPostNegotiationReplyHandler(svc *appsvcs.Services) *PostNegotiationReplyHandler {
	return &PostNegotiationReplyHandler{svc: svc}
}

// Execute queues a process_response task for the reply.
//
//	@Summary		Record supplier reply
//	@Description	Queues the reply for classification and the next negotiation round.
//	@Tags			negotiations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Negotiation ID"
//	@Param			request	body		NegotiationReplyRequest	true	"Supplier reply"
//	@Success		202		{object}	TaskAcceptedResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/negotiations/{id}/replies [post]
func (h *PostNegotiationReplyHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	req, ok := pkgvalidator.ValidateRequest[NegotiationReplyRequest](w, r)
	if !ok {
		return
	}

	n, err := h.svc.Negotiations.GetByID(r.Context(), id)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}
	if n.Status.Terminal() {
		errhttp.WriteError(w, fmt.Errorf("%w: status %s", domain.ErrNegotiationClosed, n.Status))
		return
	}

	submitted, err := h.svc.Orchestrator.Submit(r.Context(), task.New(task.ProcessResponsePayload{
		NegotiationID: id,
		ReplyText:     req.ReplyText,
		DeliveryID:    req.MessageID,
	}, ReplyPriority))
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	httpx.JSON(w, http.StatusAccepted, accepted(submitted))
}
