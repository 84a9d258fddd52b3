package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/procureflow/services/procurement/domain/forecast"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
)

// Priorities of the procurement cycle steps. Lower runs first.
const (
	PriorityScan     = 1
	PriorityForecast = 2
	PriorityReport   = 3
)

// ProcurementCycle enqueues a full scan followed by the forecast steps of one
// organization. Steps are ordered by queue priority only; they do not wait
// for each other.
func (o *Orchestrator) ProcurementCycle(ctx context.Context, orgID uuid.UUID) ([]Submitted, error) {
	if _, err := o.orgs.GetByID(ctx, orgID); err != nil {
		return nil, err
	}
	steps := []task.Task{
		task.New(task.ScanAllPayload{OrganizationID: &orgID}, PriorityScan),
		task.New(task.AnalyzeInventoryPayload{OrganizationID: orgID}, PriorityForecast),
		task.New(task.PredictStockoutsPayload{OrganizationID: orgID}, PriorityForecast),
		task.New(task.GenerateSuggestionsPayload{OrganizationID: orgID}, PriorityReport),
	}
	return o.submitAll(ctx, steps)
}

// AutoReorderReport lists the negotiations queued by an auto-reorder run.
type AutoReorderReport struct {
	Tasks     []Submitted `json:"tasks"`
	Unsourced []uuid.UUID `json:"unsourced,omitempty"` // inventory items with no in-stock offer
}

// AutoReorder groups the organization's items at or below their reorder point
// by cheapest in-stock supplier and enqueues one negotiation per supplier.
func (o *Orchestrator) AutoReorder(ctx context.Context, orgID uuid.UUID) (AutoReorderReport, error) {
	if _, err := o.orgs.GetByID(ctx, orgID); err != nil {
		return AutoReorderReport{}, err
	}
	items, err := o.inv.ListAtOrBelowReorderPoint(ctx, orgID)
	if err != nil {
		return AutoReorderReport{}, fmt.Errorf("list reorder items: %w", err)
	}
	report := AutoReorderReport{Tasks: []Submitted{}}
	if len(items) == 0 {
		return report, nil
	}

	now := o.now()
	urgent := make([]forecast.UrgentItem, 0, len(items))
	productIDs := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		movements, err := o.inv.ListMovements(ctx, it.ID, now.Add(-90*24*time.Hour))
		if err != nil {
			return AutoReorderReport{}, fmt.Errorf("list movements: %w", err)
		}
		status := forecast.Assess(it, movements, o.cfg.ThresholdDays, now)
		urgent = append(urgent, forecast.UrgentItem{Item: it, Urgency: status.Urgency})
		productIDs = append(productIDs, it.ProductID)
	}
	offers, err := o.catalog.ListOffersForProducts(ctx, orgID, productIDs)
	if err != nil {
		return AutoReorderReport{}, fmt.Errorf("list offers: %w", err)
	}

	groups, unsourced := forecast.GroupBySupplier(urgent, offers)
	report.Unsourced = unsourced
	steps := make([]task.Task, 0, len(groups))
	for _, g := range groups {
		products := make([]task.NegotiationProduct, len(g.Lines))
		for i, l := range g.Lines {
			products[i] = task.NegotiationProduct{ProductID: l.ProductID, Quantity: l.Quantity}
		}
		steps = append(steps, task.New(task.InitiateNegotiationPayload{
			OrganizationID: orgID,
			SupplierID:     g.SupplierID,
			Products:       products,
		}, PriorityForecast))
	}
	report.Tasks, err = o.submitAll(ctx, steps)
	if err != nil {
		return report, err
	}
	o.log.InfoContext(ctx, "auto-reorder queued", "organization_id", orgID, "negotiations", len(report.Tasks), "unsourced", len(unsourced))
	return report, nil
}

func (o *Orchestrator) submitAll(ctx context.Context, tasks []task.Task) ([]Submitted, error) {
	out := make([]Submitted, 0, len(tasks))
	for _, t := range tasks {
		s, err := o.Submit(ctx, t)
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}
