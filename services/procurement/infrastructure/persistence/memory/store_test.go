package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain"
	domainevents "github.com/ghuser/procureflow/services/procurement/domain/events"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSuppliers_InactiveIsNotFound(t *testing.T) {
	s := New()
	id := uuid.New()
	s.AddSupplier(models.Supplier{ID: id, Name: "Gone", Active: false})

	if _, err := s.Suppliers().GetByID(context.Background(), id); !errors.Is(err, domain.ErrSupplierNotFound) {
		t.Fatalf("expected ErrSupplierNotFound, got %v", err)
	}
	list, _ := s.Suppliers().ListActive(context.Background(), nil)
	if len(list) != 0 {
		t.Fatalf("deactivated suppliers must not be listed, got %d", len(list))
	}
}

func TestCatalog_ApplyPriceChangeRecordsHistoryAndEvent(t *testing.T) {
	s := New()
	org, sup, prod := uuid.New(), uuid.New(), uuid.New()
	s.AddSupplier(models.Supplier{ID: sup, OrganizationID: org, Name: "Bolt Co", Active: true})
	sp := models.SupplierProduct{ID: uuid.New(), SupplierID: sup, ProductID: prod, SKU: "B-1", UnitPrice: decimal.NewFromInt(100)}
	s.AddSupplierProduct(sp)

	h := &models.PriceHistory{ID: uuid.New(), SupplierID: sup, ProductID: prod, SKU: "B-1",
		OldPrice: decimal.NewFromInt(100), NewPrice: decimal.NewFromInt(120), ChangePct: 0.2, RecordedAt: now}
	if err := s.Catalog().ApplyPriceChange(context.Background(), org, &sp, h); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := s.Catalog().GetSupplierProductBySKU(context.Background(), sup, "B-1")
	if !got.UnitPrice.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("price = %s, want 120", got.UnitPrice)
	}
	hist, _ := s.Catalog().ListPriceHistory(context.Background(), sup, prod)
	if len(hist) != 1 || !hist[0].OldPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("history = %+v", hist)
	}
	evts := s.Events()
	if len(evts) != 1 || evts[0].Topic != domainevents.TopicPriceChanged {
		t.Fatalf("events = %+v", evts)
	}
}

func TestCatalog_OffersSortedAndScopedToOrg(t *testing.T) {
	s := New()
	org, other, prod := uuid.New(), uuid.New(), uuid.New()
	cheap, dear, foreign := uuid.New(), uuid.New(), uuid.New()
	s.AddSupplier(models.Supplier{ID: cheap, OrganizationID: org, Name: "Cheap", Active: true})
	s.AddSupplier(models.Supplier{ID: dear, OrganizationID: org, Name: "Dear", Active: true})
	s.AddSupplier(models.Supplier{ID: foreign, OrganizationID: other, Name: "Foreign", Active: true})
	s.AddSupplierProduct(models.SupplierProduct{ID: uuid.New(), SupplierID: dear, ProductID: prod, UnitPrice: decimal.NewFromInt(12)})
	s.AddSupplierProduct(models.SupplierProduct{ID: uuid.New(), SupplierID: cheap, ProductID: prod, UnitPrice: decimal.NewFromInt(9)})
	s.AddSupplierProduct(models.SupplierProduct{ID: uuid.New(), SupplierID: foreign, ProductID: prod, UnitPrice: decimal.NewFromInt(1)})

	offers, err := s.Catalog().ListOffersForProducts(context.Background(), org, []uuid.UUID{prod})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := offers[prod]
	if len(got) != 2 || got[0].SupplierName != "Cheap" || got[1].SupplierName != "Dear" {
		t.Fatalf("offers = %+v", got)
	}
}

func TestNegotiations_DuplicateInboundIsDropped(t *testing.T) {
	s := New()
	n := &models.Negotiation{ID: uuid.New(), Status: models.NegotiationInProgress}
	first := &models.NegotiationMessage{ID: uuid.New(), NegotiationID: n.ID, Direction: models.DirectionOutbound}
	if err := s.Negotiations().Create(context.Background(), n, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	reply := &models.NegotiationMessage{ID: uuid.New(), NegotiationID: n.ID, Direction: models.DirectionInbound, DeliveryID: "abc"}
	if ok, _ := s.Negotiations().AppendMessage(context.Background(), reply); !ok {
		t.Fatal("first reply must be inserted")
	}
	again := *reply
	again.ID = uuid.New()
	if ok, _ := s.Negotiations().AppendMessage(context.Background(), &again); ok {
		t.Fatal("replayed reply must not be inserted")
	}
	msgs, _ := s.Negotiations().ListMessages(context.Background(), n.ID)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
}

func TestNegotiations_StaleUpdateConflicts(t *testing.T) {
	s := New()
	ctx := context.Background()
	n := &models.Negotiation{ID: uuid.New(), Status: models.NegotiationInProgress, ExpiresAt: now.Add(time.Hour)}
	_ = s.Negotiations().Create(ctx, n, nil)

	a, _ := s.Negotiations().GetByID(ctx, n.ID)
	b, _ := s.Negotiations().GetByID(ctx, n.ID)

	a.CounterOffers = append(a.CounterOffers, models.CounterOffer{Round: 1})
	if err := s.Negotiations().Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.Version != 1 {
		t.Fatalf("version = %d, want 1", a.Version)
	}

	b.Metadata.ReviewNeeded = true
	if err := s.Negotiations().Update(ctx, b); !errors.Is(err, domain.ErrNegotiationConflict) {
		t.Fatalf("stale update: expected ErrNegotiationConflict, got %v", err)
	}
	stored, _ := s.Negotiations().GetByID(ctx, n.ID)
	if len(stored.CounterOffers) != 1 || stored.Metadata.ReviewNeeded {
		t.Fatalf("stale update overwrote the first one: %+v", stored)
	}
}

func TestNegotiations_UpdatePublishesCloseOnce(t *testing.T) {
	s := New()
	n := &models.Negotiation{ID: uuid.New(), Status: models.NegotiationInProgress, ExpiresAt: now.Add(-time.Hour)}
	_ = s.Negotiations().Create(context.Background(), n, nil)

	expired, _ := s.Negotiations().ListExpired(context.Background(), now)
	if len(expired) != 1 {
		t.Fatalf("expired = %d, want 1", len(expired))
	}

	n.Status = models.NegotiationExpired
	_ = s.Negotiations().Update(context.Background(), n)
	_ = s.Negotiations().Update(context.Background(), n)

	closed := 0
	for _, e := range s.Events() {
		if e.Topic == domainevents.TopicNegotiationClosed {
			closed++
		}
	}
	if closed != 1 {
		t.Fatalf("negotiation_closed published %d times, want 1", closed)
	}
	if left, _ := s.Negotiations().ListExpired(context.Background(), now); len(left) != 0 {
		t.Fatal("terminal negotiations are not listed as expired")
	}
}

func TestForecasts_ReplaceKeepsResolved(t *testing.T) {
	s := New()
	org := uuid.New()
	_ = s.Forecasts().ReplacePredictions(context.Background(), org, []models.StockoutPrediction{{ID: uuid.New(), Resolved: true}, {ID: uuid.New()}})
	_ = s.Forecasts().ReplacePredictions(context.Background(), org, []models.StockoutPrediction{{ID: uuid.New()}})

	preds, _ := s.Forecasts().ListPredictions(context.Background(), org)
	if len(preds) != 2 {
		t.Fatalf("predictions = %d, want resolved + new", len(preds))
	}
}

func TestActivity_RecordPublishesTaskFinished(t *testing.T) {
	s := New()
	_ = s.Activity().Record(context.Background(), &models.ActivityLog{ID: uuid.New(), AgentType: "forecaster", Action: "note"})
	_ = s.Activity().Record(context.Background(), &models.ActivityLog{ID: uuid.New(), TaskID: uuid.New(), AgentType: "demand_forecaster", Action: "analyze_inventory", Success: true})

	if len(s.Events()) != 1 {
		t.Fatalf("only task entries publish, got %d events", len(s.Events()))
	}
	entries, _ := s.Activity().List(context.Background(), 1)
	if len(entries) != 1 || entries[0].Action != "analyze_inventory" {
		t.Fatalf("List must return newest first, got %+v", entries)
	}
}
