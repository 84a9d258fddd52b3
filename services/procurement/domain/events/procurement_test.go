package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/events"
)

func TestPriceChangedEvent_JSONShape(t *testing.T) {
	ev := events.PriceChangedEvent{
		EventID:        uuid.MustParse("550e8400-e29b-41d4-a716-446655440001"),
		Version:        1,
		OrganizationID: uuid.MustParse("550e8400-e29b-41d4-a716-446655440002"),
		SupplierID:     uuid.MustParse("550e8400-e29b-41d4-a716-446655440003"),
		ProductID:      uuid.MustParse("550e8400-e29b-41d4-a716-446655440004"),
		SKU:            "BOLT-M8",
		OldPrice:       decimal.RequireFromString("1.20"),
		NewPrice:       decimal.RequireFromString("1.35"),
		OccurredAt:     time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"event_id", "version", "org_id", "supplier_id", "product_id", "sku", "old_price", "new_price", "occurred_at"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if raw["new_price"] != "1.35" {
		t.Errorf("decimal must serialise as string, got %v", raw["new_price"])
	}
}

func TestTopics_AreNamespaced(t *testing.T) {
	for _, topic := range []string{events.TopicPriceChanged, events.TopicNegotiationClosed, events.TopicTaskFinished} {
		if len(topic) < len("procurement.") || topic[:len("procurement.")] != "procurement." {
			t.Errorf("topic %q must be namespaced with procurement.", topic)
		}
	}
}
