// Package task is the shared vocabulary between the orchestrator and the
// agents: the task envelope, its closed set of payloads, and the Result every
// agent returns.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/procureflow/services/procurement/domain"
)

// AgentType names one of the three workers.
type AgentType string

const (
	AgentScanner    AgentType = "price_scanner"
	AgentForecaster AgentType = "demand_forecaster"
	AgentNegotiator AgentType = "negotiator"
)

// Type is the tag of a task. The set is closed: every Type has exactly one
// payload struct and one owning agent.
type Type string

const (
	TypeScanSupplier  Type = "scan_supplier"
	TypeScanAll       Type = "scan_all"
	TypeCheckStock    Type = "check_stock"
	TypeComparePrices Type = "compare_prices"

	TypeAnalyzeInventory      Type = "analyze_inventory"
	TypePredictStockouts      Type = "predict_stockouts"
	TypeAnalyzeDemand         Type = "analyze_demand"
	TypeOptimizeReorderPoints Type = "optimize_reorder_points"
	TypeGenerateSuggestions   Type = "generate_suggestions"

	TypeInitiateNegotiation Type = "initiate_negotiation"
	TypeProcessResponse     Type = "process_response"
	TypeBulkNegotiation     Type = "bulk_negotiation"
	TypeExpireNegotiations  Type = "expire_negotiations"
)

type catalogueEntry struct {
	agent  AgentType
	decode func(json.RawMessage) (Payload, error)
}

func entry[P Payload](agent AgentType) catalogueEntry {
	return catalogueEntry{agent: agent, decode: func(raw json.RawMessage) (Payload, error) {
		var p P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		return p, nil
	}}
}

var catalogue = map[Type]catalogueEntry{
	TypeScanSupplier:  entry[ScanSupplierPayload](AgentScanner),
	TypeScanAll:       entry[ScanAllPayload](AgentScanner),
	TypeCheckStock:    entry[CheckStockPayload](AgentScanner),
	TypeComparePrices: entry[ComparePricesPayload](AgentScanner),

	TypeAnalyzeInventory:      entry[AnalyzeInventoryPayload](AgentForecaster),
	TypePredictStockouts:      entry[PredictStockoutsPayload](AgentForecaster),
	TypeAnalyzeDemand:         entry[AnalyzeDemandPayload](AgentForecaster),
	TypeOptimizeReorderPoints: entry[OptimizeReorderPointsPayload](AgentForecaster),
	TypeGenerateSuggestions:   entry[GenerateSuggestionsPayload](AgentForecaster),

	TypeInitiateNegotiation: entry[InitiateNegotiationPayload](AgentNegotiator),
	TypeProcessResponse:     entry[ProcessResponsePayload](AgentNegotiator),
	TypeBulkNegotiation:     entry[BulkNegotiationPayload](AgentNegotiator),
	TypeExpireNegotiations:  entry[ExpireNegotiationsPayload](AgentNegotiator),
}

// Agent returns the agent that owns t, or "" for an unknown type.
func (t Type) Agent() AgentType {
	return catalogue[t].agent
}

// Valid reports whether t is in the catalogue.
func (t Type) Valid() bool {
	_, ok := catalogue[t]
	return ok
}

// Task is one unit of work routed to an agent.
type Task struct {
	ID          uuid.UUID
	Priority    int // lower runs first
	ScheduledAt time.Time
	Attempt     int
	Payload     Payload
}

// New builds a task with a fresh id scheduled now.
func New(p Payload, priority int) Task {
	return Task{
		ID:          uuid.New(),
		Priority:    priority,
		ScheduledAt: time.Now().UTC(),
		Payload:     p,
	}
}

// Type is the payload's tag.
func (t Task) Type() Type {
	if t.Payload == nil {
		return ""
	}
	return t.Payload.TaskType()
}

// Agent is the owning agent of the payload.
func (t Task) Agent() AgentType {
	return t.Type().Agent()
}

type envelope struct {
	ID          uuid.UUID       `json:"id"`
	Agent       AgentType       `json:"agent"`
	Type        Type            `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	Attempt     int             `json:"attempt,omitempty"`
}

// MarshalJSON writes the task envelope.
func (t Task) MarshalJSON() ([]byte, error) {
	if t.Payload == nil {
		return nil, fmt.Errorf("%w: task %s has no payload", domain.ErrInvalidPayload, t.ID)
	}
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(envelope{
		ID:          t.ID,
		Agent:       t.Agent(),
		Type:        t.Type(),
		Payload:     payload,
		Priority:    t.Priority,
		ScheduledAt: t.ScheduledAt,
		Attempt:     t.Attempt,
	})
}

// UnmarshalJSON reads a task envelope. An unknown type, or an agent that does
// not own the type, yields domain.ErrUnknownTaskType.
func (t *Task) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	p, err := DecodePayload(env.Type, env.Payload)
	if err != nil {
		return err
	}
	if env.Agent != "" && env.Agent != env.Type.Agent() {
		return fmt.Errorf("%w: %s is not handled by %s", domain.ErrUnknownTaskType, env.Type, env.Agent)
	}
	*t = Task{
		ID:          env.ID,
		Priority:    env.Priority,
		ScheduledAt: env.ScheduledAt,
		Attempt:     env.Attempt,
		Payload:     p,
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// DecodePayload builds the payload struct for typ from raw JSON.
func DecodePayload(typ Type, raw json.RawMessage) (Payload, error) {
	e, ok := catalogue[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTaskType, typ)
	}
	p, err := e.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidPayload, typ, err)
	}
	return p, nil
}
