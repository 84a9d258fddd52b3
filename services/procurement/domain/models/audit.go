package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScrapingJobStatus is the state of one scan invocation.
type ScrapingJobStatus string

const (
	ScrapingRunning   ScrapingJobStatus = "running"
	ScrapingCompleted ScrapingJobStatus = "completed"
	ScrapingFailed    ScrapingJobStatus = "failed"
)

// ScrapingJob audits one supplier scan.
type ScrapingJob struct {
	ID           uuid.UUID
	SupplierID   uuid.UUID
	Method       CatalogAccess
	Status       ScrapingJobStatus
	ItemsFound   int
	ItemsChanged int
	Error        string
	RawResults   json.RawMessage
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// ActivityLog is one worker action. Rows are insert-only.
type ActivityLog struct {
	ID             uuid.UUID
	OrganizationID *uuid.UUID
	AgentType      string
	Action         string
	TaskID         uuid.UUID
	Attempt        int
	Success        bool
	Error          string
	Metadata       map[string]any
	DurationMs     int64
	CreatedAt      time.Time
}
