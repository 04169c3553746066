package entity

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// Pipeline run statuses.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// PipelineRun records the outcome of a single pipeline cycle.
type PipelineRun struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Status       string         `gorm:"not null" json:"status"`
	StartedAt    time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt  sql.NullTime   `json:"completed_at"`
	Result       datatypes.JSON `gorm:"type:jsonb" json:"result"`
	ErrorMessage sql.NullString `json:"error_message"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for the PipelineRun model.
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
