package models

import "time"

const (
	IntegrationProviderKassa = "kassacloud"
)

const (
	IntegrationStatusConnected    = "connected"
	IntegrationStatusDisconnected = "disconnected"
	IntegrationStatusError        = "error"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)

// PosConnection holds the per-restaurant KassaCloud credentials and settings.
// One row per (restaurant, provider).
type PosConnection struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	RestaurantId      string     `gorm:"index;not null" json:"restaurant_id"`
	Provider          string     `gorm:"index;size:50;not null" json:"provider"`
	Status            string     `gorm:"size:20;not null" json:"status"`
	APIKey            string     `gorm:"column:api_key;type:text" json:"-"`
	SalesPointId      string     `gorm:"size:64" json:"sales_point_id"`
	SettingsJSON      []byte     `gorm:"type:json" json:"settings"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastSuccessSyncAt *time.Time `json:"last_success_sync_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	RestaurantId  string     `gorm:"index;not null" json:"restaurant_id"`
	ConnectionId  uint       `gorm:"index;not null" json:"connection_id"`
	Provider      string     `gorm:"index;size:50;not null" json:"provider"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	ResourcesJSON []byte     `gorm:"type:json" json:"resources"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	ParentRunId   *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncError struct {
	ID           uint      `gorm:"primary_key" json:"id"`
	SyncRunId    uint      `gorm:"index;not null" json:"sync_run_id"`
	RestaurantId string    `gorm:"index;not null" json:"restaurant_id"`
	EntityType   string    `gorm:"size:50" json:"entity_type"`
	ExternalId   string    `gorm:"size:128" json:"external_id"`
	ErrorCode    string    `gorm:"size:64" json:"error_code"`
	Message      string    `gorm:"type:text" json:"message"`
	PayloadJSON  []byte    `gorm:"type:json" json:"payload"`
	Retryable    bool      `gorm:"default:false" json:"retryable"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
