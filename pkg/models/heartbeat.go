package models

// HeartbeatStatus is an agent's self-reported state.
type HeartbeatStatus string

const (
	HeartbeatAlive HeartbeatStatus = "alive"
	HeartbeatIdle  HeartbeatStatus = "idle"
	HeartbeatBusy  HeartbeatStatus = "busy"
)

// IsValid checks if the status is a recognized value.
func (s HeartbeatStatus) IsValid() bool {
	return s == HeartbeatAlive || s == HeartbeatIdle || s == HeartbeatBusy
}

// MaxHeartbeatMetadataBytes bounds the serialized metadata blob.
const MaxHeartbeatMetadataBytes = 4096

// Heartbeat is an agent liveness record, upserted on (workspace, author).
// LastSeen is unix seconds.
type Heartbeat struct {
	WorkspaceID string `gorm:"primaryKey;size:64" json:"workspaceId"`
	Author      string `gorm:"primaryKey;size:64" json:"author"`
	ID          string `gorm:"not null;size:64" json:"id"`
	Status      string `gorm:"not null;size:16" json:"status"` // alive, idle, busy
	CurrentTask string `gorm:"size:16" json:"currentTask,omitempty"`
	Metadata    string `gorm:"type:text" json:"metadata,omitempty"` // bounded JSON blob
	LastSeen    int64  `gorm:"not null" json:"lastSeen"`
}

// TableName returns the table name for Heartbeat.
func (Heartbeat) TableName() string {
	return "heartbeats"
}
