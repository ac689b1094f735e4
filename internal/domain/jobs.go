package domain

import "time"

// SyncJob — задание на один проход синхронизации.
type SyncJob struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}
