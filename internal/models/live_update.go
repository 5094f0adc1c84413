package models

import (
	"encoding/json"
	"time"
)

// LiveUpdateEnvelope carries a live-update payload with the version the
// versioner assigned to it. Consumers use the version only for ordering
// and deduplication.
type LiveUpdateEnvelope struct {
	UserID          string          `json:"user_id"`
	UpdateType      string          `json:"update_type"`
	Payload         json.RawMessage `json:"payload"`
	AssignedVersion int64           `json:"assigned_version"`
	IssuedAt        time.Time       `json:"issued_at"`
}

// LiveUpdateRequest is the inbound shape of a live update.
type LiveUpdateRequest struct {
	UpdateType string          `json:"update_type" binding:"required"`
	Payload    json.RawMessage `json:"payload"`
}
