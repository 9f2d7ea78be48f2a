package api

import (
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/storage"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type SyncResponse struct {
	Success bool `json:"success"`
	*core.SyncReport
}

type DataResponse struct {
	Items []core.Item `json:"items"`
	Total int         `json:"total"`
}

type CollectionsResponse struct {
	Collections  []core.Collection `json:"collections"`
	Total        int               `json:"total"`
	LastSyncedAt *time.Time        `json:"lastSyncedAt"`
}

type HealthResponse struct {
	Status    string               `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Version   string               `json:"version"`
	Check     *storage.CheckReport `json:"check,omitempty"`
}
