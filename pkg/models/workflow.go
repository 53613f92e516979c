// Package models defines the core domain models for config-driven job orchestration.
package models

import "time"

// Workflow is the persisted projection of one workflow definition file.
type Workflow struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	SourcePath            string    `json:"source_path"`
	FileExists            bool      `json:"file_exists"`
	Fingerprint           string    `json:"fingerprint"`
	ModifiedSinceLastLoad bool      `json:"modified_since_last_load"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}
