package domain

import "time"

// Instance represents an externally managed media-automation service that
// templates can be deployed to.
type Instance struct {
	ID              string    `json:"id"             db:"id"`
	Label           string    `json:"label"          db:"label"`
	Kind            string    `json:"kind"           db:"kind"` // radarr, sonarr
	BaseURL         string    `json:"base_url"       db:"base_url"`
	EncryptedAPIKey string    `json:"-"              db:"encrypted_api_key"` // never serialized to JSON
	CreatedAt       time.Time `json:"created_at"     db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"     db:"updated_at"`
}

// Instance kind constants.
const (
	InstanceKindRadarr = "radarr"
	InstanceKindSonarr = "sonarr"
)
