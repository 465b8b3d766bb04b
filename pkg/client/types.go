package client

import "time"

// Status mirrors the engine snapshot served at GET {base}/status.
type Status struct {
	Mode        string           `json:"mode"`
	StartedAt   time.Time        `json:"started_at"`
	Polls       uint64           `json:"polls"`
	Tracked     int              `json:"tracked"`
	Processing  int              `json:"processing"`
	SelectedID  string           `json:"selected_id,omitempty"`
	LastApplied *AppliedArtifact `json:"last_applied,omitempty"`
}

// AppliedArtifact describes the artifact most recently set as wallpaper.
type AppliedArtifact struct {
	ID   string    `json:"id"`
	Path string    `json:"path"`
	Ref  string    `json:"ref"`
	At   time.Time `json:"at"`
}

// Pollen mirrors one tracked pollen as served at GET {base}/pollens.
type Pollen struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	ArtifactRef     string `json:"artifact_ref,omitempty"`
	Revision        int    `json:"revision"`
	Model           string `json:"model,omitempty"`
	TextInput       string `json:"text_input,omitempty"`
	FirstSeenAt     uint64 `json:"first_seen_at"`
	LastSeenAt      uint64 `json:"last_seen_at"`
	Applied         bool   `json:"applied"`
	AppliedRevision int    `json:"applied_revision,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
