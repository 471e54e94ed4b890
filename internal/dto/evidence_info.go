package dto

import (
	"encoding/json"
	"time"
)

// EvidenceInfo represents an evidence frame as shown to clients.
type EvidenceInfo struct {
	Name        string    `json:"name"`
	RunID       string    `json:"runId"`
	URL         string    `json:"url"`
	TimestampMs int64     `json:"timestampMs"`
	Position    time.Time `json:"position"`
	Objects     []string  `json:"objects"`
}

// MarshalJSON renders the media position as HH:MM:SS.mmm.
func (e EvidenceInfo) MarshalJSON() ([]byte, error) {
	type Alias EvidenceInfo
	return json.Marshal(&struct {
		Position string `json:"position"`
		Alias
	}{
		Position: e.Position.UTC().Format("15:04:05.000"),
		Alias:    (Alias)(e),
	})
}
