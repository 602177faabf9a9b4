package bank

import "time"

// BatchEvent is published after a subject batch commits.
type BatchEvent struct {
	RunID       string    `json:"run_id"`
	GiaType     GiaType   `json:"gia_type"`
	SubjectName string    `json:"subject_name"`
	SubjectHash string    `json:"subject_hash"`
	Inserted    int       `json:"inserted"`
	Skipped     int       `json:"skipped"`
	InsertedIDs []string  `json:"inserted_ids,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
}

// Attributes returns the message attributes publishers attach to the event.
func (e BatchEvent) Attributes() map[string]string {
	return map[string]string{
		"event_type":   "batch.committed",
		"gia_type":     string(e.GiaType),
		"subject_hash": e.SubjectHash,
		"run_id":       e.RunID,
	}
}

// Attributed payloads carry message attributes alongside their JSON body.
type Attributed interface {
	Attributes() map[string]string
}
