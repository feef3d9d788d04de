package models

import "time"

// StatusTransition is one entry in a job's audit trail: every status or
// progress write the service makes is recorded, append-only.
type StatusTransition struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}
