package models

// StartJobResponse is returned when a batch job is created.
type StartJobResponse struct {
	JobID string `json:"job_id"`
	Total int    `json:"total"`
}

// JobStatusResponse reports the progress of a batch job.
type JobStatusResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	Source      string `json:"source,omitempty"`
	Filename    string `json:"filename,omitempty"`
	RetryStatus string `json:"retry_status,omitempty"`
}

// StepResponse is returned by a single job step.
type StepResponse struct {
	Status    string        `json:"status"`
	Processed int           `json:"processed"`
	Total     int           `json:"total"`
	Item      *LookupResult `json:"item"`
}

// FinalizeResponse reports the stored snapshot, if any.
type FinalizeResponse struct {
	HistoryID string `json:"history_id,omitempty"`
	Saved     int    `json:"saved"`
}

// HistorySummary is a short view of a history snapshot.
type HistorySummary struct {
	ID       string `json:"id"`
	Kind     string `json:"tipo"`
	Date     string `json:"data"`
	Count    int    `json:"count"`
	Filename string `json:"arquivo_nome,omitempty"`
}
