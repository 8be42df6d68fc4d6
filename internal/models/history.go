package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source kinds of a batch run.
const (
	SourceManual = "manual"
	SourceUpload = "upload"
)

// History is a persisted snapshot of one finished batch run.
type History struct {
	ID        uuid.UUID      `json:"id"`
	Kind      string         `json:"tipo"`
	CNPJs     string         `json:"cnpjs"`
	Filename  *string        `json:"arquivo_nome"`
	Results   []LookupResult `json:"resultado"`
	CreatedAt time.Time      `json:"data"`
}

// Identifiers splits the comma-joined identifier list.
func (h *History) Identifiers() []string {
	if h.CNPJs == "" {
		return nil
	}
	return strings.Split(h.CNPJs, ",")
}
