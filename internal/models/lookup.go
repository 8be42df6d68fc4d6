package models

// Sentinel values placed in LookupResult fields instead of raising errors.
// They are user-facing and stable: downstream consumers match on them.
const (
	UnknownName        = "unknown"
	NoEmail            = "no email"
	UpstreamErrorLabel = "Upstream error: "
	UnexpectedLabel    = "Unexpected error: "
	ExhaustedLabel     = "Retry limit exceeded"
)

// LookupRequest is one identifier queued for resolution.
type LookupRequest struct {
	CNPJ string `json:"cnpj"`               // cleaned digits
	Tag  string `json:"processo,omitempty"` // correlation tag, empty when absent
}

// Key returns the deduplication key of the request.
func (r LookupRequest) Key() string {
	return r.CNPJ + "|" + r.Tag
}

// LookupResult is the outcome of resolving one LookupRequest.
// JSON names match the history snapshots written by earlier versions.
type LookupResult struct {
	CNPJ    string         `json:"cnpj"` // XX.XXX.XXX/XXXX-XX
	Name    string         `json:"nome"`
	Email   string         `json:"email"`
	Details map[string]any `json:"detalhes"`
	Tag     string         `json:"processo,omitempty"`
}

// Failed reports whether the result carries an error sentinel instead of
// upstream data.
func (r LookupResult) Failed() bool {
	return r.Details == nil
}
