// Package batch turns manual text and tabular uploads into an ordered,
// deduplicated list of lookup requests.
package batch

import (
	"errors"
	"regexp"
	"strings"

	"consultacnpj/internal/models"
	"consultacnpj/internal/validation"
)

var (
	// ErrNoIdentifiers is returned when the input yields no valid identifier.
	ErrNoIdentifiers = errors.New("no identifiers found in input")

	// ErrUnsupportedFile is returned for uploads that are neither CSV nor XLSX.
	ErrUnsupportedFile = errors.New("unsupported file type, send CSV or XLSX")
)

// Header synonyms, matched case-insensitively by substring.
var (
	DefaultIdentifierHeaders = []string{"cnpj", "cnpj/cpf", "cnpj_cpf", "nrcpfcnpj", "cpf/cnpj", "cnpjcpf"}
	DefaultTagHeaders        = []string{"processo", "número do processo", "numero do processo", "dsprocesso"}
)

var (
	punctuatedCNPJ = regexp.MustCompile(`(?:^|\D)(\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2})(?:\D|$)`)
	punctuatedTag  = regexp.MustCompile(`(?:^|\D)(\d{3}\.\d{3}/\d{4})(?:\D|$)`)
	digitRun       = regexp.MustCompile(`\d+`)
	manualSplit    = regexp.MustCompile(`[,;\r\n]+`)
)

// Extractor detects identifier and tag columns and builds requests.
type Extractor struct {
	identifierHeaders []string
	tagHeaders        []string
}

// NewExtractor returns an extractor using the default synonyms plus any
// extra header names.
func NewExtractor(extraIdentifierHeaders, extraTagHeaders []string) *Extractor {
	return &Extractor{
		identifierHeaders: mergeHeaders(DefaultIdentifierHeaders, extraIdentifierHeaders),
		tagHeaders:        mergeHeaders(DefaultTagHeaders, extraTagHeaders),
	}
}

func mergeHeaders(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, h := range append(append([]string{}, base...), extra...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// FromText parses a manually typed list of identifiers separated by commas,
// semicolons or line breaks. Spaces inside an entry are ignored.
func (e *Extractor) FromText(text string) ([]models.LookupRequest, error) {
	var reqs []models.LookupRequest
	for _, part := range manualSplit.Split(text, -1) {
		if cnpj := validation.CleanCNPJ(part); len(cnpj) == validation.CNPJLength {
			reqs = append(reqs, models.LookupRequest{CNPJ: cnpj})
		}
	}
	return nonEmpty(Dedupe(reqs))
}

// FromRows extracts requests from a header row and its data rows. Columns are
// located by header synonyms; rows where that fails are scanned for the
// identifier and tag patterns. When no header matches, the header row itself
// is scanned as data.
func (e *Extractor) FromRows(header []string, rows [][]string) ([]models.LookupRequest, error) {
	idCol := matchColumn(header, e.identifierHeaders)
	tagCol := matchColumn(header, e.tagHeaders)
	if idCol < 0 && tagCol < 0 && len(header) > 0 {
		rows = append([][]string{header}, rows...)
	}

	reqs := make([]models.LookupRequest, 0, len(rows))
	for _, row := range rows {
		cnpj := validation.CleanCNPJ(cell(row, idCol))
		if len(cnpj) != validation.CNPJLength {
			cnpj = findCNPJ(row)
		}
		if cnpj == "" {
			continue
		}

		rawTag := cell(row, tagCol)
		if strings.TrimSpace(rawTag) == "" {
			rawTag = findTag(row)
		}
		tag, _ := validation.FormatTag(rawTag)

		reqs = append(reqs, models.LookupRequest{CNPJ: cnpj, Tag: tag})
	}
	return nonEmpty(Dedupe(reqs))
}

// Dedupe drops requests whose (identifier, tag) pair was already seen,
// keeping first-seen order. Identifiers are cleaned and tags normalized
// first; requests without a valid identifier are dropped.
func Dedupe(reqs []models.LookupRequest) []models.LookupRequest {
	seen := make(map[string]struct{}, len(reqs))
	out := make([]models.LookupRequest, 0, len(reqs))
	for _, r := range reqs {
		r.CNPJ = validation.CleanCNPJ(r.CNPJ)
		if len(r.CNPJ) != validation.CNPJLength {
			continue
		}
		r.Tag, _ = validation.FormatTag(r.Tag)
		if _, dup := seen[r.Key()]; dup {
			continue
		}
		seen[r.Key()] = struct{}{}
		out = append(out, r)
	}
	return out
}

func nonEmpty(reqs []models.LookupRequest) ([]models.LookupRequest, error) {
	if len(reqs) == 0 {
		return nil, ErrNoIdentifiers
	}
	return reqs, nil
}

// matchColumn returns the first column whose header contains a synonym, or -1.
func matchColumn(header, synonyms []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		for _, s := range synonyms {
			if strings.Contains(h, s) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func joinCells(row []string) string {
	parts := make([]string, 0, len(row))
	for _, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

// findCNPJ scans a row for a punctuated identifier, then for a bare run of
// 12 to 14 digits.
func findCNPJ(row []string) string {
	text := joinCells(row)
	if m := punctuatedCNPJ.FindStringSubmatch(text); m != nil {
		return validation.CleanCNPJ(m[1])
	}
	for _, run := range digitRun.FindAllString(text, -1) {
		if n := len(run); n >= 12 && n <= validation.CNPJLength {
			return validation.CleanCNPJ(run)
		}
	}
	return ""
}

// findTag scans a row for a DDD.DDD/DDDD tag, then for a bare 10-digit run.
// Punctuated identifiers are removed first so their middle groups are not
// mistaken for a tag.
func findTag(row []string) string {
	text := punctuatedCNPJ.ReplaceAllString(joinCells(row), " ")
	if m := punctuatedTag.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	for _, run := range digitRun.FindAllString(text, -1) {
		if len(run) == 10 {
			return run
		}
	}
	return ""
}
