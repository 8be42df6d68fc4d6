package lookup

import (
	"strings"

	"consultacnpj/internal/cnpja"
	"consultacnpj/internal/models"
)

// ExtractName returns the company name, falling back to the top-level name
// and then to the unknown sentinel.
func ExtractName(doc cnpja.Document) string {
	if company, ok := doc["company"].(map[string]any); ok {
		if name := stringField(company, "name"); name != "" {
			return name
		}
	}
	if name := stringField(doc, "name"); name != "" {
		return name
	}
	return models.UnknownName
}

// ExtractEmail returns the first address in the emails list. Entries may be
// objects carrying "address" (or "email") or plain strings.
func ExtractEmail(doc cnpja.Document) string {
	entries, _ := doc["emails"].([]any)
	for _, entry := range entries {
		switch e := entry.(type) {
		case map[string]any:
			if addr := stringField(e, "address"); addr != "" {
				return addr
			}
			if addr := stringField(e, "email"); addr != "" {
				return addr
			}
		case string:
			if addr := strings.TrimSpace(e); addr != "" {
				return addr
			}
		}
	}
	return models.NoEmail
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
