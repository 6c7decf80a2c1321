package usecase

import (
	"fmt"
	"strings"

	"github.com/catalogmatch/backend/internal/domain"
)

// FieldEnricher builds the exact text submitted for embedding for each
// (item, field) pair. Each field gets a short labelled prefix so the
// embedding model sees what kind of attribute it is looking at.
type FieldEnricher struct {
	fields map[string]FieldSpec
}

// NewFieldEnricher creates an enricher over the configured field table.
func NewFieldEnricher(fields map[string]FieldSpec) *FieldEnricher {
	return &FieldEnricher{fields: fields}
}

// EnrichedText returns the templated text to embed for one field of one
// item, or "" when the underlying value is absent. Competitor names are
// composed as "brand name quantity" since competitor catalogs split those
// attributes out, while the primary catalog folds them into the name.
func (e *FieldEnricher) EnrichedText(role domain.CatalogRole, item domain.ItemRecord, field string) string {
	raw := item.Field(field)

	if field == domain.FieldName && role == domain.RoleCompetitor {
		raw = composeName(item.Brand, raw, item.Quantity)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	tmpl := e.fields[field].Template
	if tmpl == "" {
		return raw
	}
	return fmt.Sprintf(tmpl, raw)
}

// composeName joins the non-empty parts with single spaces.
func composeName(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
