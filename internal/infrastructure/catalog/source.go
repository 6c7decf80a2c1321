package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/catalogmatch/backend/internal/domain"
)

// FileSource loads both catalogs from JSON files: the primary catalog as
// exported from the reference item table, and competitor catalogs in the
// shape the document-extraction stage emits. Read or parse failures are
// fatal to the run and name the offending path.
type FileSource struct {
	primaryPath    string
	competitorPath string
}

// NewFileSource creates a source over the two catalog files.
func NewFileSource(primaryPath, competitorPath string) *FileSource {
	return &FileSource{
		primaryPath:    primaryPath,
		competitorPath: competitorPath,
	}
}

// primaryRecord is one row of the exported primary catalog.
type primaryRecord struct {
	ID             any    `json:"item_row_id"`
	Name           string `json:"item_name"`
	Description    string `json:"item_description"`
	ParentCategory string `json:"item_parent_sales_category_name"`
	SalesCategory  string `json:"item_sales_category_name"`
	Price          any    `json:"item_price"`
	Currency       string `json:"item_currency_code"`
}

// competitorRecord is one extracted competitor item. Brand, quantity and
// the category fields are frequently missing depending on the source
// catalog; absence is expected, not an error.
type competitorRecord struct {
	ID             any    `json:"item_id"`
	CompetitorName string `json:"competitor_name"`
	Name           string `json:"item_name"`
	Description    string `json:"description"`
	Brand          string `json:"brand"`
	Quantity       string `json:"quantity"`
	ParentCategory string `json:"parent_category"`
	SalesCategory  string `json:"sales_category"`
	Price          any    `json:"price"`
	Currency       string `json:"currency"`
	CatalogName    string `json:"catalog_name"`
	CatalogStart   string `json:"catalog_start"`
	CatalogEnd     string `json:"catalog_end"`
	Page           int    `json:"page"`
}

// LoadPrimaryItems reads the primary catalog.
func (s *FileSource) LoadPrimaryItems(ctx context.Context) ([]domain.ItemRecord, error) {
	var records []primaryRecord
	if err := s.readJSON(ctx, s.primaryPath, &records); err != nil {
		return nil, err
	}

	items := make([]domain.ItemRecord, 0, len(records))
	for _, r := range records {
		items = append(items, domain.ItemRecord{
			ID: idString(r.ID),
			Fields: map[string]string{
				domain.FieldName:           r.Name,
				domain.FieldDescription:    r.Description,
				domain.FieldParentCategory: r.ParentCategory,
				domain.FieldSalesCategory:  r.SalesCategory,
			},
			Price: ParsePrice(r.Price, r.Currency),
		})
	}

	log.Printf("[CATALOG] loaded %d primary items from %s", len(items), s.primaryPath)
	return items, nil
}

// LoadCompetitorItems reads the extracted competitor catalogs.
func (s *FileSource) LoadCompetitorItems(ctx context.Context) ([]domain.ItemRecord, error) {
	var records []competitorRecord
	if err := s.readJSON(ctx, s.competitorPath, &records); err != nil {
		return nil, err
	}

	items := make([]domain.ItemRecord, 0, len(records))
	for _, r := range records {
		items = append(items, domain.ItemRecord{
			ID: idString(r.ID),
			Fields: map[string]string{
				domain.FieldName:           r.Name,
				domain.FieldDescription:    r.Description,
				domain.FieldParentCategory: r.ParentCategory,
				domain.FieldSalesCategory:  r.SalesCategory,
			},
			Brand:    r.Brand,
			Quantity: r.Quantity,
			Price:    ParsePrice(r.Price, r.Currency),
			Provenance: domain.Provenance{
				CompetitorName: r.CompetitorName,
				CatalogName:    r.CatalogName,
				CatalogStart:   r.CatalogStart,
				CatalogEnd:     r.CatalogEnd,
				Page:           r.Page,
			},
		})
	}

	log.Printf("[CATALOG] loaded %d competitor items from %s", len(items), s.competitorPath)
	return items, nil
}

// readJSON loads and decodes one catalog file.
func (s *FileSource) readJSON(ctx context.Context, path string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", domain.ErrSourceUnavailable, path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", domain.ErrSourceUnavailable, path, err)
	}
	return nil
}

// idString normalizes an identifier that may arrive as a JSON number or
// string. Anything else yields "" and the pipeline skips the record.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		if id == float64(int64(id)) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

// ParsePrice turns a raw price value into a PriceRange. Primary catalog
// prices may be ranges like "£1.50-3.00"; competitor prices are single
// values. Malformed input yields nil (price absent) rather than an error:
// prices are carried through for presentation, never scored.
func ParsePrice(raw any, currency string) *domain.PriceRange {
	var text string
	switch v := raw.(type) {
	case nil:
		return nil
	case float64:
		return &domain.PriceRange{Min: v, Max: v, Currency: currency}
	case string:
		text = v
	case json.Number:
		text = v.String()
	default:
		return nil
	}

	cleaner := strings.NewReplacer("£", "", "$", "", "€", "", " ", "")
	text = cleaner.Replace(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	parts := strings.SplitN(text, "-", 2)
	min, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil
	}
	max := min
	if len(parts) == 2 {
		if max, err = strconv.ParseFloat(parts[1], 64); err != nil {
			return nil
		}
	}

	return &domain.PriceRange{Min: min, Max: max, Currency: currency}
}
