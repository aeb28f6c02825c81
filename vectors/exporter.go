package vectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

// Source supplies the raw material for export.
type Source interface {
	ExportRows(ctx context.Context, kind mealgraph.Kind, limit int) ([]mealgraph.ExportRow, error)
}

// Document is the text an external model embeds for one node.
type Document struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// Exporter renders graph nodes into embedding documents.
type Exporter struct {
	src Source
	log *logger.Logger
}

func NewExporter(src Source, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{src: src, log: log.With("component", "VectorExporter")}
}

// Export returns documents for kinds, in the given order. Categories are never
// limited.
func (e *Exporter) Export(ctx context.Context, kinds []mealgraph.Kind, limit int) ([]Document, error) {
	var docs []Document
	for _, kind := range kinds {
		l := limit
		if kind == mealgraph.KindCategory {
			l = 0
		}
		rows, err := e.src.ExportRows(ctx, kind, l)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", kind, err)
		}
		for _, row := range rows {
			docs = append(docs, Document{ID: row.ID, Type: string(kind), Text: Text(row)})
		}
		e.log.Info("exported documents", "kind", kind, "count", len(rows))
	}
	return docs, nil
}

// WriteJSON writes docs as an indented JSON array.
func WriteJSON(w io.Writer, docs []Document) error {
	if docs == nil {
		docs = []Document{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(docs)
}

// Text builds the embedding text of a row.
func Text(row mealgraph.ExportRow) string {
	var s string
	switch row.Kind {
	case mealgraph.KindRecipe:
		s = fmt.Sprintf("%s. %s. Ingredients: %s. Categories: %s.",
			orDefault(row.Name, "Recipe"), row.Description,
			strings.Join(row.Related, ", "), strings.Join(row.Categories, ", "))
	case mealgraph.KindIngredient:
		s = fmt.Sprintf("%s. Nutrition: %s. Used in recipes: %s.",
			orDefault(row.Name, "Ingredient"), nutritionSummary(row.Nutrition),
			strings.Join(row.Related, ", "))
	default:
		s = fmt.Sprintf("%s. Type: %s. Contains: %s.",
			orDefault(row.Name, "Category"), orDefault(row.CategoryType, "general"),
			strings.Join(row.Related, ", "))
	}
	return clean(s)
}

// summaryFields lists the nutrition values mentioned in ingredient text.
var summaryFields = []struct{ prop, label, unit string }{
	{"energy_kcal", "calories", ""},
	{"protein_g", "protein", "g"},
	{"carbohydrates_g", "carbs", "g"},
	{"fat_g", "fat", "g"},
}

func nutritionSummary(n map[string]float64) string {
	parts := make([]string, 0, len(summaryFields))
	for _, f := range summaryFields {
		v, ok := n[f.prop]
		if !ok || v == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s%s", f.label, strconv.FormatFloat(v, 'f', -1, 64), f.unit))
	}
	return strings.Join(parts, ", ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func clean(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	return strings.TrimSpace(s)
}
