// Package vectors moves embedding vectors between files, embedding models and
// the graph store.
package vectors

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
)

// Item is one entry of a vector file.
type Item struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Embedding []float64 `json:"embedding"`
}

// UnmarshalJSON accepts numeric ids as well as strings.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Type      string          `json:"type"`
		Embedding []float64       `json:"embedding"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	it.Type = raw.Type
	it.Embedding = raw.Embedding
	it.ID = ""
	if len(raw.ID) == 0 || string(raw.ID) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.ID, &s); err == nil {
		it.ID = s
		return nil
	}
	it.ID = strings.TrimSpace(string(raw.ID))
	return nil
}

// Batch holds vector rows grouped by kind.
type Batch struct {
	Rows    map[mealgraph.Kind][]mealgraph.VectorRow
	Skipped int
}

// Len returns the number of rows across all kinds.
func (b *Batch) Len() int {
	n := 0
	for _, rows := range b.Rows {
		n += len(rows)
	}
	return n
}

// Add appends a vector for kind.
func (b *Batch) Add(kind mealgraph.Kind, id string, vec []float64) {
	if b.Rows == nil {
		b.Rows = map[mealgraph.Kind][]mealgraph.VectorRow{}
	}
	b.Rows[kind] = append(b.Rows[kind], mealgraph.VectorRow{ID: id, Vector: vec})
}

// LoadFile reads a JSON array of {id, type, embedding} items.
func LoadFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a vector file from r. Items without an id or embedding, or with
// an unknown type, are skipped and counted.
func Decode(r io.Reader) (*Batch, error) {
	var items []Item
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode vector file: %w", err)
	}
	b := &Batch{Rows: map[mealgraph.Kind][]mealgraph.VectorRow{}}
	for _, it := range items {
		kind, err := mealgraph.ParseKind(it.Type)
		if err != nil || it.ID == "" || len(it.Embedding) == 0 {
			b.Skipped++
			continue
		}
		b.Add(kind, it.ID, it.Embedding)
	}
	return b, nil
}
