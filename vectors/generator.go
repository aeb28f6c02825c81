package vectors

import (
	"context"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

// TextEmbedder embeds texts with the instruction for kind.
type TextEmbedder interface {
	Embed(ctx context.Context, kind string, texts []string) ([][]float64, error)
}

// Generator exports node text, embeds it and pushes the vectors back.
type Generator struct {
	exporter  *Exporter
	embedder  TextEmbedder
	pusher    *Pusher
	chunkSize int
	log       *logger.Logger
}

// NewGenerator wires the three passes together. Texts are sent to the model in
// chunks of the pusher's batch size.
func NewGenerator(exporter *Exporter, embedder TextEmbedder, pusher *Pusher, log *logger.Logger) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		exporter:  exporter,
		embedder:  embedder,
		pusher:    pusher,
		chunkSize: pusher.opts.BatchSize,
		log:       log.With("component", "VectorGenerator"),
	}
}

// Generate embeds up to limit nodes per kind (all when limit <= 0) and stores
// their vectors.
func (g *Generator) Generate(ctx context.Context, kinds []mealgraph.Kind, limit int) (*PushReport, error) {
	docs, err := g.exporter.Export(ctx, kinds, limit)
	if err != nil {
		return nil, err
	}

	byKind := map[mealgraph.Kind][]Document{}
	for _, d := range docs {
		byKind[mealgraph.Kind(d.Type)] = append(byKind[mealgraph.Kind(d.Type)], d)
	}

	batch := &Batch{Rows: map[mealgraph.Kind][]mealgraph.VectorRow{}}
	for _, kind := range kinds {
		kd := byKind[kind]
		for start := 0; start < len(kd); start += g.chunkSize {
			end := min(start+g.chunkSize, len(kd))
			texts := make([]string, 0, end-start)
			for _, d := range kd[start:end] {
				texts = append(texts, d.Text)
			}
			vecs, err := g.embedder.Embed(ctx, string(kind), texts)
			if err != nil {
				return nil, fmt.Errorf("embed %s documents %d-%d: %w", kind, start, end, err)
			}
			for i, v := range vecs {
				batch.Add(kind, kd[start+i].ID, v)
			}
		}
		g.log.Info("generated embeddings", "kind", kind, "count", len(kd))
	}
	return g.pusher.Push(ctx, batch)
}
