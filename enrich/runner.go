package enrich

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

// Store reads ingredients to enrich and writes the results back.
type Store interface {
	IngredientsForEnrichment(ctx context.Context, name string, onlyUnenriched bool, limit int) ([]*mealgraph.Ingredient, error)
	ApplyEnrichment(ctx context.Context, id string, e *mealgraph.Enrichment) error
}

// Options selects which ingredients a run touches.
type Options struct {
	Limit      int
	Ingredient string
	Force      bool
	DryRun     bool
}

// Report counts the outcome of a run.
type Report struct {
	Processed int  `json:"processed"`
	Enriched  int  `json:"enriched"`
	NotFound  int  `json:"not_found"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	DryRun    bool `json:"dry_run"`
}

// Runner enriches ingredients one lookup at a time, paced by a rate limiter.
type Runner struct {
	store   Store
	source  Source
	limiter *rate.Limiter
	now     func() time.Time
	log     *logger.Logger
}

// NewRunner creates a Runner issuing at most rps lookups per second. A
// non-positive rps disables pacing.
func NewRunner(store Store, source Source, rps float64, log *logger.Logger) *Runner {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		store:   store,
		source:  source,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		log:     log.With("component", "EnrichRunner"),
	}
}

// Run enriches the selected ingredients. Already enriched ingredients are
// skipped unless Force is set. Lookup and write failures are counted and the
// run continues; only listing failures and cancellation abort it.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	onlyPending := !opts.Force && opts.Ingredient == ""
	ingredients, err := r.store.IngredientsForEnrichment(ctx, opts.Ingredient, onlyPending, opts.Limit)
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: opts.DryRun}
	for _, ing := range ingredients {
		if !opts.Force && ing.IsEnriched() {
			report.Skipped++
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return report, err
		}
		report.Processed++

		res, err := r.source.Lookup(ctx, ing.Name)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			r.log.Warn("lookup failed", "ingredient", ing.Name, "id", ing.ID, "error", err)
			report.Failed++
			continue
		}
		if !res.Found {
			r.log.Info("no knowledge-base entry", "ingredient", ing.Name)
			report.NotFound++
			continue
		}

		e, n := Apply(res.Fields)
		e.EnrichedAt = r.now().UTC()
		if opts.DryRun {
			r.log.Info("would enrich ingredient", "ingredient", ing.Name, "fields", n)
			report.Enriched++
			continue
		}
		if err := r.store.ApplyEnrichment(ctx, ing.ID, e); err != nil {
			r.log.Error("enrichment write failed", "ingredient", ing.Name, "id", ing.ID, "error", err)
			report.Failed++
			continue
		}
		r.log.Info("ingredient enriched", "ingredient", ing.Name, "fields", n,
			"completeness", completeness(ing, e))
		report.Enriched++
	}
	r.log.Info("enrichment finished",
		"processed", report.Processed, "enriched", report.Enriched,
		"not_found", report.NotFound, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// completeness is the nutrition completeness of ing once e is applied.
func completeness(ing *mealgraph.Ingredient, e *mealgraph.Enrichment) float64 {
	merged := *ing
	for prop, v := range e.Nutrition.Properties() {
		merged.Nutrition.SetNutrient(prop, v.(float64))
	}
	return merged.NutritionalCompleteness()
}
