// Package dedup removes duplicate ingredients: nodes whose names collide under
// case-insensitive comparison are merged into a single survivor.
//
// A merge moves every CONTAINS and CLASSIFIED_AS edge of a loser onto the
// survivor, copies the loser's embedding if the survivor has none, verifies the
// loser has no relationships left and deletes it. Each step is idempotent, so an
// interrupted run converges when repeated.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/lock"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

// Store is the graph access the engine needs. Both graph adapters implement it.
type Store interface {
	// DuplicateCandidates returns a superset of the ingredients that belong to
	// a duplicate group. Grouping is done by the engine.
	DuplicateCandidates(ctx context.Context) ([]mealgraph.IngredientRef, error)
	TransferContains(ctx context.Context, loserID, survivorID string) (int, error)
	TransferClassifiedAs(ctx context.Context, loserID, survivorID string) (int, error)
	CopyEmbeddingIfMissing(ctx context.Context, loserID, survivorID string) (bool, error)
	RelationshipCount(ctx context.Context, id string) (int, error)
	DeleteIngredient(ctx context.Context, id string) error
}

// Merge steps reported by MergeError.
const (
	StepTransferContains     = "transfer_contains"
	StepTransferClassifiedAs = "transfer_classified_as"
	StepCopyEmbedding        = "copy_embedding"
	StepVerify               = "verify"
	StepDelete               = "delete"
)

// MergeError reports the merge step that failed for one survivor/loser pair.
type MergeError struct {
	Survivor string
	Loser    string
	Step     string
	Err      error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge %s into %s: %s: %v", e.Loser, e.Survivor, e.Step, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Options tunes a run.
type Options struct {
	// Parallelism bounds the number of groups merged at once. Values below 1 mean 1.
	Parallelism int
	// DryRun computes the plan without writing.
	DryRun bool
}

// Report summarizes a run.
type Report struct {
	Groups           []Group `json:"-"`
	GroupCount       int     `json:"groups"`
	Deleted          int     `json:"deleted"`
	ContainsMoved    int     `json:"contains_moved"`
	ClassifiedMoved  int     `json:"classified_as_moved"`
	EmbeddingsCopied int     `json:"embeddings_copied"`
	DryRun           bool    `json:"dry_run"`
}

// PairResult is the outcome of merging one loser into its survivor.
type PairResult struct {
	ContainsMoved   int
	ClassifiedMoved int
	EmbeddingCopied bool
	Deleted         bool
}

// Engine detects and merges duplicate ingredients.
type Engine struct {
	store  Store
	locker lock.Locker
	log    *logger.Logger
}

// NewEngine creates an Engine. A nil locker falls back to an in-process lock.
func NewEngine(store Store, locker lock.Locker, log *logger.Logger) *Engine {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{store: store, locker: locker, log: log.With("component", "DedupEngine")}
}

// FindDuplicateGroups returns every group of two or more ingredients sharing a
// case-insensitive name, ordered by key, each in survivor order.
func (e *Engine) FindDuplicateGroups(ctx context.Context) ([]Group, error) {
	refs, err := e.store.DuplicateCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("find duplicate candidates: %w", err)
	}
	return GroupDuplicates(refs), nil
}

// Run finds every duplicate group and merges them, up to opts.Parallelism
// groups at a time. Each group is merged under its own lock. The first merge
// failure stops the run and is returned along with what was merged so far.
func (e *Engine) Run(ctx context.Context, opts Options) (Report, error) {
	groups, err := e.FindDuplicateGroups(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{Groups: groups, GroupCount: len(groups), DryRun: opts.DryRun}
	if opts.DryRun || len(groups) == 0 {
		for _, g := range groups {
			e.log.Info("duplicate group", "key", g.Key, "survivor", g.Survivor().ID, "losers", len(g.Losers()))
		}
		return report, nil
	}

	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, group := range groups {
		g.Go(func() error {
			results, err := e.MergeGroup(gctx, group)
			mu.Lock()
			for _, r := range results {
				report.ContainsMoved += r.ContainsMoved
				report.ClassifiedMoved += r.ClassifiedMoved
				if r.EmbeddingCopied {
					report.EmbeddingsCopied++
				}
				if r.Deleted {
					report.Deleted++
				}
			}
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()
	e.log.Info("dedup run finished",
		"groups", report.GroupCount,
		"deleted", report.Deleted,
		"contains_moved", report.ContainsMoved,
		"classified_as_moved", report.ClassifiedMoved,
		"embeddings_copied", report.EmbeddingsCopied,
	)
	return report, err
}

// MergeGroup merges every loser of the group into its survivor while holding
// the group's lock. It stops at the first failing pair.
func (e *Engine) MergeGroup(ctx context.Context, g Group) ([]PairResult, error) {
	if len(g.Members) < 2 {
		return nil, nil
	}
	release, err := e.locker.Acquire(ctx, "dedup:ingredient:"+g.Key)
	if err != nil {
		return nil, fmt.Errorf("lock group %q: %w", g.Key, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			e.log.Warn("release group lock", "key", g.Key, "error", err)
		}
	}()

	survivor := g.Survivor()
	results := make([]PairResult, 0, len(g.Losers()))
	for _, loser := range g.Losers() {
		e.log.Info("merging duplicate ingredient",
			"key", g.Key,
			"survivor", survivor.ID, "survivor_category", survivor.Category,
			"loser", loser.ID, "loser_category", loser.Category,
		)
		res, err := e.MergePair(ctx, survivor.ID, loser.ID)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// MergePair merges one loser into the survivor. The loser is only deleted after
// it is verified to have no relationships; otherwise the merge aborts with
// mealgraph.ErrMergeInvariantViolation and nothing is deleted.
//
// A loser that no longer exists (a previous run already deleted it) is not an
// error.
func (e *Engine) MergePair(ctx context.Context, survivorID, loserID string) (PairResult, error) {
	var res PairResult
	fail := func(step string, err error) (PairResult, error) {
		return res, &MergeError{Survivor: survivorID, Loser: loserID, Step: step, Err: err}
	}
	if survivorID == loserID {
		return fail(StepVerify, errors.New("survivor and loser are the same node"))
	}

	moved, err := e.store.TransferContains(ctx, loserID, survivorID)
	if err != nil {
		return fail(StepTransferContains, err)
	}
	res.ContainsMoved = moved

	moved, err = e.store.TransferClassifiedAs(ctx, loserID, survivorID)
	if err != nil {
		return fail(StepTransferClassifiedAs, err)
	}
	res.ClassifiedMoved = moved

	copied, err := e.store.CopyEmbeddingIfMissing(ctx, loserID, survivorID)
	if err != nil {
		return fail(StepCopyEmbedding, err)
	}
	res.EmbeddingCopied = copied

	remaining, err := e.store.RelationshipCount(ctx, loserID)
	if errors.Is(err, mealgraph.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return fail(StepVerify, err)
	}
	if remaining > 0 {
		e.log.Error("loser still has relationships after transfer",
			"survivor", survivorID, "loser", loserID, "remaining", remaining)
		return fail(StepVerify, fmt.Errorf("%w: %d relationships remain", mealgraph.ErrMergeInvariantViolation, remaining))
	}

	err = e.store.DeleteIngredient(ctx, loserID)
	if errors.Is(err, mealgraph.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return fail(StepDelete, err)
	}
	res.Deleted = true
	return res, nil
}
