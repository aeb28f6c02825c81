package mealgraph

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type runCall struct {
	query  string
	params map[string]any
}

// fakeRunner records every query and replays queued results in order. When the
// queue is empty it returns an empty result.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []runCall
	results []*neo4j.EagerResult
	errs    []error
}

func (f *fakeRunner) enqueue(res *neo4j.EagerResult, err error) *fakeRunner {
	f.results = append(f.results, res)
	f.errs = append(f.errs, err)
	return f
}

func (f *fakeRunner) Run(_ context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runCall{query: query, params: params})
	if len(f.results) == 0 {
		return &neo4j.EagerResult{}, nil
	}
	res, err := f.results[0], f.errs[0]
	f.results, f.errs = f.results[1:], f.errs[1:]
	if res == nil && err == nil {
		res = &neo4j.EagerResult{}
	}
	return res, err
}

func (f *fakeRunner) lastCall() runCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// rows builds an EagerResult whose records all share the given keys.
func rows(keys []string, values ...[]any) *neo4j.EagerResult {
	res := &neo4j.EagerResult{Keys: keys}
	for _, v := range values {
		res.Records = append(res.Records, &neo4j.Record{Keys: keys, Values: v})
	}
	return res
}
