package mealgraph

import (
	"context"
	"fmt"
)

// EnsureSchema creates the uniqueness constraints on the id properties and the
// name indexes used by SearchByName. When dimensions is positive a cosine vector
// index is created per kind as well.
//
// Each statement is independent and best effort: a failure is logged and the
// remaining statements still run. The number of failed statements is returned.
func (pm *PersistenceManager) EnsureSchema(ctx context.Context, dimensions int) int {
	stmts := make([]string, 0, len(Kinds)*3)
	for _, kind := range Kinds {
		label := kind.Label()
		stmts = append(stmts,
			fmt.Sprintf("CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
				kind, label, kind.IDProp()),
			fmt.Sprintf("CREATE INDEX %s_%s_index IF NOT EXISTS FOR (n:%s) ON (n.%s)",
				kind, kind.NameProp(), label, kind.NameProp()),
		)
		if dimensions > 0 {
			stmts = append(stmts, fmt.Sprintf(
				"CREATE VECTOR INDEX %s_embedding_index IF NOT EXISTS FOR (n:%s) ON (n.embedding) "+
					"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
				kind, label, dimensions))
		}
	}

	failed := 0
	for _, stmt := range stmts {
		if _, err := pm.runner.Run(ctx, stmt, nil); err != nil {
			failed++
			pm.log.Warn("schema statement failed", "statement", stmt, "error", err)
			continue
		}
		pm.log.Debug("schema statement applied", "statement", stmt)
	}
	return failed
}
