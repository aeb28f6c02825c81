package mealgraph

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// recordValue returns the named value of a record, or nil when absent.
func recordValue(rec *neo4j.Record, key string) any {
	if rec == nil {
		return nil
	}
	v, ok := rec.Get(key)
	if !ok {
		return nil
	}
	return v
}

func recordString(rec *neo4j.Record, key string) string {
	v, _ := recordValue(rec, key).(string)
	return v
}

func recordInt(rec *neo4j.Record, key string) int64 {
	switch v := recordValue(rec, key).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func recordFloatPtr(rec *neo4j.Record, key string) *float64 {
	v, ok := propNumber(recordValue(rec, key))
	if !ok {
		return nil
	}
	return &v
}

func recordStrings(rec *neo4j.Record, key string) []string {
	raw, _ := recordValue(rec, key).([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func recordNode(rec *neo4j.Record, key string) (neo4j.Node, error) {
	value, ok := rec.Get(key)
	if !ok {
		return neo4j.Node{}, fmt.Errorf("could not find return value '%s' in query result", key)
	}
	node, ok := value.(neo4j.Node)
	if !ok {
		return neo4j.Node{}, fmt.Errorf("return value '%s' is not a node", key)
	}
	return node, nil
}

// singleCount reads an integer column from the first record, or 0 when there is none.
func singleCount(res *neo4j.EagerResult, key string) int64 {
	if res == nil || len(res.Records) == 0 {
		return 0
	}
	return recordInt(res.Records[0], key)
}
