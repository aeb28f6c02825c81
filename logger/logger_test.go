package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVs(t *testing.T) {
	tests := []struct {
		name string
		in   []interface{}
		want []interface{}
	}{
		{
			name: "plain values pass through",
			in:   []interface{}{"kind", "recipe", "count", 3},
			want: []interface{}{"kind", "recipe", "count", 3},
		},
		{
			name: "credential keys are redacted",
			in:   []interface{}{"neo4j_password", "hunter2", "API_KEY", "sk-123"},
			want: []interface{}{"neo4j_password", "[REDACTED]", "API_KEY", "[REDACTED]"},
		},
		{
			name: "dangling key is kept",
			in:   []interface{}{"kind", "recipe", "orphan"},
			want: []interface{}{"kind", "recipe", "orphan"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeKVs(tt.in))
		})
	}
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	log := Nop().With("component", "test")
	assert.NotPanics(t, func() {
		log.Info("hello", "token", "abc")
		log.Warn("warn")
	})
}
