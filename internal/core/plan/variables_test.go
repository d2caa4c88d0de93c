package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteVariables(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		variables map[string]string
		want      string
	}{
		{
			name:      "simple substitution",
			value:     "${DB_HOST}",
			variables: map[string]string{"DB_HOST": "relational_db"},
			want:      "relational_db",
		},
		{
			name:      "embedded in larger string",
			value:     "postgres://user@${DB_HOST}:5432/app",
			variables: map[string]string{"DB_HOST": "relational_db"},
			want:      "postgres://user@relational_db:5432/app",
		},
		{
			name:      "default used when missing",
			value:     "${PORT:-8080}",
			variables: map[string]string{},
			want:      "8080",
		},
		{
			name:      "value wins over default",
			value:     "${PORT:-8080}",
			variables: map[string]string{"PORT": "9000"},
			want:      "9000",
		},
		{
			name:      "missing without default kept as-is",
			value:     "${MISSING}",
			variables: map[string]string{},
			want:      "${MISSING}",
		},
		{
			name:      "empty default",
			value:     "${OPTIONAL:-}",
			variables: map[string]string{},
			want:      "",
		},
		{
			name:      "multiple placeholders",
			value:     "${A}-${B}",
			variables: map[string]string{"A": "x", "B": "y"},
			want:      "x-y",
		},
		{
			name:      "nil variables map",
			value:     "${VAR:-fallback}",
			variables: nil,
			want:      "fallback",
		},
		{
			name:      "no placeholders",
			value:     "plain value",
			variables: map[string]string{"A": "x"},
			want:      "plain value",
		},
		{
			name:      "empty value substituted",
			value:     "${EMPTY}",
			variables: map[string]string{"EMPTY": ""},
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubstituteVariables(tt.value, tt.variables)
			assert.Equal(t, tt.want, got)
		})
	}
}
