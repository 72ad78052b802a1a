package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "nil slice",
			input: nil,
			want:  nil,
		},
		{
			name:  "empty slice",
			input: []string{},
			want:  []string{},
		},
		{
			name:  "trims padding",
			input: []string{"  DRAFT  ", "SUBMITTED "},
			want:  []string{"DRAFT", "SUBMITTED"},
		},
		{
			name:  "drops repeats keeping first-seen order",
			input: []string{"SUBMITTED", "DRAFT", "SUBMITTED"},
			want:  []string{"SUBMITTED", "DRAFT"},
		},
		{
			name:  "drops blanks",
			input: []string{"DRAFT", "", "   ", "SETTLED"},
			want:  []string{"DRAFT", "SETTLED"},
		},
		{
			name:  "keeps case distinctions",
			input: []string{"Draft", "draft"},
			want:  []string{"Draft", "draft"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}
