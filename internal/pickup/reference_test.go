package pickup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabet(t *testing.T) {
	assert.Len(t, Alphabet, 32)
	for _, ambiguous := range "01OI" {
		assert.NotContains(t, Alphabet, string(ambiguous))
	}
}

func TestNewReference(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		ref, err := NewReference()
		require.NoError(t, err)
		require.Len(t, ref, ReferenceLength)
		for _, c := range ref {
			require.True(t, strings.ContainsRune(Alphabet, c), "unexpected symbol %q", c)
		}
		seen[ref] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}

func TestInstructionsMentionProvider(t *testing.T) {
	lines := Instructions("MoneyGram")
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "MoneyGram")
}
