package pgvector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorToString(t *testing.T) {
	assert.Equal(t, "[1,-2.5,0]", vectorToString([]float32{1, -2.5, 0}))
	assert.Equal(t, "[]", vectorToString(nil))
}

func TestParseVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -3, 1e-5, 42}
	out, err := parseVector(vectorToString(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseVectorMalformed(t *testing.T) {
	for _, s := range []string{"", "1,2,3", "[1,2", "[a,b]"} {
		_, err := parseVector(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestParseVectorEmpty(t *testing.T) {
	out, err := parseVector("[]")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestIdentifierValidation(t *testing.T) {
	assert.True(t, identRe.MatchString("document_vectors"))
	assert.True(t, identRe.MatchString("Docs42"))
	assert.False(t, identRe.MatchString("42docs"))
	assert.False(t, identRe.MatchString("docs; DROP TABLE"))
	assert.False(t, identRe.MatchString(""))
}
