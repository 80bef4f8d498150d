package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "cvforge/internal/errors"
)

func TestSum_Deterministic(t *testing.T) {
	a, err := Sum([]byte("cv:\n  name: Ada\n"))
	require.NoError(t, err)
	b, err := Sum([]byte("cv:\n  name: Ada\n"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64, "sha256 hex digest")
}

func TestSum_DifferentContentDiffers(t *testing.T) {
	a, err := Sum([]byte("cv:\n  name: Ada\n"))
	require.NoError(t, err)
	b, err := Sum([]byte("cv:\n  name: Alan\n"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSum_NFCNormalization(t *testing.T) {
	// "é" as a single codepoint vs 'e' + combining acute accent.
	composed := "résumé"
	decomposed := "résumé"

	a, err := SumString(composed)
	require.NoError(t, err)
	b, err := SumString(decomposed)
	require.NoError(t, err)
	assert.Equal(t, a, b, "NFC-equivalent text must fingerprint identically")
}

func TestSum_InvalidUTF8(t *testing.T) {
	_, err := Sum([]byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryInput, apperrors.CategoryOf(err))
}

func TestSum_Empty(t *testing.T) {
	a, err := Sum(nil)
	require.NoError(t, err)
	b, err := Sum([]byte{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
