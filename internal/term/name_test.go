package term

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/lexicon/internal/apperr"
)

func TestValidateName(t *testing.T) {
	for _, name := range []string{"Cat", "html5", "Ünïcödé term", "a.b", "C++"} {
		assert.NoError(t, ValidateName(name), name)
	}

	bad := []string{
		"",
		"   ",
		" lead",
		"trail ",
		"a/b",
		`a\b`,
		"nul\x00",
		"line\nbreak",
		".hidden",
		"..",
		"terms.json",
		strings.Repeat("x", 256),
	}
	for _, name := range bad {
		err := ValidateName(name)
		assert.True(t, errors.Is(err, apperr.ErrIllegalName), "%q: %v", name, err)
	}
}

func TestValidateNameCountsBytes(t *testing.T) {
	assert.NoError(t, ValidateName(strings.Repeat("語", 85)))

	err := ValidateName(strings.Repeat("語", 100))
	assert.True(t, errors.Is(err, apperr.ErrIllegalName), err)
	assert.Contains(t, err.Error(), "bytes")
}
