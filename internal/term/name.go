package term

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lexicon/internal/apperr"
)

// File names inside a project.
const (
	IndexFile       = "terms.json"
	DescriptionFile = "description.json"
	LinksFile       = "links.json"
)

// maxNameBytes is the file name limit of common filesystems.
const maxNameBytes = 255

var nameCharsRe = regexp.MustCompile(`^[^/\\\x00-\x1f]*$`)

// ValidateName reports whether name can be used as a term name. Names double
// as directory names, so anything that could escape the project root or
// collide with the index file is rejected.
func ValidateName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.By(checkNameBytes),
		validation.Match(nameCharsRe).Error("must not contain path separators or control characters"),
		validation.By(checkNameEdges),
		validation.NotIn(IndexFile).Error("is reserved"),
	)
	if err != nil {
		return fmt.Errorf("%w %q: %v", apperr.ErrIllegalName, name, err)
	}
	return nil
}

func checkNameEdges(value interface{}) error {
	s, _ := value.(string)
	switch {
	case strings.TrimSpace(s) == "":
		return errors.New("must not be blank")
	case strings.TrimLeftFunc(s, unicode.IsSpace) != s || strings.TrimRightFunc(s, unicode.IsSpace) != s:
		return errors.New("must not start or end with whitespace")
	case strings.HasPrefix(s, "."):
		return errors.New("must not start with a dot")
	}
	return nil
}

func checkNameBytes(value interface{}) error {
	s, _ := value.(string)
	if len(s) > maxNameBytes {
		return fmt.Errorf("must be at most %d bytes long", maxNameBytes)
	}
	return nil
}
