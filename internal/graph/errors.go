package graph

import (
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// ResolutionError reports a reference the resolver could not locate. From is
// the referencing module, or empty when an entry lists the reference.
type ResolutionError struct {
	From      string
	Entry     string
	Reference string
	Err       error
}

func (e *ResolutionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("entry %q: cannot resolve %q", e.Entry, e.Reference)
	}
	return fmt.Sprintf("cannot resolve %q from %s", e.Reference, e.From)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Classify() *ferrors.ClassifiedError {
	b := ferrors.WrapError(e.Err, ferrors.CategoryResolution, e.Error()).
		Fatal().UserAction().
		WithContext("reference", e.Reference)
	if e.From != "" {
		b = b.WithContext("module", e.From)
	} else {
		b = b.WithContext("entry", e.Entry)
	}
	return b.Build()
}

// CycleError reports a direct reference cycle. Path starts and ends with the
// same module.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "reference cycle: " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) Classify() *ferrors.ClassifiedError {
	return ferrors.NewError(ferrors.CategoryCycle, e.Error()).
		Fatal().UserAction().
		WithContext("path", e.Path).
		Build()
}
