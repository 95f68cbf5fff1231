package pipeline

import (
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/customer-intel/internal/model"
)

// ErrMissingPrerequisite signals that an upstream artifact this stage
// depends on is not stored yet. The message is dropped without retry; some
// other branch will re-trigger the stage once the artifact lands.
var ErrMissingPrerequisite = errors.New("pipeline: missing prerequisite")

// GenerationError marks a generation service failure. It propagates to the
// transport so its redelivery and dead-letter policy applies.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return "pipeline: " + e.Stage + " generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func generationFailure(stage string, err error) error {
	return &GenerationError{Stage: stage, Err: err}
}

// shouldDrop reports whether a handler error is terminal for the message:
// invalid input and missing prerequisites are logged and acknowledged,
// everything else goes back to the transport.
func shouldDrop(err error) bool {
	// Generation failures always retry, even when the underlying cause is
	// the generated entity failing validation.
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return false
	}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return true
	}
	return errors.Is(err, ErrMissingPrerequisite)
}

func missingPrerequisite(what, key string) error {
	return eris.Wrapf(ErrMissingPrerequisite, "%s for %s", what, key)
}
