package evaluation

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidScore = errors.New("invalid score")
	ErrGeneration   = errors.New("generation failed")
)

// InvalidScoreError reports a score that has no entry in the reason code table.
type InvalidScoreError struct {
	Score int
}

func (e *InvalidScoreError) Error() string {
	return fmt.Sprintf("AI model returned invalid score %d. Expected score between %d-%d.", e.Score, MinScore, MaxScore)
}

func (e *InvalidScoreError) Unwrap() error { return ErrInvalidScore }

// WrapError preserves the error kind together with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
