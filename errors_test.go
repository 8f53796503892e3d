package spindle_test

import (
	"errors"
	"testing"

	"github.com/dargueta/spindle"
	"github.com/stretchr/testify/assert"
)

func TestSpindleErrorWithMessage(t *testing.T) {
	newErr := spindle.ErrBlankJob.WithMessage("side 1")
	assert.Equal(
		t, "Blank job not allowed: side 1", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, spindle.ErrBlankJob)
	assert.NotErrorIs(t, newErr, spindle.ErrDiskFull)
}

func TestSpindleErrorWrap(t *testing.T) {
	originalErr := errors.New("permission denied")
	newErr := spindle.ErrIOFailed.Wrap(originalErr)
	expectedMessage := "Input/output error: permission denied"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, spindle.ErrIOFailed, "Spindle error not set as parent")
}

func TestInternalfPanics(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if assert.True(t, ok, "panic value should be an error") {
			assert.ErrorIs(t, err, spindle.ErrInternal)
			assert.Contains(t, err.Error(), "unit overflow at 7")
		}
	}()
	spindle.Internalf("unit overflow at %d", 7)
}
