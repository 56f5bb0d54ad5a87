package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("event %d not found", 1)))
	assert.Equal(t, KindForbidden, KindOf(Forbidden("nope")))
	assert.Equal(t, KindValidation, KindOf(Validation("bad date")))
	assert.Equal(t, KindConflict, KindOf(Conflict("limit reached")))
	assert.Equal(t, KindInternal, KindOf(Internal("db down", errors.New("broken pipe"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain error")))
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("submit request: %w", Conflict("limit reached"))
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("broken pipe")
	err := Internal("db down", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "db down")
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestIsMatchesByKind(t *testing.T) {
	assert.ErrorIs(t, Conflict("limit reached"), Conflict(""))
	assert.NotErrorIs(t, Conflict("limit reached"), NotFound(""))
}
