package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.Status())
	assert.Equal(t, http.StatusBadRequest, KindConflict.Status())
	assert.Equal(t, http.StatusForbidden, KindForbidden.Status())
	assert.Equal(t, http.StatusUnauthorized, KindNotAuthorized.Status())
	assert.Equal(t, http.StatusNotFound, KindNotFound.Status())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.Status())
}

func TestErrorsIsByKind(t *testing.T) {
	err := fmt.Errorf("accept: %w", Conflict("Request is already %s.", "accepted"))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "Request is already accepted.", Message(err))
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := Internal(cause)
	assert.Equal(t, "Server Error", Message(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestForbiddenClass(t *testing.T) {
	assert.True(t, IsForbiddenClass(Forbidden("x")))
	assert.True(t, IsForbiddenClass(NotAuthorized("x")))
	assert.False(t, IsForbiddenClass(NotFound("x")))
}
