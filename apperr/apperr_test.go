package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := BadCredentials("Authentication failed.")

	assert.True(t, errors.Is(err, ErrBadCredentials))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("login: %w", err)
	assert.True(t, errors.Is(wrapped, ErrBadCredentials))
	assert.Equal(t, KindBadCredentials, KindOf(wrapped))
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("An error occurred during login.", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.False(t, IsDomain(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindOfUntypedError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:            http.StatusNotFound,
		KindBadCredentials:      http.StatusUnauthorized,
		KindThrottled:           http.StatusTooManyRequests,
		KindUnsupportedStrategy: http.StatusBadRequest,
		KindValidation:          http.StatusBadRequest,
		KindAlreadyExists:       http.StatusConflict,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), string(kind))
	}
}
