package errorbank

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		http int
		grpc codes.Code
	}{
		{BadRequest("bad"), http.StatusBadRequest, codes.InvalidArgument},
		{Unauthenticated("no token"), http.StatusUnauthorized, codes.Unauthenticated},
		{Forbidden("not yours"), http.StatusForbidden, codes.PermissionDenied},
		{Conflict("duplicate"), http.StatusConflict, codes.AlreadyExists},
		{NotFound("missing"), http.StatusNotFound, codes.NotFound},
		{InvalidTransition("out of order"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{Unprocessable("nope"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{Internal("boom"), http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind()), func(t *testing.T) {
			assert.Equal(t, tt.http, tt.err.StatusCode())
			assert.Equal(t, tt.grpc, tt.err.GRPCCode())
		})
	}
}

func TestWrappingAndDetails(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("failed to persist delivery status",
		WithCause(cause),
		WithDetail("delivery_id", int64(9)),
	)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, int64(9), err.Details()["delivery_id"])
	assert.Equal(t, "failed to persist delivery status", err.Message())
}

func TestFrom(t *testing.T) {
	appErr := NotFound("delivery 9")
	require.Same(t, appErr, From(appErr))

	wrapped := From(errors.New("boom"))
	assert.Equal(t, KindInternal, wrapped.Kind())

	var nilErr error
	assert.Nil(t, From(nilErr))
}

func TestEmptyMessageDefaultsToKind(t *testing.T) {
	err := New(KindConflict, "")
	assert.Equal(t, string(KindConflict), err.Message())
}
