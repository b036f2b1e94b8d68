package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructorsMapToExpectedStatusAndKind(t *testing.T) {
	cases := []struct {
		name       string
		err        *Error
		wantStatus int
		wantKind   error
	}{
		{"auth failure", AuthFailure("bad token"), http.StatusForbidden, ErrAuthFailure},
		{"not found", NotFound("room %s", "abcd"), http.StatusNotFound, ErrNotFound},
		{"gone", Gone("room %s", "abcd"), http.StatusGone, ErrNotFound},
		{"state conflict", StateConflict("already active"), http.StatusBadRequest, ErrStateConflict},
		{"capacity exhausted", CapacityExhausted(http.StatusConflict, "room full"), http.StatusConflict, ErrCapacityExhausted},
		{"crypto", Crypto("unwrap failed"), http.StatusInternalServerError, ErrCrypto},
		{"storage", Storage("write failed"), http.StatusInternalServerError, ErrStorage},
		{"validation", Validation(http.StatusBadRequest, "missing field"), http.StatusBadRequest, ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.wantStatus, tc.err.Status)
			require.True(t, errors.Is(tc.err, tc.wantKind))
			require.Equal(t, tc.wantStatus, StatusCode(tc.err))
		})
	}
}

func TestStatusCodeDefaultsTo500ForPlainErrors(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom")))
}

func TestErrorMessageFallsBackToKindWhenUnset(t *testing.T) {
	bare := &Error{Kind: ErrNotFound, Status: http.StatusNotFound}
	require.Equal(t, ErrNotFound.Error(), bare.Error())
}
