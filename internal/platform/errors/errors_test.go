package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorWrappingAndCodeOf(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeStorageUnavailable, "append assertion", cause)

	if !stderrors.Is(err, New(CodeStorageUnavailable, "other message")) {
		t.Fatal("expected code-based Is match")
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}

	wrapped := fmt.Errorf("orchestrate: %w", err)
	if got := CodeOf(wrapped); got != CodeStorageUnavailable {
		t.Fatalf("code = %q, want %q", got, CodeStorageUnavailable)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("foreign code = %q, want %q", got, CodeUnknown)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeSubjectRequired, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeStorageUnavailable, http.StatusServiceUnavailable},
		{CodeUnknown, http.StatusInternalServerError},
		{CodeConfigMissingDID, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("status for %q = %d, want %d", tc.code, got, tc.want)
		}
	}
}
