package channels

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusForbidden, ErrCodePermission},
		{http.StatusNotFound, ErrCodeNotFound},
		{http.StatusTooManyRequests, ErrCodeRateLimit},
		{http.StatusUnauthorized, ErrCodeAuthentication},
		{http.StatusBadGateway, ErrCodeConnection},
		{http.StatusTeapot, ErrCodeInternal},
	}
	for _, tt := range tests {
		if got := FromHTTPStatus(tt.status); got != tt.want {
			t.Errorf("FromHTTPStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestErrorClassificationThroughWrapping(t *testing.T) {
	base := ErrPermission("unpin message", errors.New("403 Forbidden"))
	wrapped := fmt.Errorf("process pin: %w", base)

	if !IsPermissionDenied(wrapped) {
		t.Fatal("expected wrapped permission error to be detected")
	}
	if IsNotFound(wrapped) {
		t.Fatal("permission error must not look like not-found")
	}
	if GetErrorCode(errors.New("plain")) != ErrCodeInternal {
		t.Fatal("plain errors should classify as internal")
	}
	if IsPermissionDenied(nil) {
		t.Fatal("nil is not a permission error")
	}
}

func TestErrorMessageAndTransient(t *testing.T) {
	err := NewError(ErrCodeRateLimit, "send", errors.New("429"))
	if got := err.Error(); got != "[RATE_LIMIT_ERROR] send: 429" {
		t.Errorf("Error() = %q", got)
	}
	if !err.Transient() {
		t.Error("rate limit errors are transient")
	}
	if ErrPermission("x", nil).Transient() {
		t.Error("permission errors are not transient")
	}
	if got := ErrNotFound("missing", nil).Error(); got != "[NOT_FOUND] missing" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsTransientThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("fetch pins: %w", ErrTimeout("pinned_messages", errors.New("deadline")))
	if !IsTransient(wrapped) {
		t.Fatal("wrapped timeout should be transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Fatal("plain errors are not transient")
	}
	if IsTransient(ErrInternal("boom", nil)) {
		t.Fatal("internal errors are not transient")
	}
}
