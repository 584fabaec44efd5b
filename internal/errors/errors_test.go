package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "resource not found"},
			want: "resource not found",
		},
		{
			name: "error with cause",
			err:  &AppError{Code: ErrCodeInternal, Message: "failed to process", Cause: errors.New("underlying error")},
			want: "failed to process: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrapf(cause, ErrCodeInternal, "wrapped %s", "error")

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(Wrapf(...), cause) = false")
	}
	if err.Message != "wrapped error" {
		t.Errorf("Wrapf().Message = %q", err.Message)
	}
	if Wrapf(nil, ErrCodeInternal, "x") != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}

func TestConstructorsAndPredicates(t *testing.T) {
	nf := NotFoundf("user %s not found", "u1")
	if !IsNotFound(nf) || nf.Message != "user u1 not found" {
		t.Errorf("NotFoundf() = %+v", nf)
	}

	v := ValidationField("role", "unknown role")
	if !IsValidation(v) || GetField(v) != "role" {
		t.Errorf("ValidationField() = %+v", v)
	}

	wrapped := fmt.Errorf("outer: %w", &AppError{Code: ErrCodeUnavailable, Message: "down"})
	if !IsUnavailable(wrapped) {
		t.Error("IsUnavailable should see through wrapping")
	}
	if GetCode(errors.New("plain")) != "" || GetField(errors.New("plain")) != "" {
		t.Error("plain errors carry no code or field")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFoundf("x"), http.StatusNotFound},
		{&AppError{Code: ErrCodeConflict}, http.StatusConflict},
		{ValidationField("f", "bad"), http.StatusBadRequest},
		{&AppError{Code: ErrCodeUnavailable}, http.StatusServiceUnavailable},
		{MapDBError(context.DeadlineExceeded), http.StatusGatewayTimeout},
		{MapDBError(context.Canceled), 499},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
