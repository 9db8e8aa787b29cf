package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("department %s not found", "x"), http.StatusNotFound},
		{"table not found", TableNotFound("table %s not found", "t"), http.StatusNotFound},
		{"unauthorized", Unauthorized("no access"), http.StatusForbidden},
		{"unauthenticated", Unauthenticated("login required"), http.StatusUnauthorized},
		{"bad request", BadRequest("bad"), http.StatusBadRequest},
		{"connection", DatabaseConnection(errors.New("dial tcp: connection refused")), http.StatusBadGateway},
		{"generic", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("update: %w", NotFound("gone")), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.err); got != tt.want {
				t.Fatalf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(errors.New("secret detail")); got != "Internal server error" {
		t.Fatalf("generic message leaked: %q", got)
	}
	if got := PublicMessage(fmt.Errorf("ctx: %w", TableNotFound("Table %s not found", "sales"))); got != "Table sales not found" {
		t.Fatalf("PublicMessage() = %q", got)
	}
}

func TestDatabaseConnectionUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := DatabaseConnection(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected DatabaseConnection to wrap its cause")
	}
	if !Is(err, KindDatabaseConnection) {
		t.Fatalf("KindOf() = %s", KindOf(err))
	}
	if Is(nil, KindGeneric) {
		t.Fatal("nil error should not match any kind")
	}
}
