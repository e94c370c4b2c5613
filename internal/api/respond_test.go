package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	errs "venue-rails/pkg/errors"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", errs.NewNotFound("op", "venue", 9), http.StatusNotFound},
		{"stale write", errs.NewStaleWrite("op", 9), http.StatusConflict},
		{"provider timeout", errs.NewTimeout("op", "openai", errors.New("deadline")), http.StatusGatewayTimeout},
		{"provider failure", errs.NewProviderError("op", "maps", errors.New("500")), http.StatusBadGateway},
		{"validation", errs.NewValidation("op", "bad input", nil), http.StatusBadRequest},
		{"coded validation", errs.NewValidationCode("op", errs.CodeInvalidSort, "bad sort"), http.StatusBadRequest},
		{"database", errs.NewDB("op", "query failed", errors.New("io")), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped not found", errs.NewDB("op", "wrap", errs.NewNotFound("inner", "venue", 1)), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteError_Envelopes(t *testing.T) {
	t.Parallel()

	t.Run("coded error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, testLog(t), errs.NewValidationCode("op", errs.CodeInvalidCoords, "half a pair"))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		var body errorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Error.Code != string(errs.CodeInvalidCoords) {
			t.Errorf("code = %q, want INVALID_COORDS", body.Error.Code)
		}
		if body.Error.Message != "half a pair" {
			t.Errorf("message = %q, want the human message", body.Error.Message)
		}
	})

	t.Run("uncoded error uses the detail envelope", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, testLog(t), errs.NewValidation("op", "bad input", nil))

		var body detailBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Detail != "bad input" {
			t.Errorf("detail = %q, want bad input", body.Detail)
		}
	})

	t.Run("operation names stay off the wire", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, testLog(t), errs.NewDB("repository.SearchViewCtx", "view query failed", errors.New("io")))

		if got := rec.Body.String(); got == "" || strings.Contains(got, "repository.SearchViewCtx") {
			t.Errorf("body = %s, must not leak the operation chain", got)
		}
	})
}
