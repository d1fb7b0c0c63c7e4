package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"oqs-hq/chatrelay/pkg/proxy/types"
)

func TestRecoveryMiddleware(t *testing.T) {
	t.Run("recovers from panic", func(t *testing.T) {
		wrapped := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Status code = %v, want %v", w.Code, http.StatusInternalServerError)
		}
		var body types.ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error.Type != types.ErrorTypeServerError {
			t.Errorf("unexpected error type %q", body.Error.Type)
		}
	})

	t.Run("passes through normal requests", func(t *testing.T) {
		wrapped := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("OK"))
		}))

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		if w.Code != http.StatusOK || w.Body.String() != "OK" {
			t.Errorf("unexpected response %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("re-raises abort", func(t *testing.T) {
		wrapped := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		defer func() {
			if recover() != http.ErrAbortHandler {
				t.Error("expected http.ErrAbortHandler to propagate")
			}
		}()
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	})
}
