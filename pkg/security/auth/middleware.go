package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"oqs-hq/chatrelay/pkg/proxy"
	"oqs-hq/chatrelay/pkg/proxy/types"
	"oqs-hq/chatrelay/pkg/telemetry/logging"
)

// Middleware rejects requests without a valid key in header with 401 and
// stores the client name in the context of the others. For the
// Authorization header the "Bearer" scheme is stripped.
func Middleware(v *Validator, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := v.Validate(extractKey(r, header))
			if err != nil {
				slog.WarnContext(r.Context(), "rejected request",
					"error", err,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				unauthorized(w, err)
				return
			}

			ctx := logging.WithClient(r.Context(), key.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractKey(r *http.Request, header string) string {
	value := strings.TrimSpace(r.Header.Get(header))
	if strings.EqualFold(header, "Authorization") {
		if scheme, token, ok := strings.Cut(value, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return value
}

func unauthorized(w http.ResponseWriter, err error) {
	msg := "invalid API key"
	if errors.Is(err, ErrMissingKey) {
		msg = "missing API key"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="chatrelay"`)
	_ = proxy.WriteErrorResponse(w, types.NewErrorResponse(msg, types.ErrorTypeAuthentication, "", types.CodeInvalidAPIKey))
}
