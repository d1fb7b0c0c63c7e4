package proxy

import (
	"errors"
	"fmt"

	"oqs-hq/chatrelay/pkg/providerfactory"
	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/proxy/types"
)

// HandleError converts an error into the gateway error envelope. Client
// input errors map to 400; upstream failures never reach this point on the
// chat paths (they degrade) but do on /models-style lookups.
//
// Example usage:
//
//	if err != nil {
//	    WriteErrorResponse(w, HandleError(err))
//	    return
//	}
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	var valErr *providers.ValidationError
	if errors.As(err, &valErr) {
		code := types.CodeInvalidValue
		switch valErr.Field {
		case "message":
			code = types.CodeMissingField
		case "backend":
			code = types.CodeUnknownBackend
		}
		return types.NewInvalidRequestError(valErr.Message, valErr.Field, code)
	}

	if errors.Is(err, providerfactory.ErrUnknownBackend) {
		return types.NewInvalidRequestError(err.Error(), "backend", types.CodeUnknownBackend)
	}

	var providerErr *providers.ProviderError
	if errors.As(err, &providerErr) {
		return types.NewServiceUnavailableError(
			fmt.Sprintf("backend %q answered with status %d", providerErr.Provider, providerErr.StatusCode),
		)
	}

	var timeoutErr *providers.TimeoutError
	if errors.As(err, &timeoutErr) {
		return types.NewServiceUnavailableError(fmt.Sprintf("backend %q timed out", timeoutErr.Provider))
	}

	var transportErr *providers.TransportError
	if errors.As(err, &transportErr) {
		return types.NewServiceUnavailableError(fmt.Sprintf("backend %q is unreachable", transportErr.Provider))
	}

	return types.NewServerError("An internal error occurred. Please try again later.")
}
