// Package auth authenticates gateway clients by API key.
//
// Keys are configured under server.auth.keys and usually reference secrets:
//
//	server:
//	  auth:
//	    enabled: true
//	    keys:
//	      - name: mobile
//	        key: ${secret:mobile-client-key}
//
// The middleware stores the client name in the request context so logs and
// ledger records carry it.
package auth

import "errors"

var (
	// ErrMissingKey is returned when a request carries no key.
	ErrMissingKey = errors.New("missing API key")

	// ErrInvalidKey is returned for keys that are not configured.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrDisabledKey is returned for configured keys that are disabled.
	ErrDisabledKey = errors.New("API key disabled")
)

// Key is one accepted client key.
type Key struct {
	Name     string
	Value    string
	Disabled bool
}
