// Package server provides the HTTP server of the chat gateway.
//
// It routes the endpoints of the handlers package with chi, applies the
// middleware chain (recovery, request ID, access log, CORS) and manages the
// listener lifecycle:
//
//	srv := server.New(server.Deps{
//	    Config:   cfg,
//	    Backends: manager,
//	    Relay:    router,
//	    Health:   checker,
//	    Metrics:  collector,
//	})
//	err := srv.Run(ctx) // returns after ctx is done and shutdown completes
//
// On shutdown the server stops accepting connections and cancels the
// context of every in-flight request. Open streams therefore end (the relay
// closes their upstream connection) instead of holding the process for the
// whole shutdown timeout.
package server
