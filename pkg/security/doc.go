/*
Package security groups transport security, secret resolution and client
authentication for the chatrelay gateway.

# TLS

The server certificate is served through a Reloader so renewed files are
picked up without a restart:

	tc, reloader, err := tls.ServerConfig(cfg.Server.TLS)
	if err != nil {
		return err
	}
	_ = reloader.Schedule(sched, cfg.Server.TLS.ReloadInterval)

# Secrets

Configuration values may reference secrets as ${secret:name}. The Manager
resolves them from a mounted directory first and the environment second:

	m, err := secrets.FromConfig(cfg.Secrets)
	if err != nil {
		return err
	}
	apiKey, err := m.Resolve(ctx, backend.APIKey)

# API key authentication

	keys, err := auth.KeysFromConfig(ctx, cfg.Auth, m)
	if err != nil {
		return err
	}
	r.Use(auth.Middleware(auth.NewValidator(keys), cfg.Auth.Header))
*/
package security
