// Package config loads server configuration and builds the process logger.
//
// Configuration comes from the environment (optionally seeded from a .env
// file by the caller) and is then overridden by command-line flags:
//
//	APP_ENV=prod HTTP_PORT=9090 CORS_ALLOW=https://watch.example.com watchparty serve
//
// Logging uses log/slog. Production logs are JSON; everything else is text.
package config
