// Package logging provides structured logging for Fox Bridge.
//
// It wraps log/slog with the service's default fields (service, version)
// and the level/format/output settings from config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("api").Info("listening", "addr", addr)
//
// Never log pairing codes, credentials, tokens, or message captions.
package logging
