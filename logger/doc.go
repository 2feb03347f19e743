// Package logger provides structured logging for coordkit primitives
// using zerolog.
//
// Every primitive takes a *Logger at construction; a nil logger falls back
// to the global logger tagged with the primitive's component name.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("ratelimit")
//	log.Warn("limit exceeded", logger.Fields(logger.FieldKey, key))
package logger
