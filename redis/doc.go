// Package redis wraps go-redis for the coordkit primitives.
//
// Client exposes only the commands the primitives consume and classifies
// every failure into the coordkit taxonomy: transport trouble becomes
// CONNECTION_FAILED, server replies become STORE_COMMAND_FAILED and
// deadlines become TIMEOUT. A missing key is never an error; Get reports it
// through its found result.
//
// Keys follow {prefix}:{domain}:{identifier}; see Key and the domain helpers.
//
// # Quick Start
//
//	comp := redis.NewComponent(redis.Config{Enabled: true, Addr: "localhost:6379"}, log)
//	registry.Register(comp)
//	// after StartAll
//	client := comp.Client()
package redis
