// Package cache provides a typed, namespaced TTL cache on top of the coordkit
// Redis client.
//
// Values are JSON encoded. Every entry carries an expiry: Set rejects a
// non-positive TTL with a CONFIGURATION_ERROR before touching the store, and
// counters created by Increment receive the cache's counter TTL.
//
//	users := cache.New[User](client)
//	_ = users.Set(ctx, "user:42", u, 10*time.Minute)
//	u, found, err := users.Get(ctx, "user:42")
//
// A value that cannot be decoded is reported as DESERIALIZATION_FAILED, never
// as a miss.
package cache
