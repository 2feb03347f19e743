// Package lock provides a best-effort distributed mutex on Redis.
//
// Acquire is a single SET NX with an expiry, so at most one caller holds a
// key until it is released or expires. Release deletes the key without
// checking who holds it: a caller whose lock expired and was taken by someone
// else will release the new holder's lock. Keep critical sections well inside
// the TTL. Exists is for diagnostics only and must never gate an Acquire.
package lock
