// Package testutil provides an in-memory Redis for tests of the store-backed
// primitives.
//
//	client, mini := testutil.NewClient(t)
//	limiter := ratelimit.NewSlidingWindow(client, nil)
//	mini.FastForward(2 * time.Second) // expire keys without sleeping
//
// Component implements testutil.TestComponent, so Reset flushes every key
// and Snapshot/Restore capture string keys.
package testutil
